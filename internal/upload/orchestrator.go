// Package upload turns a user's selection of local files into an ordered list of
// durable storage references. A batch is all-or-nothing: every file is transferred
// concurrently, and the references are only handed back when every transfer succeeded.
package upload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"golang.org/x/sync/errgroup"

	"listingmedia/internal/transfer"
)

// DefaultMaxBatchCount is the ceiling on references a listing may accumulate.
const DefaultMaxBatchCount = 6

// ProgressFunc receives the batch's aggregate progress in [0, 1].
// Calls are serialized and the reported value never decreases.
type ProgressFunc func(fraction float64)

// BatchResult is a committed batch. References[i] belongs to files[i].
type BatchResult struct {
	References []string
	Duration   time.Duration
}

type Orchestrator struct {
	transferer    transfer.Transferer
	maxBatchCount int
	logger        log.Logger
}

func NewOrchestrator(transferer transfer.Transferer, maxBatchCount int, logger log.Logger) *Orchestrator {
	if maxBatchCount <= 0 {
		maxBatchCount = DefaultMaxBatchCount
	}
	return &Orchestrator{
		transferer:    transferer,
		maxBatchCount: maxBatchCount,
		logger:        logger,
	}
}

func (o *Orchestrator) MaxBatchCount() int {
	return o.maxBatchCount
}

// Submit uploads files as one batch. existingCount is the size of the caller's
// collection and counts against the batch ceiling. Precondition failures return
// before any transfer starts; otherwise Submit waits for every transfer to settle.
func (o *Orchestrator) Submit(ctx context.Context, files []transfer.File, existingCount int, onProgress ProgressFunc) (*BatchResult, error) {
	if err := o.check(files, existingCount); err != nil {
		o.logger.Warnf("Batch rejected: %s", err)
		return nil, err
	}

	start := time.Now()
	o.logger.Infof("Uploading %d file(s), %d already attached", len(files), existingCount)

	progress := newProgressAggregator(len(files), onProgress)
	states := make([]transferState, len(files))

	var g errgroup.Group
	for i, file := range files {
		states[i].file = file
		events := o.transferer.Begin(ctx, file)
		g.Go(func() error {
			return o.await(i, &states[i], events, progress)
		})
	}

	// errgroup.Group without a context never cancels siblings, so Wait is a join-all barrier.
	if err := g.Wait(); err != nil {
		failed := &TransferFailedError{Total: len(files)}
		for i := range states {
			if states[i].outcome == Failed {
				failed.Failures = append(failed.Failures, FileError{Index: i, Name: states[i].file.Name(), Err: states[i].err})
			}
		}
		o.logger.Errorf("Batch discarded at %.0f%%: %s", progress.fraction()*100, failed)
		return nil, failed
	}

	result := &BatchResult{
		References: make([]string, len(states)),
		Duration:   time.Since(start),
	}
	for i := range states {
		result.References[i] = states[i].reference
	}

	o.logger.Donef("Uploaded %d file(s) in %s", len(files), result.Duration.Round(time.Millisecond))
	return result, nil
}

// SubmitOne uploads a single file on its own, the way a profile avatar is replaced.
func (o *Orchestrator) SubmitOne(ctx context.Context, file transfer.File, onProgress ProgressFunc) (string, error) {
	if file == nil {
		return "", ErrEmptyBatch
	}
	result, err := o.Submit(ctx, []transfer.File{file}, 0, onProgress)
	if err != nil {
		return "", err
	}
	return result.References[0], nil
}

func (o *Orchestrator) check(files []transfer.File, existingCount int) error {
	if len(files) == 0 {
		return ErrEmptyBatch
	}
	if existingCount < 0 {
		return fmt.Errorf("%w: attached count %d is negative", ErrBatchLimitExceeded, existingCount)
	}
	if existingCount+len(files) > o.maxBatchCount {
		return fmt.Errorf("%w: %d attached + %d selected exceeds %d", ErrBatchLimitExceeded,
			existingCount, len(files), o.maxBatchCount)
	}
	return nil
}

// await consumes one transfer's events until its terminal event.
func (o *Orchestrator) await(index int, state *transferState, events <-chan transfer.Event, progress *progressAggregator) error {
	for ev := range events {
		switch ev.Kind {
		case transfer.Progress:
			progress.update(index, ev.Fraction)

		case transfer.Succeeded:
			if ev.Reference == "" {
				state.fail(errEmptyReference)
			} else {
				state.succeed(ev.Reference)
				progress.update(index, 1)
			}
			go o.drain(state.file.Name(), events)
			return state.err

		case transfer.Failed:
			err := ev.Err
			if err == nil {
				err = errUnknownFailure
			}
			state.fail(err)
			go o.drain(state.file.Name(), events)
			return err
		}
	}

	state.fail(errNoTerminalEvent)
	return state.err
}

// drain discards anything a transfer emits after its terminal event.
func (o *Orchestrator) drain(name string, events <-chan transfer.Event) {
	for ev := range events {
		o.logger.Warnf("Ignoring %s event for %s after terminal event", ev.Kind, name)
	}
}

var (
	errEmptyReference  = errors.New("transfer succeeded without a reference")
	errUnknownFailure  = errors.New("transfer failed")
	errNoTerminalEvent = errors.New("transfer ended without a terminal event")
)
