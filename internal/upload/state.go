package upload

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"listingmedia/internal/transfer"
)

var (
	ErrEmptyBatch         = errors.New("no files selected")
	ErrBatchLimitExceeded = errors.New("batch limit exceeded")
)

// Outcome is the terminal state of one file's transfer.
type Outcome int

const (
	Pending Outcome = iota
	Succeeded
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// transferState moves from Pending to Succeeded or Failed exactly once.
type transferState struct {
	file      transfer.File
	outcome   Outcome
	reference string
	err       error
}

func (s *transferState) succeed(reference string) {
	if s.outcome != Pending {
		return
	}
	s.outcome = Succeeded
	s.reference = reference
}

func (s *transferState) fail(err error) {
	if s.outcome != Pending {
		return
	}
	s.outcome = Failed
	s.err = err
}

// FileError is the failure of one file within a batch.
type FileError struct {
	Index int
	Name  string
	Err   error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e FileError) Unwrap() error {
	return e.Err
}

// TransferFailedError reports a discarded batch. None of the batch's references
// are returned, including those of transfers that succeeded.
type TransferFailedError struct {
	Failures []FileError
	Total    int
}

func (e *TransferFailedError) Error() string {
	causes := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		causes[i] = f.Error()
	}
	return fmt.Sprintf("upload failed: %d of %d transfers failed: %s", len(e.Failures), e.Total, strings.Join(causes, "; "))
}

func (e *TransferFailedError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// progressAggregator reports the mean of per-file fractions.
type progressAggregator struct {
	mu        sync.Mutex
	fractions []float64
	reported  float64
	fn        ProgressFunc
}

func newProgressAggregator(n int, fn ProgressFunc) *progressAggregator {
	return &progressAggregator{
		fractions: make([]float64, n),
		fn:        fn,
	}
}

func (p *progressAggregator) update(index int, fraction float64) {
	if math.IsNaN(fraction) {
		return
	}
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if fraction <= p.fractions[index] {
		return
	}
	p.fractions[index] = fraction

	var sum float64
	for _, f := range p.fractions {
		sum += f
	}
	mean := sum / float64(len(p.fractions))
	if mean <= p.reported {
		return
	}
	p.reported = mean
	if p.fn != nil {
		p.fn(mean)
	}
}

func (p *progressAggregator) fraction() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reported
}
