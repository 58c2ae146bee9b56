package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listingmedia/internal/transfer"
)

type fakeFile struct {
	name string
}

func (f *fakeFile) Name() string                 { return f.name }
func (f *fakeFile) Size() int64                  { return 1 }
func (f *fakeFile) Open() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader([]byte{0})), nil }

func files(names ...string) []transfer.File {
	out := make([]transfer.File, len(names))
	for i, n := range names {
		out[i] = &fakeFile{name: n}
	}
	return out
}

// MockTransferer implements transfer.Transferer for testing
type MockTransferer struct {
	// script returns the events for a file; delay is applied before the terminal event
	script func(name string) ([]transfer.Event, time.Duration)

	started atomic.Int32
}

func (m *MockTransferer) Begin(ctx context.Context, file transfer.File) <-chan transfer.Event {
	m.started.Add(1)
	events := make(chan transfer.Event)
	go func() {
		defer close(events)
		script, delay := m.script(file.Name())
		for i, ev := range script {
			if i == len(script)-1 {
				time.Sleep(delay)
			}
			events <- ev
		}
	}()
	return events
}

func succeedWith(delays map[string]time.Duration) func(string) ([]transfer.Event, time.Duration) {
	return func(name string) ([]transfer.Event, time.Duration) {
		return []transfer.Event{
			transfer.ProgressEvent(0.25),
			transfer.ProgressEvent(0.5),
			transfer.ProgressEvent(1),
			transfer.SuccessEvent("ref-" + name),
		}, delays[name]
	}
}

func newTestOrchestrator(m *MockTransferer) *Orchestrator {
	return NewOrchestrator(m, DefaultMaxBatchCount, log.NewLogger())
}

func TestSubmit_AllSucceedInInputOrder(t *testing.T) {
	// later files finish first
	m := &MockTransferer{script: succeedWith(map[string]time.Duration{
		"a.jpg": 60 * time.Millisecond,
		"b.jpg": 30 * time.Millisecond,
		"c.jpg": 0,
	})}

	result, err := newTestOrchestrator(m).Submit(context.Background(), files("a.jpg", "b.jpg", "c.jpg"), 0, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"ref-a.jpg", "ref-b.jpg", "ref-c.jpg"}, result.References)
	assert.Equal(t, int32(3), m.started.Load())
}

func TestSubmit_AnyFailureDiscardsBatch(t *testing.T) {
	cause := errors.New("file too large")
	m := &MockTransferer{script: func(name string) ([]transfer.Event, time.Duration) {
		if name == "two.jpg" {
			// fails after one.jpg has already succeeded
			return []transfer.Event{transfer.ProgressEvent(0.3), transfer.FailureEvent(cause)}, 50 * time.Millisecond
		}
		return []transfer.Event{transfer.ProgressEvent(1), transfer.SuccessEvent("ref-" + name)}, 0
	}}

	result, err := newTestOrchestrator(m).Submit(context.Background(), files("one.jpg", "two.jpg"), 0, nil)

	assert.Nil(t, result)
	var failed *TransferFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, 2, failed.Total)
	require.Len(t, failed.Failures, 1)
	assert.Equal(t, 1, failed.Failures[0].Index)
	assert.Equal(t, "two.jpg", failed.Failures[0].Name)
	assert.ErrorIs(t, err, cause)
	assert.NotContains(t, err.Error(), "ref-one.jpg")
}

func TestSubmit_WaitsForAllTransfers(t *testing.T) {
	var finished atomic.Int32
	m := &MockTransferer{}
	m.script = func(name string) ([]transfer.Event, time.Duration) {
		if name == "fast-fail.jpg" {
			return []transfer.Event{transfer.FailureEvent(errors.New("network"))}, 0
		}
		return []transfer.Event{transfer.SuccessEvent("ref-" + name)}, 80 * time.Millisecond
	}
	o := newTestOrchestrator(m)
	o.transferer = &countingTransferer{inner: m, finished: &finished}

	_, err := o.Submit(context.Background(), files("fast-fail.jpg", "slow.jpg", "slower.jpg"), 0, nil)

	require.Error(t, err)
	assert.Equal(t, int32(3), finished.Load())
}

// countingTransferer counts transfers whose terminal event was delivered.
type countingTransferer struct {
	inner    transfer.Transferer
	finished *atomic.Int32
}

func (c *countingTransferer) Begin(ctx context.Context, file transfer.File) <-chan transfer.Event {
	out := make(chan transfer.Event)
	in := c.inner.Begin(ctx, file)
	go func() {
		defer close(out)
		for ev := range in {
			if ev.Kind.Terminal() {
				c.finished.Add(1)
			}
			out <- ev
		}
	}()
	return out
}

func TestSubmit_Preconditions(t *testing.T) {
	tests := []struct {
		name          string
		files         []transfer.File
		existingCount int
		wantErr       error
	}{
		{"Empty batch", nil, 0, ErrEmptyBatch},
		{"Empty batch with existing", []transfer.File{}, 3, ErrEmptyBatch},
		{"Existing five plus two", files("a", "b"), 5, ErrBatchLimitExceeded},
		{"Seven new files", files("1", "2", "3", "4", "5", "6", "7"), 0, ErrBatchLimitExceeded},
		{"Already full", files("a"), 6, ErrBatchLimitExceeded},
		{"Negative existing hides nine files", files("1", "2", "3", "4", "5", "6", "7", "8", "9"), -3, ErrBatchLimitExceeded},
		{"Negative existing", files("a"), -1, ErrBatchLimitExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &MockTransferer{script: succeedWith(nil)}

			result, err := newTestOrchestrator(m).Submit(context.Background(), tt.files, tt.existingCount, nil)

			assert.Nil(t, result)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, int32(0), m.started.Load())
		})
	}
}

func TestSubmit_StartsOneTransferPerFile(t *testing.T) {
	for existing := 0; existing <= DefaultMaxBatchCount; existing++ {
		for n := 1; existing+n <= DefaultMaxBatchCount; n++ {
			names := make([]string, n)
			for i := range names {
				names[i] = string(rune('a' + i))
			}
			m := &MockTransferer{script: succeedWith(nil)}

			result, err := newTestOrchestrator(m).Submit(context.Background(), files(names...), existing, nil)

			require.NoError(t, err)
			assert.Len(t, result.References, n)
			assert.Equal(t, int32(n), m.started.Load())
		}
	}
}

func TestSubmit_AggregateProgressIsMonotonic(t *testing.T) {
	m := &MockTransferer{script: func(name string) ([]transfer.Event, time.Duration) {
		return []transfer.Event{
			transfer.ProgressEvent(0.1),
			transfer.ProgressEvent(0.6),
			transfer.ProgressEvent(0.4), // stale, must not pull the aggregate down
			transfer.ProgressEvent(1),
			transfer.SuccessEvent("ref-" + name),
		}, 0
	}}

	var mu sync.Mutex
	var reported []float64
	onProgress := func(f float64) {
		mu.Lock()
		defer mu.Unlock()
		reported = append(reported, f)
	}

	_, err := newTestOrchestrator(m).Submit(context.Background(), files("a", "b", "c", "d"), 0, onProgress)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, reported)
	for i := 1; i < len(reported); i++ {
		assert.Greater(t, reported[i], reported[i-1])
	}
	assert.InDelta(t, 1.0, reported[len(reported)-1], 1e-9)
	for _, f := range reported {
		assert.GreaterOrEqual(t, f, 0.0)
		assert.LessOrEqual(t, f, 1.0)
	}
}

func TestSubmit_EventsAfterTerminalAreIgnored(t *testing.T) {
	m := &MockTransferer{script: func(name string) ([]transfer.Event, time.Duration) {
		return []transfer.Event{
			transfer.SuccessEvent("ref-" + name),
			transfer.FailureEvent(errors.New("late failure")),
			transfer.SuccessEvent("other-ref"),
		}, 0
	}}

	result, err := newTestOrchestrator(m).Submit(context.Background(), files("a"), 0, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"ref-a"}, result.References)
}

func TestSubmit_ContractViolations(t *testing.T) {
	tests := []struct {
		name    string
		script  []transfer.Event
		wantErr error
	}{
		{"Closed without terminal", []transfer.Event{transfer.ProgressEvent(0.5)}, errNoTerminalEvent},
		{"Success without reference", []transfer.Event{{Kind: transfer.Succeeded}}, errEmptyReference},
		{"Failure without cause", []transfer.Event{{Kind: transfer.Failed}}, errUnknownFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &MockTransferer{script: func(string) ([]transfer.Event, time.Duration) { return tt.script, 0 }}

			_, err := newTestOrchestrator(m).Submit(context.Background(), files("a"), 0, nil)

			var failed *TransferFailedError
			require.ErrorAs(t, err, &failed)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSubmitOne(t *testing.T) {
	m := &MockTransferer{script: succeedWith(nil)}
	o := NewOrchestrator(m, 1, log.NewLogger())

	var last float64
	ref, err := o.SubmitOne(context.Background(), &fakeFile{name: "me.png"}, func(f float64) { last = f })

	require.NoError(t, err)
	assert.Equal(t, "ref-me.png", ref)
	assert.Equal(t, 1.0, last)

	_, err = o.SubmitOne(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestSubmitOne_Failure(t *testing.T) {
	m := &MockTransferer{script: func(string) ([]transfer.Event, time.Duration) {
		return []transfer.Event{transfer.FailureEvent(transfer.ErrFileTooLarge)}, 0
	}}

	ref, err := NewOrchestrator(m, 1, log.NewLogger()).SubmitOne(context.Background(), &fakeFile{name: "me.png"}, nil)

	assert.Empty(t, ref)
	assert.ErrorIs(t, err, transfer.ErrFileTooLarge)
}

func TestNewOrchestrator_DefaultLimit(t *testing.T) {
	o := NewOrchestrator(&MockTransferer{}, 0, log.NewLogger())
	assert.Equal(t, DefaultMaxBatchCount, o.MaxBatchCount())
}
