// Package transfer performs the upload of a single file to object storage and
// reports it as a stream of events: zero or more progress notifications followed
// by exactly one terminal success or failure.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// EventKind tags an Event.
type EventKind int

const (
	Progress EventKind = iota
	Succeeded
	Failed
)

func (k EventKind) String() string {
	switch k {
	case Progress:
		return "progress"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further events may follow an event of this kind.
func (k EventKind) Terminal() bool {
	return k == Succeeded || k == Failed
}

// Event is one notification from a running transfer.
// Fraction is set for Progress, Reference for Succeeded and Err for Failed.
type Event struct {
	Kind      EventKind
	Fraction  float64
	Reference string
	Err       error
}

func ProgressEvent(fraction float64) Event {
	return Event{Kind: Progress, Fraction: fraction}
}

func SuccessEvent(reference string) Event {
	return Event{Kind: Succeeded, Fraction: 1, Reference: reference}
}

func FailureEvent(err error) Event {
	return Event{Kind: Failed, Err: err}
}

// File is a local file handle selected by the user.
type File interface {
	Name() string
	Size() int64
	Open() (io.ReadCloser, error)
}

// Transferer starts one file's transfer. The returned channel delivers the
// transfer's events and is closed after the terminal event.
type Transferer interface {
	Begin(ctx context.Context, file File) <-chan Event
}

// SentFunc is told each time n more bytes of an object body reach the network.
// It may be called from several goroutines when a store uploads parts concurrently.
type SentFunc func(n int64)

// Store puts an object into remote storage and returns its durable reference.
// Implementations report progress through sent as the body is written out, not as
// it is read into memory. sent may be nil.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string, sent SentFunc) (string, error)
}

var (
	ErrFileTooLarge   = errors.New("file too large")
	ErrMimeNotAllowed = errors.New("mime type not allowed")
	ErrEmptyFile      = errors.New("file is empty")
)

// LocalFile is a File backed by a path on disk.
type LocalFile struct {
	path string
	size int64
}

func NewLocalFile(path string) (*LocalFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &LocalFile{path: path, size: info.Size()}, nil
}

func (f *LocalFile) Name() string { return filepath.Base(f.path) }

func (f *LocalFile) Size() int64 { return f.size }

func (f *LocalFile) Open() (io.ReadCloser, error) { return os.Open(f.path) }
