package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/gabriel-vasile/mimetype"

	"listingmedia/internal/config"
)

// sniffLen matches the amount of data mimetype inspects by default.
const sniffLen = 3072

// Driver runs transfers against a Store, enforcing a profile's limits.
type Driver struct {
	store   Store
	profile *config.Profile
	logger  log.Logger
	now     func() time.Time
}

func NewDriver(store Store, profile *config.Profile, logger log.Logger) *Driver {
	return &Driver{
		store:   store,
		profile: profile,
		logger:  logger,
		now:     time.Now,
	}
}

// Begin starts the transfer in its own goroutine.
func (d *Driver) Begin(ctx context.Context, file File) <-chan Event {
	events := make(chan Event, 8)

	go func() {
		defer close(events)

		ref, err := d.run(ctx, file, func(fraction float64) {
			events <- ProgressEvent(fraction)
		})
		if err != nil {
			d.logger.Debugf("Transfer of %s failed: %s", file.Name(), err)
			events <- FailureEvent(err)
			return
		}
		d.logger.Debugf("Transfer of %s stored as %s", file.Name(), ref)
		events <- SuccessEvent(ref)
	}()

	return events
}

func (d *Driver) run(ctx context.Context, file File, onProgress func(float64)) (string, error) {
	size := file.Size()
	if size <= 0 {
		return "", fmt.Errorf("%w: %s", ErrEmptyFile, file.Name())
	}
	if limit := d.profile.SizeMaxBytes(); limit > 0 && size > limit {
		return "", fmt.Errorf("%w: %s is %s, limit is %s", ErrFileTooLarge, file.Name(),
			units.HumanSize(float64(size)), d.profile.SizeMaxHuman())
	}

	rc, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", file.Name(), err)
	}
	defer rc.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(rc, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read %s: %w", file.Name(), err)
	}
	head = head[:n]

	contentType := mediaType(mimetype.Detect(head).String())
	if !d.profile.AllowsMime(contentType) {
		return "", fmt.Errorf("%w: %s is %s", ErrMimeNotAllowed, file.Name(), contentType)
	}

	body := io.MultiReader(bytes.NewReader(head), rc)
	meter := newProgressMeter(size, onProgress)

	ref, err := d.store.Put(ctx, d.objectKey(file.Name()), body, size, contentType, meter.add)
	meter.close()
	if err != nil {
		return "", fmt.Errorf("failed to store %s: %w", file.Name(), err)
	}
	return ref, nil
}

// objectKey names objects by upload time followed by the original file name.
func (d *Driver) objectKey(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	return path.Join(d.profile.PathPrefix, fmt.Sprintf("%d%s", d.now().UnixMilli(), name))
}

func mediaType(mime string) string {
	base, _, _ := strings.Cut(mime, ";")
	return strings.TrimSpace(base)
}
