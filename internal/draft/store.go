// Package draft holds the caller-side state that uploaded references feed into:
// listing drafts collecting photos and user profiles carrying an avatar.
package draft

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"listingmedia/internal/upload"
)

var (
	ErrNotFound      = errors.New("draft not found")
	ErrBatchInFlight = errors.New("an upload is already in progress for this draft")
	ErrNoImages      = errors.New("you must upload at least one image")
)

// Draft is a listing being composed. ImageURLs is ordered by upload.
type Draft struct {
	ID        string    `json:"id"`
	ImageURLs []string  `json:"image_urls"`
	Uploading bool      `json:"uploading"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the draft is ready to be submitted as a listing.
func (d Draft) Validate() error {
	if len(d.ImageURLs) < 1 {
		return ErrNoImages
	}
	return nil
}

// Store keeps drafts and avatars in memory. Returned drafts are copies.
type Store struct {
	mu      sync.Mutex
	drafts  map[string]*Draft
	avatars map[string]string
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{
		drafts:  make(map[string]*Draft),
		avatars: make(map[string]string),
		now:     time.Now,
	}
}

func (s *Store) Create() Draft {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	d := &Draft{
		ID:        uuid.NewString(),
		ImageURLs: []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.drafts[d.ID] = d
	return d.snapshot()
}

func (s *Store) Get(id string) (Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[id]
	if !ok {
		return Draft{}, ErrNotFound
	}
	return d.snapshot(), nil
}

// BeginBatch marks the draft as uploading and returns how many images it already
// holds. Only one batch may be in flight per draft.
func (s *Store) BeginBatch(id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[id]
	if !ok {
		return 0, ErrNotFound
	}
	if d.Uploading {
		return 0, ErrBatchInFlight
	}
	d.Uploading = true
	return len(d.ImageURLs), nil
}

// Commit appends a successful batch's references and ends the batch.
func (s *Store) Commit(id string, references []string) (Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[id]
	if !ok {
		return Draft{}, ErrNotFound
	}
	d.ImageURLs = append(append([]string(nil), d.ImageURLs...), references...)
	d.Uploading = false
	d.UpdatedAt = s.now()
	return d.snapshot(), nil
}

// Abort ends the batch without changing the draft's images.
func (s *Store) Abort(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d, ok := s.drafts[id]; ok {
		d.Uploading = false
	}
}

func (s *Store) RemoveImage(id, reference string) (Draft, error) {
	return s.update(id, func(images []string) []string {
		return upload.Remove(images, reference)
	})
}

func (s *Store) RemoveImageAt(id string, index int) (Draft, error) {
	return s.update(id, func(images []string) []string {
		return upload.RemoveAt(images, index)
	})
}

func (s *Store) update(id string, fn func([]string) []string) (Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[id]
	if !ok {
		return Draft{}, ErrNotFound
	}
	d.ImageURLs = fn(d.ImageURLs)
	d.UpdatedAt = s.now()
	return d.snapshot(), nil
}

func (s *Store) SetAvatar(userID, reference string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.avatars[userID] = reference
}

func (s *Store) Avatar(userID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.avatars[userID]
	return ref, ok
}

func (d *Draft) snapshot() Draft {
	c := *d
	c.ImageURLs = append([]string{}, d.ImageURLs...)
	return c
}
