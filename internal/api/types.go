package api

import (
	"io"
	"mime/multipart"
)

// ErrorResponse represents error responses from the upload API
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// RemoveImageRequest identifies the image to drop from a draft
type RemoveImageRequest struct {
	URL string `json:"url"`
}

// AvatarResponse is returned after a profile avatar upload
type AvatarResponse struct {
	UserID string `json:"user_id"`
	Avatar string `json:"avatar"`
}

// Standard error codes
const (
	ErrBadRequest         = "bad_request"
	ErrNotFound           = "not_found"
	ErrEmptyBatch         = "empty_batch"
	ErrBatchLimitExceeded = "batch_limit_exceeded"
	ErrBatchInFlight      = "batch_in_flight"
	ErrUploadFailed       = "upload_failed"
	ErrIncomplete         = "incomplete"
)

// formFile adapts an uploaded multipart part to transfer.File.
type formFile struct {
	header *multipart.FileHeader
}

func (f formFile) Name() string { return f.header.Filename }

func (f formFile) Size() int64 { return f.header.Size }

func (f formFile) Open() (io.ReadCloser, error) { return f.header.Open() }
