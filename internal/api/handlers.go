package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bitrise-io/go-utils/v2/log"

	"listingmedia/internal/config"
	"listingmedia/internal/draft"
	"listingmedia/internal/transfer"
	"listingmedia/internal/upload"
)

// maxFormMemory is how much of a multipart form is buffered in memory before spilling to disk.
const maxFormMemory = 32 << 20

const avatarLimitMessage = "Select a single image for your avatar"

type Handler struct {
	photos        *upload.Orchestrator
	avatars       *upload.Orchestrator
	photosProfile *config.Profile
	avatarProfile *config.Profile
	drafts        *draft.Store
	logger        log.Logger
}

func NewHandler(photos, avatars *upload.Orchestrator, uploadConfig *config.UploadConfig, drafts *draft.Store, logger log.Logger) *Handler {
	return &Handler{
		photos:        photos,
		avatars:       avatars,
		photosProfile: uploadConfig.GetProfile(config.ProfileListingPhotos),
		avatarProfile: uploadConfig.GetProfile(config.ProfileAvatar),
		drafts:        drafts,
		logger:        logger,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/drafts", h.HandleCreateDraft)
	mux.HandleFunc("GET /v1/drafts/{id}", h.HandleGetDraft)
	mux.HandleFunc("POST /v1/drafts/{id}/images", h.HandleUploadImages)
	mux.HandleFunc("DELETE /v1/drafts/{id}/images", h.HandleRemoveImage)
	mux.HandleFunc("POST /v1/drafts/{id}/validate", h.HandleValidateDraft)
	mux.HandleFunc("POST /v1/users/{id}/avatar", h.HandleUploadAvatar)
	mux.HandleFunc("GET /v1/users/{id}/avatar", h.HandleGetAvatar)
}

// HandleCreateDraft handles POST /v1/drafts
func (h *Handler) HandleCreateDraft(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusCreated, h.drafts.Create())
}

// HandleGetDraft handles GET /v1/drafts/{id}
func (h *Handler) HandleGetDraft(w http.ResponseWriter, r *http.Request) {
	d, err := h.drafts.Get(r.PathValue("id"))
	if err != nil {
		h.writeDraftError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, d)
}

// HandleUploadImages handles POST /v1/drafts/{id}/images
func (h *Handler) HandleUploadImages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	files, ok := h.parseFiles(w, r, "files")
	if !ok {
		return
	}

	existing, err := h.drafts.BeginBatch(id)
	if err != nil {
		h.writeDraftError(w, err)
		return
	}

	result, err := h.photos.Submit(r.Context(), files, existing, func(fraction float64) {
		h.logger.Debugf("Draft %s upload %d%%", id, int(fraction*100))
	})
	if err != nil {
		h.drafts.Abort(id)
		h.writeUploadError(w, err, h.photosProfile,
			fmt.Sprintf("You can only upload %d images per listing", h.photos.MaxBatchCount()))
		return
	}

	d, err := h.drafts.Commit(id, result.References)
	if err != nil {
		h.writeDraftError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, d)
}

// HandleRemoveImage handles DELETE /v1/drafts/{id}/images with either
// ?index=N or a JSON body naming the URL.
func (h *Handler) HandleRemoveImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if raw := r.URL.Query().Get("index"); raw != "" {
		index, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, ErrBadRequest, "index must be an integer", "")
			return
		}
		d, err := h.drafts.RemoveImageAt(id, index)
		if err != nil {
			h.writeDraftError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, d)
		return
	}

	var req RemoveImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrBadRequest, "Invalid request body", "")
		return
	}
	if req.URL == "" {
		h.writeError(w, http.StatusBadRequest, ErrBadRequest, "url is required", "Or pass ?index=N")
		return
	}

	d, err := h.drafts.RemoveImage(id, req.URL)
	if err != nil {
		h.writeDraftError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, d)
}

// HandleValidateDraft handles POST /v1/drafts/{id}/validate
func (h *Handler) HandleValidateDraft(w http.ResponseWriter, r *http.Request) {
	d, err := h.drafts.Get(r.PathValue("id"))
	if err != nil {
		h.writeDraftError(w, err)
		return
	}
	if err := d.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrIncomplete, "You must upload at least one image", "")
		return
	}
	h.writeJSON(w, http.StatusOK, d)
}

// HandleUploadAvatar handles POST /v1/users/{id}/avatar
func (h *Handler) HandleUploadAvatar(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	files, ok := h.parseFiles(w, r, "file")
	if !ok {
		return
	}
	var file transfer.File
	switch len(files) {
	case 0:
		// SubmitOne reports the empty selection
	case 1:
		file = files[0]
	default:
		h.writeUploadError(w, upload.ErrBatchLimitExceeded, h.avatarProfile, avatarLimitMessage)
		return
	}

	ref, err := h.avatars.SubmitOne(r.Context(), file, func(fraction float64) {
		h.logger.Debugf("Avatar for %s upload %d%%", userID, int(fraction*100))
	})
	if err != nil {
		h.writeUploadError(w, err, h.avatarProfile, avatarLimitMessage)
		return
	}

	h.drafts.SetAvatar(userID, ref)
	h.writeJSON(w, http.StatusOK, AvatarResponse{UserID: userID, Avatar: ref})
}

// HandleGetAvatar handles GET /v1/users/{id}/avatar
func (h *Handler) HandleGetAvatar(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	ref, ok := h.drafts.Avatar(userID)
	if !ok {
		h.writeError(w, http.StatusNotFound, ErrNotFound, "No avatar uploaded", "")
		return
	}
	h.writeJSON(w, http.StatusOK, AvatarResponse{UserID: userID, Avatar: ref})
}

func (h *Handler) parseFiles(w http.ResponseWriter, r *http.Request, field string) ([]transfer.File, bool) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrBadRequest, "Invalid multipart form", "Send files as multipart/form-data")
		return nil, false
	}

	headers := r.MultipartForm.File[field]
	files := make([]transfer.File, len(headers))
	for i, fh := range headers {
		files[i] = formFile{header: fh}
	}
	return files, true
}

func (h *Handler) writeUploadError(w http.ResponseWriter, err error, profile *config.Profile, limitMessage string) {
	var failed *upload.TransferFailedError

	switch {
	case errors.Is(err, upload.ErrEmptyBatch):
		h.writeError(w, http.StatusBadRequest, ErrEmptyBatch, "Select at least one image to upload", "")
	case errors.Is(err, upload.ErrBatchLimitExceeded):
		h.writeError(w, http.StatusBadRequest, ErrBatchLimitExceeded, limitMessage, err.Error())
	case errors.As(err, &failed):
		h.writeError(w, http.StatusUnprocessableEntity, ErrUploadFailed,
			fmt.Sprintf("Image upload failed (%s max per image)", profile.SizeMaxHuman()), err.Error())
	default:
		h.logger.Errorf("Upload error: %s", err)
		h.writeError(w, http.StatusInternalServerError, ErrBadRequest, "Upload failed", "")
	}
}

func (h *Handler) writeDraftError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, draft.ErrNotFound):
		h.writeError(w, http.StatusNotFound, ErrNotFound, "Draft not found", "Create one with POST /v1/drafts")
	case errors.Is(err, draft.ErrBatchInFlight):
		h.writeError(w, http.StatusConflict, ErrBatchInFlight, err.Error(), "Wait for the current upload to finish")
	default:
		h.logger.Errorf("Draft error: %s", err)
		h.writeError(w, http.StatusInternalServerError, ErrBadRequest, err.Error(), "")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warnf("Failed to write response: %s", err)
	}
}

// writeError writes a standardized error response
func (h *Handler) writeError(w http.ResponseWriter, statusCode int, code, message, hint string) {
	h.writeJSON(w, statusCode, ErrorResponse{
		Code:    code,
		Message: message,
		Hint:    hint,
	})
}
