package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listingmedia/internal/config"
	"listingmedia/internal/draft"
	"listingmedia/internal/transfer"
	"listingmedia/internal/upload"
)

type stubTransferer struct{}

func (stubTransferer) Begin(ctx context.Context, file transfer.File) <-chan transfer.Event {
	ch := make(chan transfer.Event, 1)
	ch <- transfer.SuccessEvent("https://cdn.example.com/" + file.Name())
	close(ch)
	return ch
}

func TestNewStore_UnknownBackend(t *testing.T) {
	cfg := &config.Config{StorageBackend: "ftp"}

	store, err := newStore(context.Background(), cfg, config.DefaultProfile(), log.NewLogger())
	require.Error(t, err)
	assert.Nil(t, store)
	assert.Contains(t, err.Error(), `unknown storage backend "ftp"`)
}

func TestNewStore_MinioRequiresEndpoint(t *testing.T) {
	cfg := &config.Config{StorageBackend: BackendMinio, S3Bucket: "media"}

	store, err := newStore(context.Background(), cfg, config.DefaultProfile(), log.NewLogger())
	require.Error(t, err)
	assert.Nil(t, store)
}

func TestNewStore_S3RequiresBucket(t *testing.T) {
	cfg := &config.Config{StorageBackend: BackendS3, S3Region: "us-east-1", AWSAccessKey: "a", AWSSecretKey: "b"}

	_, err := newStore(context.Background(), cfg, config.DefaultProfile(), log.NewLogger())
	require.Error(t, err)
}

func TestNewMux_HealthIsPublic(t *testing.T) {
	logger := log.NewLogger()
	a := &app{
		cfg:          &config.Config{APIKey: "secret"},
		uploadConfig: config.DefaultUploadConfig(),
		logger:       logger,
		photos:       upload.NewOrchestrator(stubTransferer{}, 6, logger),
		avatars:      upload.NewOrchestrator(stubTransferer{}, 1, logger),
	}
	mux := newMux(a, draft.NewStore())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/drafts", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/drafts", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestUploadPhotos_RejectsNegativeExisting(t *testing.T) {
	cmd := newUploadCmd(&config.Config{StorageBackend: "ftp"}, log.NewLogger())
	cmd.SetArgs([]string{"photos", "--existing=-3", "a.jpg"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "--existing must not be negative")
}

func TestServe_InitErrorIsPlain(t *testing.T) {
	cmd := newServeCmd(&config.Config{StorageBackend: "ftp"}, log.NewLogger())
	cmd.SetArgs([]string{})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()

	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "failed to initialize: "))
	assert.NotContains(t, err.Error(), "🚨")
}

func TestLocalFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "front.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg"), 0o600))

	files, err := localFiles([]string{path})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "front.jpg", files[0].Name())
	assert.Equal(t, int64(4), files[0].Size())

	_, err = localFiles([]string{path, filepath.Join(dir, "missing.jpg")})
	assert.Error(t, err)

	_, err = localFiles([]string{dir})
	assert.Error(t, err)
}

func TestPercentPrinter(t *testing.T) {
	var buf bytes.Buffer
	progress := percentPrinter(&buf)

	progress(0.1)
	progress(0.101)
	progress(0.5)
	progress(1)

	assert.Equal(t, "Uploading 10%\nUploading 50%\nUploading 100%\n", buf.String())
}
