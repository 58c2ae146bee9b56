package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"

	"listingmedia/internal/transfer"
)

// Presigner issues presigned PUT URLs.
type Presigner interface {
	PresignPutObject(ctx context.Context, key string, expires time.Duration, headers map[string]string) (string, error)
}

// PresignedUploader stores objects by PUTting them to a presigned URL, the way a
// browser client uploads without holding storage credentials.
type PresignedUploader struct {
	presigner     Presigner
	httpClient    *retryablehttp.Client
	expires       time.Duration
	publicBaseURL string
	logger        log.Logger
}

func NewPresignedUploader(presigner Presigner, expires time.Duration, publicBaseURL string, logger log.Logger) *PresignedUploader {
	return &PresignedUploader{
		presigner:     presigner,
		httpClient:    retryhttp.NewClient(logger),
		expires:       expires,
		publicBaseURL: publicBaseURL,
		logger:        logger,
	}
}

func (p *PresignedUploader) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string, sent transfer.SentFunc) (string, error) {
	headers := map[string]string{
		"Content-Type": contentType,
	}

	uploadURL, err := p.presigner.PresignPutObject(ctx, key, p.expires, headers)
	if err != nil {
		return "", fmt.Errorf("failed to presign upload: %w", err)
	}

	// retries need to replay the body
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, uploadURL, sendingBody(data, sent))
	if err != nil {
		return "", err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.ContentLength = size

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			p.logger.Warnf("Failed to close response body: %s", err)
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("upload rejected with status %d: %s", resp.StatusCode, msg)
	}

	if p.publicBaseURL != "" {
		return ObjectURL(p.publicBaseURL, key), nil
	}
	return stripQuery(uploadURL)
}

// sendingBody replays data on every attempt. Only bytes beyond what an earlier
// attempt already sent are reported.
func sendingBody(data []byte, sent transfer.SentFunc) retryablehttp.ReaderFunc {
	var mu sync.Mutex
	var reported int64
	return func() (io.Reader, error) {
		var attempt int64
		return transfer.NewCountingReader(bytes.NewReader(data), func(n int64) {
			mu.Lock()
			defer mu.Unlock()
			attempt += n
			if attempt > reported {
				if sent != nil {
					sent(attempt - reported)
				}
				reported = attempt
			}
		}), nil
	}
}

// stripQuery removes the signature from a presigned URL, leaving the object URL.
func stripQuery(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
