package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"listingmedia/internal/s3"
	"listingmedia/internal/transfer"
)

type Options struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	PublicBaseURL string
	PartSizeMB    int64
}

type Client struct {
	client        *minio.Client
	bucket        string
	partSize      uint64
	publicBaseURL string
}

func NewClient(opts Options) (*Client, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("no MinIO endpoint configured")
	}
	if opts.Bucket == "" {
		return nil, errors.New("no MinIO bucket configured")
	}

	// minio-go wants host[:port] and a separate TLS flag
	endpoint := opts.Endpoint
	useSSL := opts.UseSSL
	if rest, ok := strings.CutPrefix(endpoint, "https://"); ok {
		endpoint, useSSL = rest, true
	} else if rest, ok := strings.CutPrefix(endpoint, "http://"); ok {
		endpoint, useSSL = rest, false
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: useSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	publicBaseURL := opts.PublicBaseURL
	if publicBaseURL == "" {
		publicBaseURL = client.EndpointURL().String() + "/" + opts.Bucket
	}

	return &Client{
		client:        client,
		bucket:        opts.Bucket,
		partSize:      uint64(opts.PartSizeMB) * 1024 * 1024,
		publicBaseURL: publicBaseURL,
	}, nil
}

func (c *Client) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string, sent transfer.SentFunc) (string, error) {
	opts := minio.PutObjectOptions{
		ContentType: contentType,
		PartSize:    c.partSize,
	}
	if sent != nil {
		opts.Progress = progressHook(sent)
	}

	_, err := c.client.PutObject(ctx, c.bucket, key, body, size, opts)
	if err != nil {
		return "", err
	}
	return s3.ObjectURL(c.publicBaseURL, key), nil
}

// progressHook receives every chunk minio-go streams into the request body.
type progressHook transfer.SentFunc

func (h progressHook) Read(b []byte) (int, error) {
	h(int64(len(b)))
	return len(b), nil
}
