package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/aws/smithy-go/middleware"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"listingmedia/internal/transfer"
)

type Options struct {
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	Endpoint      string
	PublicBaseURL string
	PartSizeMB    int64
}

type Client struct {
	uploader      *manager.Uploader
	presigner     *s3.PresignClient
	bucket        string
	publicBaseURL string
}

func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if opts.Bucket == "" {
		return nil, errors.New("no S3 bucket configured")
	}

	var cfg aws.Config
	var err error

	if opts.AccessKey != "" && opts.SecretKey != "" {
		cfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(opts.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")),
		)
	} else if os.Getenv("ECS_CONTAINER_METADATA_URI_V4") != "" {
		cfg, err = config.LoadDefaultConfig(ctx, config.WithRegion(opts.Region))
	} else {
		err = fmt.Errorf("no AWS credentials provided")
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	partSize := opts.PartSizeMB * 1024 * 1024
	if partSize < manager.MinUploadPartSize {
		partSize = manager.MinUploadPartSize
	}
	uploader := manager.NewUploader(s3Client, func(u *manager.Uploader) {
		u.PartSize = partSize
	})

	return &Client{
		uploader:      uploader,
		presigner:     s3.NewPresignClient(s3Client),
		bucket:        opts.Bucket,
		publicBaseURL: strings.TrimSuffix(opts.PublicBaseURL, "/"),
	}, nil
}

// Put uploads body under key. Large bodies are sent as a multipart upload whose
// parts are retried individually by the SDK.
func (c *Client) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string, sent transfer.SentFunc) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}

	var opts []func(*manager.Uploader)
	if sent != nil {
		opts = append(opts, manager.WithUploaderRequestOptions(func(o *s3.Options) {
			o.APIOptions = append(o.APIOptions, addSendProgress(sent))
		}))
	}

	out, err := c.uploader.Upload(ctx, input, opts...)
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("upload rejected with %s: %w", apiErr.ErrorCode(), err)
		}
		return "", err
	}

	if c.publicBaseURL != "" {
		return ObjectURL(c.publicBaseURL, key), nil
	}
	return out.Location, nil
}

// addSendProgress counts request body bytes as the HTTP transport reads them. It
// sits innermost in the stack, after signing and checksumming have read the body.
func addSendProgress(sent transfer.SentFunc) func(*middleware.Stack) error {
	return func(stack *middleware.Stack) error {
		return stack.Deserialize.Add(middleware.DeserializeMiddlewareFunc("SendProgress",
			func(ctx context.Context, in middleware.DeserializeInput, next middleware.DeserializeHandler) (middleware.DeserializeOutput, middleware.Metadata, error) {
				if !carriesObjectData(awsmiddleware.GetOperationName(ctx)) {
					return next.HandleDeserialize(ctx, in)
				}
				if req, ok := in.Request.(*smithyhttp.Request); ok {
					if stream := req.GetStream(); stream != nil {
						counted, err := req.SetStream(transfer.NewCountingReader(stream, sent))
						if err != nil {
							return middleware.DeserializeOutput{}, middleware.Metadata{}, err
						}
						in.Request = counted
					}
				}
				return next.HandleDeserialize(ctx, in)
			}), middleware.After)
	}
}

func carriesObjectData(operation string) bool {
	return operation == "PutObject" || operation == "UploadPart"
}

// PresignPutObject generates a presigned URL for PUT operations
func (c *Client) PresignPutObject(ctx context.Context, key string, expires time.Duration, headers map[string]string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}

	if contentType, ok := headers["Content-Type"]; ok {
		input.ContentType = aws.String(contentType)
	}

	request, err := c.presigner.PresignPutObject(ctx, input, func(opts *s3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		return "", err
	}

	return request.URL, nil
}

// ObjectURL joins a public base URL and an object key, escaping each path segment.
func ObjectURL(baseURL, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimSuffix(baseURL, "/") + "/" + strings.Join(segments, "/")
}
