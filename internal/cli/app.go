package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"

	"listingmedia/internal/config"
	"listingmedia/internal/minio"
	"listingmedia/internal/s3"
	"listingmedia/internal/transfer"
	"listingmedia/internal/upload"
)

const (
	BackendS3        = "s3"
	BackendMinio     = "minio"
	BackendPresigned = "presigned"
)

// app is the wired set of orchestrators shared by every command.
type app struct {
	cfg          *config.Config
	uploadConfig *config.UploadConfig
	logger       log.Logger
	photos       *upload.Orchestrator
	avatars      *upload.Orchestrator
}

func newApp(ctx context.Context, cfg *config.Config, logger log.Logger) (*app, error) {
	uploadConfig, err := config.LoadUploadConfig(cfg.UploadConfigPath)
	if err != nil {
		return nil, err
	}

	photosProfile := uploadConfig.GetProfile(config.ProfileListingPhotos)
	avatarProfile := uploadConfig.GetProfile(config.ProfileAvatar)

	photos, err := newOrchestrator(ctx, cfg, photosProfile, logger)
	if err != nil {
		return nil, err
	}
	avatars, err := newOrchestrator(ctx, cfg, avatarProfile, logger)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:          cfg,
		uploadConfig: uploadConfig,
		logger:       logger,
		photos:       photos,
		avatars:      avatars,
	}, nil
}

func newOrchestrator(ctx context.Context, cfg *config.Config, profile *config.Profile, logger log.Logger) (*upload.Orchestrator, error) {
	store, err := newStore(ctx, cfg, profile, logger)
	if err != nil {
		return nil, err
	}
	driver := transfer.NewDriver(store, profile, logger)
	return upload.NewOrchestrator(driver, profile.MaxBatchCount, logger), nil
}

func newStore(ctx context.Context, cfg *config.Config, profile *config.Profile, logger log.Logger) (transfer.Store, error) {
	switch cfg.StorageBackend {
	case BackendS3, BackendPresigned:
		client, err := s3.NewClient(ctx, s3.Options{
			Region:        cfg.S3Region,
			Bucket:        cfg.S3Bucket,
			AccessKey:     cfg.AWSAccessKey,
			SecretKey:     cfg.AWSSecretKey,
			Endpoint:      cfg.S3Endpoint,
			PublicBaseURL: cfg.PublicBaseURL,
			PartSizeMB:    profile.PartSizeMB,
		})
		if err != nil {
			return nil, err
		}
		if cfg.StorageBackend == BackendPresigned {
			ttl := time.Duration(profile.PresignTTLSeconds) * time.Second
			return s3.NewPresignedUploader(client, ttl, cfg.PublicBaseURL, logger), nil
		}
		return client, nil

	case BackendMinio:
		client, err := minio.NewClient(minio.Options{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			Bucket:        cfg.S3Bucket,
			AccessKey:     cfg.AWSAccessKey,
			SecretKey:     cfg.AWSSecretKey,
			UseSSL:        cfg.MinioUseSSL,
			PublicBaseURL: cfg.PublicBaseURL,
			PartSizeMB:    profile.PartSizeMB,
		})
		if err != nil {
			return nil, err
		}
		return client, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q (want %s, %s or %s)",
			cfg.StorageBackend, BackendS3, BackendMinio, BackendPresigned)
	}
}
