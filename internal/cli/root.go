package cli

import (
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/spf13/cobra"

	"listingmedia/internal/config"
)

func NewRootCommand() *cobra.Command {
	cfg := config.Load()
	logger := log.NewLogger()
	logger.EnableDebugLog(cfg.Debug)

	rootCmd := &cobra.Command{
		Use:           "listingmedia",
		Short:         "Upload listing photos and profile avatars to object storage",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfg.StorageBackend, "backend", cfg.StorageBackend, "storage backend: s3, minio or presigned")
	rootCmd.PersistentFlags().StringVar(&cfg.UploadConfigPath, "upload-config", cfg.UploadConfigPath, "path to the upload profiles file")

	rootCmd.AddCommand(newServeCmd(cfg, logger))
	rootCmd.AddCommand(newUploadCmd(cfg, logger))

	return rootCmd
}

func Execute() error {
	return NewRootCommand().Execute()
}
