package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/spf13/cobra"

	"listingmedia/internal/config"
	"listingmedia/internal/transfer"
	"listingmedia/internal/upload"
)

func newUploadCmd(cfg *config.Config, logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload local files as one batch",
	}

	var existing int
	photosCmd := &cobra.Command{
		Use:   "photos FILE...",
		Short: "Upload listing photos; all succeed or none are kept",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if existing < 0 {
				return fmt.Errorf("--existing must not be negative, got %d", existing)
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			files, err := localFiles(args)
			if err != nil {
				return err
			}

			result, err := a.photos.Submit(cmd.Context(), files, existing, percentPrinter(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			for _, ref := range result.References {
				fmt.Fprintln(cmd.OutOrStdout(), ref)
			}
			return nil
		},
	}
	photosCmd.Flags().IntVar(&existing, "existing", 0, "number of photos already attached to the listing")

	avatarCmd := &cobra.Command{
		Use:   "avatar FILE",
		Short: "Upload a profile avatar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			files, err := localFiles(args)
			if err != nil {
				return err
			}

			ref, err := a.avatars.SubmitOne(cmd.Context(), files[0], percentPrinter(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ref)
			return nil
		},
	}

	cmd.AddCommand(photosCmd, avatarCmd)
	return cmd
}

func localFiles(paths []string) ([]transfer.File, error) {
	files := make([]transfer.File, len(paths))
	for i, p := range paths {
		f, err := transfer.NewLocalFile(p)
		if err != nil {
			return nil, err
		}
		files[i] = f
	}
	return files, nil
}

// percentPrinter writes "Uploading N%" each time the whole percentage advances.
func percentPrinter(w io.Writer) upload.ProgressFunc {
	var mu sync.Mutex
	last := -1
	return func(fraction float64) {
		mu.Lock()
		defer mu.Unlock()
		percent := int(fraction*100 + 0.5)
		if percent == last {
			return
		}
		last = percent
		fmt.Fprintf(w, "Uploading %d%%\n", percent)
	}
}
