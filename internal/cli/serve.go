package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/spf13/cobra"

	"listingmedia/internal/api"
	"listingmedia/internal/auth"
	"listingmedia/internal/config"
	"listingmedia/internal/draft"
)

func newServeCmd(cfg *config.Config, logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the draft and avatar upload API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			return serve(a)
		},
	}

	cmd.Flags().StringVar(&cfg.Port, "port", cfg.Port, "port to listen on")

	return cmd
}

func newMux(a *app, drafts *draft.Store) http.Handler {
	mux := http.NewServeMux()

	handler := api.NewHandler(a.photos, a.avatars, a.uploadConfig, drafts, a.logger)
	handler.Register(mux)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})

	return auth.APIKeyMiddleware(&auth.Config{
		APIKey: a.cfg.APIKey,
		Public: []string{"/health"},
	})(mux)
}

func serve(a *app) error {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", a.cfg.Port),
		Handler:      newMux(a, draft.NewStore()),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Infof("Starting server on port %s 🚀", a.cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed to start: %w", err)
	case <-quit:
	}

	a.logger.Printf("Shutting down server... 🛑")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	a.logger.Donef("Server exited")
	return nil
}
