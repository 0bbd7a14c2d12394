package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/gilchrisn/influence-seeding/pkg/api"
	"github.com/gilchrisn/influence-seeding/pkg/pipeline"
	"github.com/gilchrisn/influence-seeding/pkg/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the run API and Prometheus metrics over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	addAlgorithmFlags(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "listen address")
	serveCmd.Flags().String("store", "", "badger directory for archived runs (in-memory when empty)")
	serveCmd.Flags().String("data-dir", ".", "directory run requests may read input files from")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	defaults, err := pipeline.FromConfig(cfg)
	if err != nil {
		return err
	}

	runs, err := store.Open(cfg.StorePath(), logger)
	if err != nil {
		return err
	}
	defer runs.Close()

	server := &http.Server{
		Addr:              cfg.ServerAddress(),
		Handler:           api.NewRouter(api.NewHandlers(runs, defaults, cfg.DataDir())),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := setupSignalContext()
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("address", server.Addr).Str("store", cfg.StorePath()).Str("data_dir", cfg.DataDir()).Msg("Starting server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}
