package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/catalogforge/ingestpipe/internal/adapter/inbound/httpwebhook"
	"github.com/catalogforge/ingestpipe/internal/app"
)

var (
	serveSource string
	serveAddr   string
	serveDev    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the pipeline behind a webhook HTTP endpoint",
	Long: `Serve wires one source's pipeline behind httpwebhook.Handler and
listens for POST batches until interrupted. Each request body is a JSON
array of {"external_id": ..., "payload": {...}} items, exactly like
run's --batch file; the difference is the caller is a live upstream
rather than a file on disk.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveSource, "source", "", "source_id to serve (required)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "address to listen on")
	serveCmd.Flags().BoolVar(&serveDev, "dev", false, "enable development mode (relaxed config, in-memory adapters)")
	_ = serveCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadAndValidateConfig(serveDev)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)

	recorder, closeObs, err := buildRecorder()
	if err != nil {
		return err
	}
	defer closeObs()

	built, err := app.BuildPipeline(cfg, serveSource, logger, recorder)
	if err != nil {
		return err
	}
	defer built.Close()

	handler := httpwebhook.NewHandler(built.Pipeline, logger)
	server := &http.Server{
		Addr:              serveAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving webhook intake", "source", serveSource, "addr", serveAddr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}
}
