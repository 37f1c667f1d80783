package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/carbon-drive/3d-mapping/internal/config"
	"github.com/carbon-drive/3d-mapping/internal/intake"
	"github.com/carbon-drive/3d-mapping/internal/metrics"
	"github.com/carbon-drive/3d-mapping/internal/recon"
	"github.com/carbon-drive/3d-mapping/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logger)
		},
	}
	cmd.Flags().String("addr", "", "listen address, overrides the config file")
	return cmd
}

// runServe blocks until ctx is done or the listener fails, then drains
// in-flight requests for up to cfg.ShutdownTimeout.
func runServe(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	proc, err := intake.New(cfg.UploadDir, logger)
	if err != nil {
		return err
	}
	gen, err := recon.NewStub(cfg.OutputDir, logger)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Addr:              cfg.Addr,
		OutputDir:         cfg.OutputDir,
		MaxBodyBytes:      cfg.MaxBodyBytes,
		AllowedOrigins:    cfg.CORS.AllowedOrigins,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:             cfg.RateLimit.Burst,
		TrustProxyHeaders: cfg.RateLimit.TrustProxyHeaders,
	}, server.Deps{
		Intake:    proc,
		Generator: gen,
		Store:     store,
		Metrics:   metrics.NewCollector("mapping"),
		Logger:    logger,
	})

	logger.Info("starting",
		zap.String("addr", cfg.Addr),
		zap.String("upload_dir", cfg.UploadDir),
		zap.String("output_dir", cfg.OutputDir),
		zap.Bool("mirror", store != nil),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
