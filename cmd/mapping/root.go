package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/carbon-drive/3d-mapping/internal/config"
	"github.com/carbon-drive/3d-mapping/internal/logging"
	"github.com/carbon-drive/3d-mapping/internal/storage"
)

// newRootCmd builds the command tree. A fresh tree per call keeps flag state
// out of package globals.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "mapping",
		Short:        "3D mapping service",
		Long:         "Accepts image uploads, turns them into a 3D mesh and serves the result.",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "path to a YAML config file")

	root.AddCommand(newServeCmd())
	root.AddCommand(newPruneCmd())
	root.AddCommand(newInspectCmd())
	return root
}

// loadConfig reads --config and builds the logger it describes.
func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logger, nil
}

// openStore connects to object storage when it is configured. A nil store
// with a nil error means the mirror is disabled.
func openStore(ctx context.Context, cfg storage.Config, logger *zap.Logger) (storage.ObjectStore, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	store, err := storage.NewMinioStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return storage.NewBreakerStore(store, storage.DefaultMaxFailures, storage.DefaultCooldown, logger), nil
}
