package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/carbon-drive/3d-mapping/internal/housekeeping"
)

func newPruneCmd() *cobra.Command {
	var (
		maxAge time.Duration
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete uploads and meshes older than --max-age",
		Long: "Delete uploaded images and generated meshes older than --max-age, " +
			"including mirrored copies in object storage. Intended to run from cron.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			store, err := openStore(cmd.Context(), cfg.Storage, logger)
			if err != nil {
				return err
			}

			rep, err := housekeeping.Prune(cmd.Context(), housekeeping.Options{
				UploadDir: cfg.UploadDir,
				OutputDir: cfg.OutputDir,
				MaxAge:    maxAge,
				DryRun:    dryRun,
				Store:     store,
			}, logger)
			if err != nil {
				return err
			}

			verb := "removed"
			if dryRun {
				verb = "would remove"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d upload(s), %d mesh(es), %d object(s), %d bytes\n",
				verb, rep.Uploads, rep.Outputs, rep.Objects, rep.Bytes)
			if rep.Failures > 0 {
				return fmt.Errorf("%d file(s) could not be removed", rep.Failures)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 24*time.Hour, "delete files older than this")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be deleted without deleting")
	return cmd
}
