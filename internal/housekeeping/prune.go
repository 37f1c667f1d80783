// Package housekeeping removes stale uploads and generated meshes. It runs as
// a one-shot command; scheduling is left to cron or a Kubernetes CronJob.
package housekeeping

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/carbon-drive/3d-mapping/internal/mesh"
	"github.com/carbon-drive/3d-mapping/internal/storage"
)

// Options controls one prune run.
type Options struct {
	UploadDir string
	OutputDir string
	MaxAge    time.Duration
	DryRun    bool
	// Store, when set, also loses the mirrored copy of every pruned mesh.
	Store storage.ObjectStore
	Now   func() time.Time
}

// Report summarises a run.
type Report struct {
	Uploads  int
	Outputs  int
	Objects  int
	Bytes    int64
	Failures int
}

// Prune deletes regular files older than MaxAge from both directories.
// Missing directories are skipped. Individual failures are logged and counted
// rather than aborting the run.
func Prune(ctx context.Context, opts Options, logger *zap.Logger) (Report, error) {
	if opts.MaxAge <= 0 {
		return Report{}, errors.New("max age must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("prune")
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	cutoff := now().Add(-opts.MaxAge)
	start := time.Now()

	var rep Report

	if opts.UploadDir != "" {
		n, size, failed, err := pruneDir(ctx, opts.UploadDir, cutoff, opts.DryRun, logger, nil)
		if err != nil {
			return rep, err
		}
		rep.Uploads, rep.Bytes, rep.Failures = n, rep.Bytes+size, rep.Failures+failed
	}

	if opts.OutputDir != "" {
		onMesh := func(name string) {
			if opts.Store == nil || !strings.EqualFold(filepath.Ext(name), mesh.Extension) {
				return
			}
			if opts.DryRun {
				rep.Objects++
				return
			}
			if err := opts.Store.Remove(ctx, storage.MeshKey(name)); err != nil {
				logger.Warn("remove mirrored mesh failed", zap.String("name", name), zap.Error(err))
				rep.Failures++
				return
			}
			rep.Objects++
		}
		n, size, failed, err := pruneDir(ctx, opts.OutputDir, cutoff, opts.DryRun, logger, onMesh)
		if err != nil {
			return rep, err
		}
		rep.Outputs, rep.Bytes, rep.Failures = n, rep.Bytes+size, rep.Failures+failed
	}

	logger.Info("prune complete",
		zap.Bool("dry_run", opts.DryRun),
		zap.Int("uploads", rep.Uploads),
		zap.Int("outputs", rep.Outputs),
		zap.Int("objects", rep.Objects),
		zap.Int64("bytes", rep.Bytes),
		zap.Int("failures", rep.Failures),
		zap.Duration("took", time.Since(start)),
	)
	return rep, nil
}

func pruneDir(ctx context.Context, dir string, cutoff time.Time, dryRun bool, logger *zap.Logger, onRemoved func(string)) (int, int64, int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, 0, 0, nil
	}
	if err != nil {
		return 0, 0, 0, fmt.Errorf("read %s: %w", dir, err)
	}

	var removed, failed int
	var size int64
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, size, failed, err
		}
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// vanished between ReadDir and Info
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(dir, e.Name())
		if !dryRun {
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				logger.Warn("remove failed", zap.String("path", path), zap.Error(err))
				failed++
				continue
			}
		}
		logger.Debug("pruned", zap.String("path", path), zap.Time("modified", info.ModTime()))
		removed++
		size += info.Size()
		if onRemoved != nil {
			onRemoved(e.Name())
		}
	}
	return removed, size, failed, nil
}
