package recon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/carbon-drive/3d-mapping/internal/intake"
	"github.com/carbon-drive/3d-mapping/internal/mesh"
	"github.com/carbon-drive/3d-mapping/internal/scene"
)

// MeshComment is the first line of every mesh the stub writes.
const MeshComment = "Mock 3D Model Output"

// CameraStep is the x offset between consecutive synthetic cameras.
const CameraStep = 0.1

// Stub is a Generator that returns fixed, shape-correct outputs.
type Stub struct {
	outputDir string
	loaded    atomic.Bool
	logger    *zap.Logger
}

var _ Generator = (*Stub)(nil)

// NewStub creates a Stub writing meshes under outputDir, creating it if needed.
func NewStub(outputDir string, logger *zap.Logger) (*Stub, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Stub{outputDir: outputDir, logger: logger.Named("recon")}, nil
}

// OutputDir returns the directory meshes are written to.
func (s *Stub) OutputDir() string {
	return s.outputDir
}

// Loaded reports the current state without triggering a load.
func (s *Stub) Loaded() bool {
	return s.loaded.Load()
}

// Load marks the model as loaded. The stub has no weights and never fails.
func (s *Stub) Load() error {
	if s.loaded.CompareAndSwap(false, true) {
		s.logger.Info("model loaded", zap.String("impl", "stub"))
	}
	return nil
}

// Ready loads the model if needed.
func (s *Stub) Ready() bool {
	if !s.loaded.Load() {
		if err := s.Load(); err != nil {
			return false
		}
	}
	return s.loaded.Load()
}

// Generate implements Generator.
func (s *Stub) Generate(ctx context.Context, views []scene.View, outputName string) (*Result, error) {
	if len(views) == 0 {
		return nil, ErrNoViews
	}
	if err := s.Load(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}

	start := time.Now()
	depth := DepthMapsFor(views)
	poses := CameraPoses(len(views))

	name, err := meshName(outputName)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := filepath.Join(s.outputDir, name)
	if err := mesh.Placeholder(MeshComment).WriteFile(out); err != nil {
		return nil, fmt.Errorf("write mesh: %w", err)
	}

	s.logger.Info("generated mesh",
		zap.Int("views", len(views)),
		zap.String("output", out),
		zap.Duration("took", time.Since(start)),
	)

	return &Result{
		Status:      StatusSuccess,
		ViewCount:   len(views),
		OutputPath:  out,
		DepthMaps:   depth,
		CameraPoses: poses,
		MetricScale: 1.0,
	}, nil
}

// DepthMapsFor returns one zero-filled depth map per view, sized to match it.
func DepthMapsFor(views []scene.View) []scene.DepthMap {
	maps := make([]scene.DepthMap, len(views))
	for i, v := range views {
		maps[i] = scene.NewDepthMap(v.Pixels.Width, v.Pixels.Height)
	}
	return maps
}

// CameraPoses returns n poses with identity rotation, the i-th translated
// i*CameraStep along x.
func CameraPoses(n int) []scene.Pose {
	poses := make([]scene.Pose, n)
	for i := range poses {
		p := scene.IdentityPose()
		p[0][3] = float64(i) * CameraStep
		poses[i] = p
	}
	return poses
}

// meshName reduces name to a plain file name ending in the mesh extension.
func meshName(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return DefaultOutputName, nil
	}
	base, err := intake.SanitizeFilename(name)
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(filepath.Ext(base), mesh.Extension) {
		base += mesh.Extension
	}
	return base, nil
}
