// Package recon produces 3D reconstructions from preprocessed views.
//
// Generator is the contract the HTTP layer depends on. Stub is a deterministic
// stand-in that emits zero depth maps, a synthetic camera rig and a placeholder
// mesh, so a trained model can replace it without touching callers.
package recon

import (
	"context"
	"errors"

	"github.com/carbon-drive/3d-mapping/internal/scene"
)

// StatusSuccess marks a completed generation.
const StatusSuccess = "success"

// DefaultOutputName is used when the caller does not name the output mesh.
const DefaultOutputName = "model.obj"

var (
	// ErrNoViews is returned when generation is requested with no input views.
	ErrNoViews = errors.New("no views to reconstruct")
	// ErrModelLoad is returned when model weights cannot be loaded.
	ErrModelLoad = errors.New("model load failed")
)

// Result is the output of one generation call.
type Result struct {
	Status      string
	ViewCount   int
	OutputPath  string
	DepthMaps   []scene.DepthMap
	CameraPoses []scene.Pose
	MetricScale float64
}

// Generator reconstructs a mesh from an ordered list of views.
type Generator interface {
	// Load prepares the model. Calling it again once loaded is a no-op.
	Load() error
	// Ready loads the model if needed and reports whether it is usable.
	Ready() bool
	// Generate writes a mesh named outputName and returns per-view outputs.
	Generate(ctx context.Context, views []scene.View, outputName string) (*Result, error)
}
