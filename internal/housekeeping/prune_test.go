package housekeeping

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeStore struct {
	mu      sync.Mutex
	removed []string
	failOn  string
}

func (f *fakeStore) Put(context.Context, string, string, string) error { return nil }
func (f *fakeStore) Get(context.Context, string) (io.ReadCloser, int64, error) {
	return nil, 0, errors.New("not implemented")
}
func (f *fakeStore) Ping(context.Context) error { return nil }
func (f *fakeStore) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if key == f.failOn {
		return errors.New("boom")
	}
	f.removed = append(f.removed, key)
	return nil
}

func writeAged(t *testing.T, dir, name string, age time.Duration, now time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	mt := now.Add(-age)
	require.NoError(t, os.Chtimes(path, mt, mt))
	return path
}

func TestPrune_RemovesOnlyOldFiles(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	uploads, outputs := t.TempDir(), t.TempDir()

	oldUpload := writeAged(t, uploads, "a.jpg", 48*time.Hour, now)
	newUpload := writeAged(t, uploads, "b.jpg", time.Hour, now)
	oldMesh := writeAged(t, outputs, "model-1.obj", 30*time.Hour, now)
	newMesh := writeAged(t, outputs, "model-2.obj", 2*time.Hour, now)
	require.NoError(t, os.Mkdir(filepath.Join(uploads, "sub"), 0o755))

	store := &fakeStore{}
	rep, err := Prune(context.Background(), Options{
		UploadDir: uploads,
		OutputDir: outputs,
		MaxAge:    24 * time.Hour,
		Store:     store,
		Now:       func() time.Time { return now },
	}, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Uploads)
	assert.Equal(t, 1, rep.Outputs)
	assert.Equal(t, 1, rep.Objects)
	assert.Equal(t, int64(2), rep.Bytes)
	assert.Zero(t, rep.Failures)

	assert.NoFileExists(t, oldUpload)
	assert.NoFileExists(t, oldMesh)
	assert.FileExists(t, newUpload)
	assert.FileExists(t, newMesh)
	assert.DirExists(t, filepath.Join(uploads, "sub"))
	assert.Equal(t, []string{"meshes/model-1.obj"}, store.removed)
}

func TestPrune_DryRunKeepsFiles(t *testing.T) {
	now := time.Now()
	outputs := t.TempDir()
	old := writeAged(t, outputs, "model.obj", 72*time.Hour, now)

	store := &fakeStore{}
	rep, err := Prune(context.Background(), Options{
		OutputDir: outputs,
		MaxAge:    time.Hour,
		DryRun:    true,
		Store:     store,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Outputs)
	assert.Equal(t, 1, rep.Objects)
	assert.FileExists(t, old)
	assert.Empty(t, store.removed)
}

func TestPrune_StoreFailureIsCounted(t *testing.T) {
	now := time.Now()
	outputs := t.TempDir()
	writeAged(t, outputs, "model-x.obj", 72*time.Hour, now)

	core, logs := observer.New(zap.WarnLevel)
	store := &fakeStore{failOn: "meshes/model-x.obj"}
	rep, err := Prune(context.Background(), Options{
		OutputDir: outputs,
		MaxAge:    time.Hour,
		Store:     store,
	}, zap.New(core))
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Outputs)
	assert.Equal(t, 0, rep.Objects)
	assert.Equal(t, 1, rep.Failures)
	assert.Equal(t, 1, logs.FilterMessage("remove mirrored mesh failed").Len())
}

func TestPrune_MissingDirIsSkipped(t *testing.T) {
	rep, err := Prune(context.Background(), Options{
		UploadDir: filepath.Join(t.TempDir(), "missing"),
		MaxAge:    time.Hour,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, Report{}, rep)
}

func TestPrune_RejectsNonPositiveAge(t *testing.T) {
	_, err := Prune(context.Background(), Options{UploadDir: t.TempDir()}, nil)
	assert.Error(t, err)
}

func TestPrune_CanceledContext(t *testing.T) {
	uploads := t.TempDir()
	writeAged(t, uploads, "a.png", 48*time.Hour, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Prune(ctx, Options{UploadDir: uploads, MaxAge: time.Hour}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
