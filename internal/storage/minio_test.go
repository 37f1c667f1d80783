package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in           string
		wantEndpoint string
		wantSecure   bool
		wantErr      bool
	}{
		{"minio:9000", "minio:9000", false, false},
		{"http://minio:9000", "minio:9000", false, false},
		{"https://minio:9000", "minio:9000", true, false},
		{"http://minio:9000/", "minio:9000", false, false},
		{"  minio:9000  ", "minio:9000", false, false},
		{"http://minio:9000/foo", "", false, true},
		{"http://", "", false, true},
		{"", "", false, true},
	}

	for _, tt := range tests {
		ep, secure, err := normaliseEndpoint(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.wantEndpoint, ep)
		assert.Equal(t, tt.wantSecure, secure)
	}
}

func TestConfig_Enabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.False(t, Config{Endpoint: "minio:9000"}.Enabled())
	assert.False(t, Config{Bucket: "meshes"}.Enabled())
	assert.True(t, Config{Endpoint: "minio:9000", Bucket: "meshes"}.Enabled())
}

func TestNewMinioStore_Incomplete(t *testing.T) {
	_, err := NewMinioStore(context.Background(), Config{Endpoint: "minio:9000"}, nil)
	assert.Error(t, err)
}

func TestMapNotFound(t *testing.T) {
	err := mapNotFound("meshes/a.obj", minio.ErrorResponse{Code: "NoSuchKey"})
	assert.ErrorIs(t, err, ErrObjectNotFound)

	err = mapNotFound("meshes/a.obj", errors.New("connection refused"))
	assert.NotErrorIs(t, err, ErrObjectNotFound)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestMeshKey(t *testing.T) {
	assert.Equal(t, "meshes/model-1.obj", MeshKey("model-1.obj"))
}
