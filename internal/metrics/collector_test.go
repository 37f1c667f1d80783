package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/api/download/model-1.obj": "/api/download/:file",
		"/api/download/":            "other",
		"/api/upload":               "/api/upload",
		"/api/health":               "/api/health",
		"/metrics":                  "/metrics",
		"/wp-admin":                 "other",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizePath(in), in)
	}
}

func TestCollector_Records(t *testing.T) {
	c := NewCollector("mapping")

	c.RecordHTTPRequest(http.MethodGet, "/api/download/a.obj", 200, 10*time.Millisecond)
	c.RecordHTTPRequest(http.MethodGet, "/api/download/b.obj", 200, 10*time.Millisecond)
	c.RecordUpload(ResultSuccess, 3, 2)
	c.RecordUpload(ResultClientError, 1, 0)
	c.RecordSkip("unsupported")
	c.RecordMirrorFailure()
	c.ObserveGeneration(50 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "/api/download/:file", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.uploadsTotal.WithLabelValues(ResultSuccess)))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.imagesReceived))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.viewsProcessed))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.imagesSkipped.WithLabelValues("unsupported")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.mirrorFailures))
}

func TestCollector_IndependentRegistries(t *testing.T) {
	// a second collector must not panic on duplicate registration
	a := NewCollector("mapping")
	b := NewCollector("mapping")
	a.RecordMirrorFailure()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.mirrorFailures))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.mirrorFailures))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("mapping")
	c.RecordUpload(ResultSuccess, 1, 1)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `mapping_uploads_total{result="success"} 1`)
}
