package server

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbon-drive/3d-mapping/internal/metrics"
)

func TestUpload_NotMultipart(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader(`{"images":[]}`))
	req.Header.Set("Content-Type", "application/json")
	rr := env.do(req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error":"No images provided"}`, rr.Body.String())
}

func TestUpload_NoImagesField(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(multipartRequest(t, part{field: "photos", filename: "a.png", data: []byte("x")}))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error":"No images provided"}`, rr.Body.String())
	assert.Empty(t, dirEntries(t, env.uploadDir))
	assert.Empty(t, dirEntries(t, env.outputDir))
}

func TestUpload_NoSelectedFiles(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(multipartRequest(t,
		part{field: "images", filename: ""},
		part{field: "images", filename: ""},
	))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error":"No selected files"}`, rr.Body.String())
	assert.Empty(t, dirEntries(t, env.outputDir))
}

func TestUpload_PlainFieldIsNotAFile(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(multipartRequest(t, part{field: "images", filename: "-", data: []byte("hello")}))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error":"No selected files"}`, rr.Body.String())
}

func TestUpload_OnlyInvalidFiles(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(multipartRequest(t, part{field: "images", filename: "notes.txt", data: []byte("not an image")}))

	require.Equal(t, http.StatusBadRequest, rr.Code)
	body := decodeJSON[uploadErrorResp](t, rr)
	assert.Equal(t, "Failed to process images", body.Error)
	require.Len(t, body.Skipped, 1)
	assert.Equal(t, "notes.txt", body.Skipped[0].Path)
	assert.Contains(t, body.Skipped[0].Reason, "unsupported file extension")
	assert.Empty(t, dirEntries(t, env.outputDir))

	assert.Contains(t, scrape(t, env), `mapping_images_skipped_total{reason="unsupported_format"} 1`)
}

func scrape(t *testing.T, env *testEnv) string {
	t.Helper()
	rr := env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestUpload_SingleJPEGRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	img := encodeImage(t, 100, 100, red, imaging.JPEG)
	rr := env.do(multipartRequest(t, part{field: "images", filename: "red.jpg", data: img}))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decodeJSON[uploadResp](t, rr)
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, 1, body.NumImages)
	assert.Equal(t, 1, body.NumViewsProcessed)
	assert.True(t, strings.HasPrefix(body.OutputFile, "model-"), body.OutputFile)
	assert.True(t, strings.HasSuffix(body.OutputFile, ".obj"), body.OutputFile)
	assert.Equal(t, "/api/download/"+body.OutputFile, body.DownloadURL)
	assert.Empty(t, body.Skipped)
	assert.Equal(t, []string{"red.jpg"}, dirEntries(t, env.uploadDir))

	dl := env.do(httptest.NewRequest(http.MethodGet, body.DownloadURL, nil))
	require.Equal(t, http.StatusOK, dl.Code)
	assert.Equal(t, "model/obj", dl.Header().Get("Content-Type"))
	assert.Contains(t, dl.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, dl.Header().Get("Content-Disposition"), body.OutputFile)

	obj := dl.Body.String()
	assert.True(t, strings.HasPrefix(obj, "# Mock 3D Model Output"), obj)
	assert.Contains(t, obj, "\nv ")
	assert.Contains(t, obj, "\nf ")
}

func TestUpload_CountsEveryImage(t *testing.T) {
	env := newTestEnv(t)

	png := encodeImage(t, 32, 24, red, imaging.PNG)
	bmp := encodeImage(t, 16, 16, red, imaging.BMP)
	rr := env.do(multipartRequest(t,
		part{field: "images", filename: "a.png", data: png},
		part{field: "images", filename: "b.png", data: png},
		part{field: "images", filename: "c.bmp", data: bmp},
	))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decodeJSON[uploadResp](t, rr)
	assert.Equal(t, 3, body.NumImages)
	assert.Equal(t, 3, body.NumViewsProcessed)
	assert.Contains(t, scrape(t, env), `mapping_uploads_total{result="success"} 1`)
}

func TestUpload_PartialSkipsAreReported(t *testing.T) {
	env := newTestEnv(t)

	png := encodeImage(t, 8, 8, red, imaging.PNG)
	rr := env.do(multipartRequest(t,
		part{field: "images", filename: "good.png", data: png},
		part{field: "images", filename: "broken.png", data: []byte("\x89PNG truncated")},
		part{field: "images", filename: ""},
	))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decodeJSON[uploadResp](t, rr)
	assert.Equal(t, 2, body.NumImages)
	assert.Equal(t, 1, body.NumViewsProcessed)
	require.Len(t, body.Skipped, 1)
	assert.Equal(t, "broken.png", body.Skipped[0].Path)
}

func TestUpload_StripsDirectoriesFromFilenames(t *testing.T) {
	env := newTestEnv(t)

	png := encodeImage(t, 8, 8, red, imaging.PNG)
	rr := env.do(multipartRequest(t, part{field: "images", filename: `..\..\evil.png`, data: png}))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, []string{"evil.png"}, dirEntries(t, env.uploadDir))
}

func TestUpload_UniqueOutputPerRequest(t *testing.T) {
	env := newTestEnv(t)
	png := encodeImage(t, 8, 8, red, imaging.PNG)

	first := decodeJSON[uploadResp](t, env.do(multipartRequest(t, part{field: "images", filename: "a.png", data: png})))
	second := decodeJSON[uploadResp](t, env.do(multipartRequest(t, part{field: "images", filename: "a.png", data: png})))

	assert.NotEqual(t, first.OutputFile, second.OutputFile)
	assert.ElementsMatch(t, []string{first.OutputFile, second.OutputFile}, dirEntries(t, env.outputDir))
}

func TestUpload_BodyTooLarge(t *testing.T) {
	env := newTestEnv(t, func(c *Config, _ *Deps) { c.MaxBodyBytes = 1024 })

	rr := env.do(multipartRequest(t, part{field: "images", filename: "big.png", data: bytes.Repeat([]byte("a"), 4096)}))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.JSONEq(t, `{"error":"Request body too large"}`, rr.Body.String())
	assert.Equal(t, "close", rr.Header().Get("Connection"))
	assert.Empty(t, dirEntries(t, env.outputDir))
}

func TestUpload_GenerationFailure(t *testing.T) {
	env := newTestEnv(t, withGenerator(failingGenerator{}))

	png := encodeImage(t, 8, 8, red, imaging.PNG)
	rr := env.do(multipartRequest(t, part{field: "images", filename: "a.png", data: png}))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"Failed to generate 3D model"}`, rr.Body.String())
	assert.Contains(t, scrape(t, env), `mapping_uploads_total{result="`+metrics.ResultServerError+`"} 1`)
}

func TestUpload_MirrorsMesh(t *testing.T) {
	store := newMemStore()
	env := newTestEnv(t, withStore(store))

	png := encodeImage(t, 8, 8, red, imaging.PNG)
	rr := env.do(multipartRequest(t, part{field: "images", filename: "a.png", data: png}))
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeJSON[uploadResp](t, rr)
	data, ok := store.objects["meshes/"+body.OutputFile]
	require.True(t, ok, "mesh not mirrored")
	assert.True(t, bytes.HasPrefix(data, []byte("# Mock 3D Model Output")))
}

func TestUpload_MirrorFailureDoesNotFailRequest(t *testing.T) {
	store := newMemStore()
	store.putErr = errors.New("bucket gone")
	env := newTestEnv(t, withStore(store))

	png := encodeImage(t, 8, 8, red, imaging.PNG)
	rr := env.do(multipartRequest(t, part{field: "images", filename: "a.png", data: png}))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, scrape(t, env), "mapping_mirror_failures_total 1")
}
