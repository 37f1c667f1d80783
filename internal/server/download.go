package server

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/carbon-drive/3d-mapping/internal/mesh"
	"github.com/carbon-drive/3d-mapping/internal/storage"
)

const errFileNotFound = "File not found"

// handleDownload serves GET /api/download/{filename} from the output
// directory, falling back to the object storage mirror when the local copy is
// gone.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	if !isPlainName(name) {
		writeError(w, http.StatusNotFound, errFileNotFound)
		return
	}

	f, err := os.Open(filepath.Join(s.cfg.OutputDir, name))
	if err == nil {
		defer f.Close()
		info, statErr := f.Stat()
		if statErr == nil && info.Mode().IsRegular() {
			setDownloadHeaders(w, name)
			http.ServeContent(w, r, name, info.ModTime(), f)
			return
		}
	}

	if s.deps.Store != nil && strings.EqualFold(filepath.Ext(name), mesh.Extension) {
		s.downloadFromStore(w, r, name)
		return
	}
	writeError(w, http.StatusNotFound, errFileNotFound)
}

func (s *Server) downloadFromStore(w http.ResponseWriter, r *http.Request, name string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	obj, size, err := s.deps.Store.Get(ctx, storage.MeshKey(name))
	if errors.Is(err, storage.ErrObjectNotFound) {
		writeError(w, http.StatusNotFound, errFileNotFound)
		return
	}
	if err != nil {
		s.logger.Error("storage read failed",
			zap.String("rid", RequestIDFromContext(r.Context())),
			zap.String("name", name),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, "storage error")
		return
	}
	defer func() { _ = obj.Close() }()

	setDownloadHeaders(w, name)
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, obj)
}

// isPlainName accepts a single path element with no separators or dot names.
func isPlainName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return false
	}
	return filepath.Base(name) == name
}

func setDownloadHeaders(w http.ResponseWriter, name string) {
	if strings.EqualFold(filepath.Ext(name), mesh.Extension) {
		w.Header().Set("Content-Type", meshContentType)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
}
