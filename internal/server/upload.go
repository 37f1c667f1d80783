package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carbon-drive/3d-mapping/internal/intake"
	"github.com/carbon-drive/3d-mapping/internal/mesh"
	"github.com/carbon-drive/3d-mapping/internal/metrics"
	"github.com/carbon-drive/3d-mapping/internal/scene"
	"github.com/carbon-drive/3d-mapping/internal/storage"
)

const (
	uploadField     = "images"
	meshContentType = "model/obj"
)

// uploadResp is the JSON body of a successful upload.
type uploadResp struct {
	Status            string       `json:"status"`
	NumImages         int          `json:"num_images"`
	NumViewsProcessed int          `json:"num_views_processed"`
	OutputFile        string       `json:"output_file"`
	DownloadURL       string       `json:"download_url"`
	Skipped           []scene.Skip `json:"skipped,omitempty"`
}

type uploadErrorResp struct {
	Error   string       `json:"error"`
	Skipped []scene.Skip `json:"skipped,omitempty"`
}

// handleUpload handles POST /api/upload. Every named part of the "images"
// field is saved to the upload directory, the saved files are preprocessed
// into views, and the generator turns the views into a mesh under a name
// unique to this request.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	log := s.logger.With(zap.String("rid", RequestIDFromContext(r.Context())))
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)

	mr, err := r.MultipartReader()
	if err != nil {
		s.rejectUpload(w, http.StatusBadRequest, "No images provided", nil)
		return
	}

	var (
		sawField bool
		paths    []string
		skipped  []scene.Skip
	)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.rejectBodyError(w, err)
			return
		}

		if part.FormName() != uploadField {
			_ = part.Close()
			continue
		}
		sawField = true

		filename := part.FileName()
		if filename == "" {
			// A file input submitted with nothing selected.
			_ = part.Close()
			continue
		}

		data, err := io.ReadAll(part)
		_ = part.Close()
		if err != nil {
			s.rejectBodyError(w, err)
			return
		}

		path, err := s.deps.Intake.SaveUploadedFile(data, filename)
		if errors.Is(err, intake.ErrInvalidFilename) {
			skipped = append(skipped, scene.Skip{Path: filename, Reason: err.Error(), Err: err})
			continue
		}
		if err != nil {
			var se *intake.SaveError
			retryable := errors.As(err, &se) && se.Retryable()
			log.Error("save upload failed", zap.String("filename", filename), zap.Bool("retryable", retryable), zap.Error(err))
			s.deps.Metrics.RecordUpload(metrics.ResultServerError, len(paths), 0)
			writeError(w, http.StatusInternalServerError, "Failed to save uploaded file")
			return
		}
		paths = append(paths, path)
	}

	if !sawField {
		s.rejectUpload(w, http.StatusBadRequest, "No images provided", nil)
		return
	}
	if len(paths) == 0 {
		s.recordSkips(skipped)
		s.rejectUpload(w, http.StatusBadRequest, "No selected files", skipped)
		return
	}

	views, rejected := s.deps.Intake.PreprocessImages(paths)
	skipped = append(skipped, rejected...)
	s.recordSkips(skipped)

	if len(views) == 0 {
		s.deps.Metrics.RecordUpload(metrics.ResultClientError, len(paths), 0)
		writeJSON(w, http.StatusBadRequest, uploadErrorResp{Error: "Failed to process images", Skipped: skipped})
		return
	}

	outputName := "model-" + uuid.NewString() + mesh.Extension
	start := time.Now()
	res, err := s.deps.Generator.Generate(r.Context(), views, outputName)
	s.deps.Metrics.ObserveGeneration(time.Since(start))
	if err != nil {
		log.Error("generation failed", zap.Int("views", len(views)), zap.Error(err))
		s.deps.Metrics.RecordUpload(metrics.ResultServerError, len(paths), len(views))
		writeError(w, http.StatusInternalServerError, "Failed to generate 3D model")
		return
	}

	s.mirror(r, outputName, res.OutputPath, log)

	s.deps.Metrics.RecordUpload(metrics.ResultSuccess, len(paths), res.ViewCount)
	log.Info("upload processed",
		zap.Int("images", len(paths)),
		zap.Int("views", res.ViewCount),
		zap.Int("skipped", len(skipped)),
		zap.String("output", outputName),
	)

	writeJSON(w, http.StatusOK, uploadResp{
		Status:            res.Status,
		NumImages:         len(paths),
		NumViewsProcessed: res.ViewCount,
		OutputFile:        outputName,
		DownloadURL:       "/api/download/" + outputName,
		Skipped:           skipped,
	})
}

// mirror copies the mesh to object storage. Failures only cost the copy.
func (s *Server) mirror(r *http.Request, name, path string, log *zap.Logger) {
	if s.deps.Store == nil {
		return
	}
	if err := s.deps.Store.Put(r.Context(), storage.MeshKey(name), path, meshContentType); err != nil {
		log.Warn("mirror mesh failed", zap.String("output", name), zap.Error(err))
		s.deps.Metrics.RecordMirrorFailure()
	}
}

func (s *Server) recordSkips(skipped []scene.Skip) {
	for _, sk := range skipped {
		s.deps.Metrics.RecordSkip(intake.Kind(sk.Err))
	}
}

func (s *Server) rejectUpload(w http.ResponseWriter, status int, msg string, skipped []scene.Skip) {
	s.deps.Metrics.RecordUpload(metrics.ResultClientError, 0, 0)
	writeJSON(w, status, uploadErrorResp{Error: msg, Skipped: skipped})
}

// rejectBodyError maps a failure while reading the multipart stream.
func (s *Server) rejectBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		s.deps.Metrics.RecordUpload(metrics.ResultClientError, 0, 0)
		// MaxBytesReader cannot see through the middleware wrappers, so the
		// unread remainder of the body is dropped with the connection here.
		w.Header().Set("Connection", "close")
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	s.rejectUpload(w, http.StatusBadRequest, "Malformed multipart body", nil)
}
