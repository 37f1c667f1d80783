package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/carbon-drive/3d-mapping/internal/intake"
	"github.com/carbon-drive/3d-mapping/internal/metrics"
	"github.com/carbon-drive/3d-mapping/internal/recon"
	"github.com/carbon-drive/3d-mapping/internal/storage"
)

const serviceName = "3d-mapping"

type Config struct {
	Addr           string // e.g. ":5000"
	OutputDir      string
	MaxBodyBytes   int64
	AllowedOrigins []string
	// RequestsPerMinute of zero disables rate limiting.
	RequestsPerMinute int
	Burst             int
	// TrustProxyHeaders keys clients by X-Forwarded-For / X-Real-IP. Enable
	// only behind a proxy that overwrites them.
	TrustProxyHeaders bool
}

// Deps are the collaborators the handlers call into. Store and Metrics are
// optional.
type Deps struct {
	Intake    *intake.Processor
	Generator recon.Generator
	Store     storage.ObjectStore
	Metrics   *metrics.Collector
	Logger    *zap.Logger
}

type Server struct {
	cfg        Config
	deps       Deps
	logger     *zap.Logger
	handler    http.Handler
	httpServer *http.Server
}

func New(cfg Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewCollector("mapping")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 50 << 20
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.Named("http"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/live", s.handleLive)
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("GET /api/download/{filename}", s.handleDownload)
	mux.Handle("GET /metrics", deps.Metrics.Handler())

	// Wrap middleware, outermost last:
	// recover -> requestID -> logging -> metrics -> cors -> security -> ratelimit -> mux
	var handler http.Handler = mux
	if cfg.RequestsPerMinute > 0 {
		handler = newRateLimiter(cfg.RequestsPerMinute, cfg.Burst, cfg.TrustProxyHeaders).middleware(handler)
	}
	handler = securityHeadersMiddleware(handler)
	handler = corsMiddleware(cfg.AllowedOrigins)(handler)
	handler = metricsMiddleware(deps.Metrics)(handler)
	handler = loggingMiddleware(s.logger, cfg.TrustProxyHeaders)(handler)
	handler = requestIDMiddleware(handler)
	handler = recoverMiddleware(s.logger)(handler)
	s.handler = handler

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          zap.NewStdLog(s.logger),
	}
	return s
}

// Handler returns the fully wrapped handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("listening", zap.String("addr", ln.Addr().String()))
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
