// Package server exposes the archiver over HTTP: document upload and
// retrieval, full-text search, rule management, consume-directory scans and
// the operational endpoints.
package server

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/brelow/eml-archiver/internal/consumer"
	"github.com/brelow/eml-archiver/internal/metrics"
	"github.com/brelow/eml-archiver/internal/registry"
	"github.com/brelow/eml-archiver/internal/store"
)

// Options wires the server's collaborators. Logger and Metrics may be nil.
type Options struct {
	Store    *store.Store
	Registry *registry.Registry
	Consumer *consumer.Consumer
	// ConsumeDir is scanned by POST /api/scan; empty disables the endpoint.
	ConsumeDir string
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	// Readiness checks are reported on /readyz, typically the database and
	// the conversion collaborators.
	Readiness map[string]healthcheck.Check
}

// Server carries the handler state. Create it with New and mount Router.
type Server struct {
	store      *store.Store
	registry   *registry.Registry
	consumer   *consumer.Consumer
	consumeDir string
	log        *zap.Logger
	metrics    *metrics.Metrics
	health     healthcheck.Handler

	// scanMu admits one directory scan at a time.
	scanMu sync.Mutex
}

// New assembles the server and its health endpoints.
func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-count", healthcheck.GoroutineCountCheck(500))
	for name, check := range opts.Readiness {
		health.AddReadinessCheck(name, check)
	}

	return &Server{
		store:      opts.Store,
		registry:   opts.Registry,
		consumer:   opts.Consumer,
		consumeDir: opts.ConsumeDir,
		log:        log,
		metrics:    opts.Metrics,
		health:     health,
	}
}

// Router builds the chi router with all routes and middleware attached.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(s.instrument)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Route("/api", func(r chi.Router) {
		r.Get("/documents", s.ListDocuments)
		r.Post("/documents", s.UploadDocument)
		r.Get("/documents/{id}", s.GetDocument)
		r.Get("/documents/{id}/archive", s.DownloadArchive)
		r.Get("/documents/{id}/thumbnail", s.DownloadThumbnail)
		r.Get("/search", s.Search)
		r.Get("/rules", s.ListRules)
		r.Post("/rules", s.CreateRule)
		r.Post("/scan", s.Scan)
	})

	r.Get("/healthz", s.health.LiveEndpoint)
	r.Get("/readyz", s.health.ReadyEndpoint)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// instrument logs every request and feeds the HTTP metrics.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		s.log.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed))
		s.metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(status), elapsed)
	})
}
