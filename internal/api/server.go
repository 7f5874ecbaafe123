// Package api exposes the analysis pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/sync/semaphore"

	"github.com/mayuresh141/urbanhcf/internal/model"
	"github.com/mayuresh141/urbanhcf/internal/pipeline"
	"github.com/mayuresh141/urbanhcf/pkg/geocode"
)

// Defaults for a Server built without options.
const (
	DefaultTimeout       = 120 * time.Second
	DefaultMaxConcurrent = 4
)

// DefaultAllowedOrigins are the browser origins allowed by CORS.
var DefaultAllowedOrigins = []string{"http://localhost:5173", "https://urbanhcf.netlify.app"}

// RunService runs and retrieves stored analyses. *pipeline.Runner implements it.
type RunService interface {
	Run(ctx context.Context, req pipeline.Request) (string, *model.AnalysisResult, error)
	Load(ctx context.Context, runID string) (*model.AnalysisResult, error)
}

// Pinger reports the health of a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Option configures a Server.
type Option func(*Server)

// WithGeocoder enables GET /geocode.
func WithGeocoder(g geocode.Client) Option {
	return func(s *Server) { s.geocoder = g }
}

// WithStore enables GET /health/store.
func WithStore(p Pinger) Option {
	return func(s *Server) { s.store = p }
}

// WithMetrics records request and pipeline metrics and enables GET /metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithTimeout bounds one analyze call, including the wait for a worker slot.
func WithTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMaxConcurrent sets the number of analysis worker slots.
func WithMaxConcurrent(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxConcurrent = n
		}
	}
}

// WithAllowedOrigins sets the CORS origins.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// Server is the HTTP front end of the pipeline.
type Server struct {
	runs          RunService
	store         Pinger
	geocoder      geocode.Client
	metrics       *Metrics
	timeout       time.Duration
	maxConcurrent int
	origins       []string
	slots         *semaphore.Weighted
}

// NewServer creates a Server around runs.
func NewServer(runs RunService, opts ...Option) *Server {
	s := &Server{
		runs:          runs,
		timeout:       DefaultTimeout,
		maxConcurrent: DefaultMaxConcurrent,
		origins:       DefaultAllowedOrigins,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.slots = semaphore.NewWeighted(int64(s.maxConcurrent))
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	if s.metrics != nil {
		r.Use(s.instrument)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/health/store", s.handleStoreHealth)
	r.Post("/analyze", s.handleAnalyze)
	r.Get("/results/{run_id}", s.handleResults)
	r.Get("/geocode", s.handleGeocode)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	return r
}

// instrument counts requests per route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.RequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		s.metrics.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
