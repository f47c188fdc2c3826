// Package api serves entity search and resolution over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/sells-group/counselling-resolver/internal/fusion"
	"github.com/sells-group/counselling-resolver/internal/refstore"
)

// MaxLimit caps the number of results a single request may ask for.
const MaxLimit = 100

// Engine is the subset of engine.Engine the API needs.
type Engine interface {
	ResolveEntity(ctx context.Context, raw string, t refstore.EntityType, hint *refstore.Location) ([]fusion.Result, error)
	Search(ctx context.Context, query string, t refstore.EntityType, limit int) ([]fusion.Result, error)
	SearchPattern(ctx context.Context, pattern string, t refstore.EntityType, limit int) ([]fusion.Result, error)
	Store() *refstore.Store
}

// ReloadFunc rebuilds the reference store and returns the new snapshot.
type ReloadFunc func(ctx context.Context) (*refstore.Store, error)

// Option configures a Server.
type Option func(*Server)

// WithRateLimit throttles all requests to rps with the given burst. A
// non-positive rps disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
		} else {
			s.limiter = nil
		}
	}
}

// WithAllowedOrigins sets the CORS allow-list.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// WithDefaultLimit sets the result count used when a search omits limit.
func WithDefaultLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.defaultLimit = min(n, MaxLimit)
		}
	}
}

// WithReload enables POST /v1/admin/reload.
func WithReload(fn ReloadFunc) Option {
	return func(s *Server) {
		s.reload = fn
	}
}

// Server holds the HTTP handlers.
type Server struct {
	eng          Engine
	reload       ReloadFunc
	limiter      *rate.Limiter
	origins      []string
	defaultLimit int
}

// New creates a Server over eng.
func New(eng Engine, opts ...Option) *Server {
	s := &Server{
		eng:          eng,
		origins:      []string{"*"},
		defaultLimit: 20,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(accessLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Get("/search", s.handleSearch)
		r.Post("/resolve", s.handleResolve)
		if s.reload != nil {
			r.Post("/admin/reload", s.handleReload)
		}
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// HTTPServer wraps Handler in an http.Server with sane timeouts.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
