// Package api provides the HTTP REST API server for retailcast.
//
// It accepts sales uploads, runs the forecast pipeline on them and streams
// run-completion events over WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/seenimoa/retailcast/internal/config"
	"github.com/seenimoa/retailcast/internal/infra"
	"github.com/seenimoa/retailcast/internal/pipeline"
	"github.com/seenimoa/retailcast/internal/store"
)

// Options carries the optional collaborators of a Server.
type Options struct {
	Logger  *slog.Logger
	Sink    store.Sink // nil disables persistence
	Version string
}

// Server is the HTTP API server.
type Server struct {
	router   chi.Router
	cfg      *config.Config
	pipeline pipeline.Config
	log      *slog.Logger
	sink     store.Sink
	version  string

	runs     *infra.Cache[*RunResponse] // run id -> response
	requests *infra.Cache[string]       // request fingerprint -> run id
	limiter  *infra.RateLimiter         // nil when rate limiting is off
	wsHub    *WSHub
	stop     context.CancelFunc
}

// NewServer creates a configured API server with all routes and middleware.
// The WebSocket hub and the cache sweeper start immediately and run until
// Close.
func NewServer(cfg *config.Config, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = infra.DiscardLogger()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	ttl := time.Duration(cfg.API.CacheTTL) * time.Second

	srv := &Server{
		cfg:      cfg,
		pipeline: pipeline.ConfigFrom(cfg, false),
		log:      opts.Logger,
		sink:     opts.Sink,
		version:  opts.Version,
		runs:     infra.NewCache[*RunResponse](ttl),
		requests: infra.NewCache[string](ttl),
		limiter:  infra.PerWindow(cfg.API.RateLimit, time.Duration(cfg.API.RateWindowSec)*time.Second),
		wsHub:    NewWSHub(),
	}
	srv.router = srv.buildRouter()

	ctx, stop := context.WithCancel(context.Background())
	srv.stop = stop
	go srv.wsHub.Run(ctx)
	go srv.sweepCaches(ctx, time.Minute)
	return srv
}

// Close stops the WebSocket hub, disconnecting every client, and the cache
// sweeper. It is safe to call more than once.
func (s *Server) Close() {
	s.stop()
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *WSHub {
	return s.wsHub
}

// Serve runs the HTTP server until ctx is canceled, then shuts it down
// gracefully and closes the server.
func (s *Server) Serve(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	defer s.Close()

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// sweepCaches drops expired runs every interval until ctx is done.
func (s *Server) sweepCaches(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.runs.Cleanup() + s.requests.Cleanup(); n > 0 {
				s.log.Debug("cache sweep", "removed", n)
			}
		}
	}
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	// CORS
	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Run-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", s.handleHealth)

	// WebSocket
	r.Get("/ws", s.handleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Forecasting
		r.With(s.rateLimit).Post("/forecast", s.handleForecast)
		r.Get("/runs/{id}", s.handleGetRun)

		// Configuration
		r.Get("/config", s.handleGetConfig)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// ============================================================
// Middleware
// ============================================================

// requestLogger logs one structured line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// rateLimit rejects requests once the shared token bucket is empty.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ============================================================
// Response types
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Time       string `json:"time"`
	CachedRuns int    `json:"cached_runs"`
	WSClients  int    `json:"ws_clients"`
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: HealthResponse{
			Status:     "ok",
			Version:    s.version,
			Time:       time.Now().UTC().Format(time.RFC3339),
			CachedRuns: s.runs.Len(),
			WSClients:  s.wsHub.ClientCount(),
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("failed to write JSON response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}
