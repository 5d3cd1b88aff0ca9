// Package api exposes the HTTP interface for triggering and inspecting
// crawl runs.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jobsift/jobsift/internal/config"
	"github.com/jobsift/jobsift/internal/ingest"
	"github.com/jobsift/jobsift/internal/metrics"
	"github.com/jobsift/jobsift/internal/site"
)

// ErrUnknownSite is returned by a CrawlRunner for unregistered site ids.
var ErrUnknownSite = errors.New("unknown site")

// CrawlRunner executes one crawl run for a registered site.
type CrawlRunner interface {
	Run(ctx context.Context, siteID string, params ingest.QueryParams) (ingest.CrawlSummary, error)
}

// Server wires HTTP handlers to the crawl runner and site registry.
type Server struct {
	router   chi.Router
	runner   CrawlRunner
	registry *site.Registry
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runner CrawlRunner, registry *site.Registry, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runner:   runner,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	// Crawls run synchronously inside the request, so the budget is generous.
	r.Use(timeoutMiddleware(10 * time.Minute))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/sites", s.listSites)
		r.Post("/crawls", s.triggerCrawl)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listSites(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string][]string{"sites": s.registry.Sites()})
}

type crawlRequest struct {
	Site   string             `json:"site"`
	Params ingest.QueryParams `json:"params"`
}

type crawlResponse struct {
	Status  string              `json:"status"`
	Summary ingest.CrawlSummary `json:"summary"`
}

func (s *Server) triggerCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Site == "" {
		writeError(s.logger, w, http.StatusBadRequest, "site is required")
		return
	}
	if _, ok := s.registry.Lookup(req.Site); !ok {
		writeError(s.logger, w, http.StatusNotFound, fmt.Sprintf("site %q is not registered", req.Site))
		return
	}

	summary, err := s.runner.Run(r.Context(), req.Site, req.Params)
	if err != nil {
		if errors.Is(err, ErrUnknownSite) {
			writeError(s.logger, w, http.StatusNotFound, err.Error())
			return
		}
		writeError(s.logger, w, http.StatusInternalServerError, err.Error())
		return
	}

	// An aborted run still produced usable partial results, so it is not an
	// HTTP-level failure; the payload carries the distinction.
	status := "completed"
	if summary.Aborted {
		status = "partial"
	}
	writeJSON(s.logger, w, http.StatusOK, crawlResponse{Status: status, Summary: summary})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			elapsed := time.Since(start)
			metrics.ObserveHTTPRequest(r.Method, r.URL.Path, strconv.Itoa(ww.status), elapsed)
			logger.Info("request completed",
				zap.String("request_id", requestIDFrom(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", elapsed.Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(logger, w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(zap.NewNop(), w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

// requestIDFrom reads the id planted by requestIDMiddleware; "" when the
// request never passed through it.
func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(logger, w, status, map[string]string{"error": msg})
}
