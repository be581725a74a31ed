// Package server exposes published proof artifacts, health, metrics and
// the live checkpoint feed over HTTP.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"chatproof/internal/health"
	"chatproof/internal/logging"
	"chatproof/internal/metrics"
	"chatproof/internal/publish"
)

// Route paths.
const (
	HealthPath   = "/healthz"
	MetricsPath  = "/metrics"
	FeedPath     = "/ws/checkpoints"
	ArtifactPath = "/{identity}/{id}"
)

// Config holds server settings.
type Config struct {
	ListenAddr     string
	Identity       string
	AllowedOrigins []string
}

// Deps are the server's collaborators. Publisher is required.
type Deps struct {
	Publisher publish.Publisher
	Health    *health.Checker
	Metrics   *metrics.Metrics
	Hub       *Hub
	Logger    *logging.Logger
}

// Server is the daemon's HTTP surface.
type Server struct {
	cfg     Config
	deps    Deps
	router  *mux.Router
	handler http.Handler
	log     *logging.Logger
}

// New builds the router. Routes whose collaborator is nil are not mounted.
func New(cfg Config, deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = logging.Discard()
	}
	s := &Server{
		cfg:  cfg,
		deps: deps,
		log:  log.WithComponent("server"),
	}
	s.router = s.setupRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"Content-Length"},
		MaxAge:         300,
	})
	s.handler = c.Handler(s.router)
	return s
}

func (s *Server) setupRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.instrument)

	if s.deps.Health != nil {
		r.Handle(HealthPath, s.deps.Health.Handler()).Methods(http.MethodGet)
	}
	if s.deps.Metrics != nil {
		r.Handle(MetricsPath, s.deps.Metrics.Handler()).Methods(http.MethodGet)
	}
	if s.deps.Hub != nil {
		r.Handle(FeedPath, s.deps.Hub).Methods(http.MethodGet)
	}

	// Registered last so the fixed paths above win.
	r.HandleFunc(ArtifactPath, s.handleArtifact).Methods(http.MethodGet, http.MethodHead)

	return r
}

// Handler returns the full handler chain.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if vars["identity"] != s.cfg.Identity {
		http.NotFound(w, r)
		return
	}

	data, contentType, err := s.deps.Publisher.Fetch(r.Context(), vars["id"])
	switch {
	case errors.Is(err, publish.ErrNotFound), errors.Is(err, publish.ErrInvalidID):
		http.NotFound(w, r)
		return
	case err != nil:
		s.log.Error("fetch artifact failed", "id", vars["id"], "error", err)
		http.Error(w, "artifact unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write(data)
	}
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

// instrument records request counts and latency per route template.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		s.deps.Metrics.HTTPRequest(r.Method, route, strconv.Itoa(rec.status), time.Since(start))
		s.log.Debug("http request",
			"method", r.Method,
			"route", route,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("server: response writer cannot hijack")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
