package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dird/internal/sources"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is an [http.Handler] that knows the path patterns it serves.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// Registry exposes the current source generation.
type Registry interface {
	Current() *sources.Generation
}

// SourceStatus is a configured source as reported by /status.
type SourceStatus struct {
	Name    string `json:"name"`
	Backend string `json:"backend"`
	Loaded  bool   `json:"loaded"`
}

// Status is the body of /status.
type Status struct {
	Generation uint64         `json:"generation"`
	Loaded     int            `json:"loaded"`
	Sources    []SourceStatus `json:"sources"`
	Profiles   []string       `json:"profiles"`
}

// StatusHandler reports the registry generation in use.
type StatusHandler struct {
	registry Registry
}

func NewStatusHandler(registry Registry) *StatusHandler {
	return &StatusHandler{registry: registry}
}

func (h *StatusHandler) Routes() []string { return []string{"GET /status"} }

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, CurrentStatus(h.registry.Current()))
}

// CurrentStatus summarizes gen.
func CurrentStatus(gen *sources.Generation) Status {
	status := Status{
		Generation: gen.Number,
		Loaded:     gen.Len(),
		Sources:    []SourceStatus{},
		Profiles:   []string{},
	}
	for _, cfg := range gen.Configs() {
		status.Sources = append(status.Sources, SourceStatus{
			Name:    cfg.Name,
			Backend: cfg.Backend,
			Loaded:  gen.Loaded(cfg.Name),
		})
	}
	for _, p := range gen.AllProfiles() {
		status.Profiles = append(status.Profiles, p.Name)
	}
	return status
}

// MetricsHandler serves the collectors of gatherer in the prometheus text format.
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NewRouter assembles the operational routes: GET /status and GET /metrics.
func NewRouter(registry Registry, gatherer prometheus.Gatherer, logger *log.Logger) *BasicRouter {
	r := NewBasicRouter()
	r.Use(Recover(logger), Logging(logger))
	r.Handler(NewStatusHandler(registry))
	r.Handle(http.MethodGet, "/metrics", MetricsHandler(gatherer))
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Server runs a router until its context is cancelled.
type Server struct {
	srv    *http.Server
	logger *log.Logger
}

func New(addr string, handler http.Handler, logger *log.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Run serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, ln net.Listener) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", ln.Addr().String())
		errc <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// ListenAndRun listens on the server address and calls [Server.Run].
func (s *Server) ListenAndRun(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}
	return s.Run(ctx, ln)
}
