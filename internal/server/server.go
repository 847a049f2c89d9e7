package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-azure-devops/internal/bridge"
	"github.com/giantswarm/mcp-azure-devops/internal/logger"
)

const (
	defaultEndpointPath   = "/mcp"
	defaultRequestTimeout = 60 * time.Second
	defaultServerName     = "mcp-azure-devops"

	serverReadHeaderTimeout = 10 * time.Second
	serverIdleTimeout       = 60 * time.Second
	shutdownTimeout         = 10 * time.Second
)

// ClientPool is the slice of the bridge pool the serving surfaces use.
// *bridge.Pool satisfies it.
type ClientPool interface {
	GetOrCreate(ctx context.Context, auth bridge.AuthContext) (*bridge.ClientInstance, error)
	Tools(auth bridge.AuthContext) []mcp.Tool
	CallTool(ctx context.Context, name string, args map[string]any, auth bridge.AuthContext) (*mcp.CallToolResult, error)
}

// Config configures the HTTP surface.
type Config struct {
	// Addr is the listen address, for example ":8090".
	Addr string

	// EndpointPath is where JSON-RPC is served, "/mcp" when empty.
	EndpointPath string

	// Pool supplies the per-tenant backend clients.
	Pool ClientPool

	// Defaults apply to requests without tenant headers.
	Defaults Defaults

	// RequestTimeout bounds one request end to end, 60s when zero.
	RequestTimeout time.Duration

	// Name and Version are reported in the initialize handshake.
	Name    string
	Version string

	Logger *logger.Logger
}

// Server is the multi-tenant HTTP front. Every request resolves its own
// tenant from headers, so one listener serves any number of organizations.
type Server struct {
	addr     string
	path     string
	pool     ClientPool
	defaults Defaults
	timeout  time.Duration
	name     string
	version  string
	log      *logger.Logger

	httpServer *http.Server
}

// New validates the configuration and builds the HTTP surface.
func New(cfg Config) (*Server, error) {
	if cfg.Pool == nil {
		return nil, errors.New("client pool is required")
	}
	if cfg.Addr == "" {
		return nil, errors.New("listen address is required")
	}

	path := cfg.EndpointPath
	if path == "" {
		path = defaultEndpointPath
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	name := cfg.Name
	if name == "" {
		name = defaultServerName
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewLoggerWithWriter(false, false, false, io.Discard)
	}

	return &Server{
		addr:     cfg.Addr,
		path:     path,
		pool:     cfg.Pool,
		defaults: cfg.Defaults,
		timeout:  timeout,
		name:     name,
		version:  version,
		log:      log,
	}, nil
}

// Handler assembles the router. Exposed separately so tests can drive the
// surface without a listener.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Timeout(s.timeout),
		s.logRequests,
	)
	r.Get("/healthz", s.handleHealthz)
	r.Post(s.path, s.handleMCP)
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("%s %s from %s (%s)", r.Method, r.URL.Path, r.RemoteAddr, time.Since(start).Round(time.Millisecond))
	})
}

// Start serves until ctx is cancelled or the listener fails, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: serverReadHeaderTimeout,
		// The write timeout must outlast the request timeout so the
		// middleware can still answer a slow backend call.
		WriteTimeout: s.timeout + 5*time.Second,
		IdleTimeout:  serverIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()
	s.log.Info("HTTP bridge listening on %s (endpoint %s)", s.addr, s.path)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown stops accepting connections and waits briefly for in-flight
// requests to finish.
func (s *Server) Shutdown() error {
	if s.httpServer == nil {
		return nil
	}
	s.log.Info("Shutting down HTTP bridge")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down cleanly: %w", err)
	}
	return nil
}
