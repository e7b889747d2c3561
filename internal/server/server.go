package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/zsiec/ndikit/internal/config"
	apperrors "github.com/zsiec/ndikit/internal/errors"
	"github.com/zsiec/ndikit/internal/health"
	"github.com/zsiec/ndikit/internal/logger"
	"github.com/zsiec/ndikit/internal/snapshot"
	"github.com/zsiec/ndikit/pkg/ndi"
)

// RuntimeInfo is the part of ndi.Runtime the API reports on.
type RuntimeInfo interface {
	Version() (string, error)
	IsSupportedCPU() bool
	IsRunning() bool
}

// SourceDirectory serves the latest discovery result.
type SourceDirectory interface {
	Sources() []ndi.Source
	Lookup(name string) (ndi.Source, bool)
	LastRefresh() time.Time
}

// Snapshotter captures stills and status for one source.
type Snapshotter interface {
	Capture(ctx context.Context, name string, format ndi.ImageFormat, quality int) (*snapshot.Image, error)
	Status(ctx context.Context, name string) (*snapshot.Status, error)
}

// Deps are the services behind the API. Nil members disable their
// routes and health checks.
type Deps struct {
	Runtime   RuntimeInfo
	Sources   SourceDirectory
	Snapshots Snapshotter
	Redis     redis.UniversalClient
}

// Server serves the HTTP API over HTTP/1.1 and, when configured, HTTP/3.
type Server struct {
	config       *config.ServerConfig
	router       *mux.Router
	http3Server  *http3.Server
	httpServer   *http.Server
	logger       *logrus.Logger
	healthMgr    *health.Manager
	errorHandler *apperrors.ErrorHandler
	deps         Deps

	routesOnce sync.Once
	addrMu     sync.Mutex
	addr       net.Addr

	// Additional handlers can be registered
	additionalRoutes []func(*mux.Router)
}

// New creates a new server instance.
func New(cfg *config.ServerConfig, log *logrus.Logger, deps Deps) *Server {
	s := &Server{
		config:           cfg,
		router:           mux.NewRouter(),
		logger:           log,
		healthMgr:        health.NewManager(log),
		errorHandler:     apperrors.NewErrorHandler(log),
		deps:             deps,
		additionalRoutes: make([]func(*mux.Router), 0),
	}

	s.registerHealthCheckers()

	return s
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	handler := s.Handler()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.HTTPPort))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.config.HTTPPort, err)
	}
	s.addrMu.Lock()
	s.addr = ln.Addr()
	s.addrMu.Unlock()

	s.httpServer = &http.Server{
		Handler:      handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 2)

	if s.config.HTTP3Enabled() {
		if err := s.startHTTP3Server(handler, errCh); err != nil {
			ln.Close()
			return fmt.Errorf("failed to start HTTP/3 server: %w", err)
		}
	}

	go s.healthMgr.StartPeriodicChecks(ctx, 30*time.Second)

	go func() {
		s.logger.WithField("addr", ln.Addr().String()).Info("Starting HTTP server")
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		_ = s.Shutdown()
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		return s.Shutdown()
	}
}

func (s *Server) startHTTP3Server(handler http.Handler, errCh chan<- error) error {
	cert, err := tls.LoadX509KeyPair(s.config.TLSCertFile, s.config.TLSKeyFile)
	if err != nil {
		return fmt.Errorf("failed to load TLS certificates: %w", err)
	}

	s.http3Server = &http3.Server{
		Addr:    fmt.Sprintf(":%d", s.config.HTTP3Port),
		Handler: handler,
		QUICConfig: &quic.Config{
			MaxIncomingStreams:    s.config.MaxIncomingStreams,
			MaxIncomingUniStreams: s.config.MaxIncomingUniStreams,
			MaxIdleTimeout:        s.config.MaxIdleTimeout,
		},
		TLSConfig: http3.ConfigureTLSConfig(&tls.Config{
			MinVersion:   tls.VersionTLS13,
			Certificates: []tls.Certificate{cert},
		}),
	}

	go func() {
		s.logger.WithField("port", s.config.HTTP3Port).Info("Starting HTTP/3 server")
		if err := s.http3Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http3: %w", err)
		}
	}()
	return nil
}

// Shutdown drains the HTTP server within ShutdownTimeout and closes the
// HTTP/3 listener.
func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down HTTP server")

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http: %w", err))
		}
	}
	// http3.Server.Close does not wait for in-flight requests.
	if s.http3Server != nil {
		if err := s.http3Server.Close(); err != nil {
			errs = append(errs, fmt.Errorf("http3: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("HTTP server shutdown complete")
	return nil
}

// Addr is the bound HTTP address once Start is listening, or nil.
func (s *Server) Addr() net.Addr {
	s.addrMu.Lock()
	defer s.addrMu.Unlock()
	return s.addr
}

// Handler returns the fully routed handler. Routes are set up on first
// use; RegisterRoutes has no effect afterwards.
func (s *Server) Handler() http.Handler {
	s.routesOnce.Do(s.setupRoutes)
	return s.router
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Use(logger.RequestLoggerMiddleware(s.logger))
	s.router.Use(s.errorHandler.Middleware)
	s.router.Use(metricsMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.config.HTTP3Enabled() {
		s.router.Use(s.altSvcMiddleware)
	}

	healthHandler := health.NewHandler(s.healthMgr)
	s.router.HandleFunc("/health", healthHandler.HandleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", healthHandler.HandleReady).Methods(http.MethodGet)
	s.router.HandleFunc("/live", healthHandler.HandleLive).Methods(http.MethodGet)

	s.router.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/runtime", s.handleRuntime).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/sources", s.handleListSources).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/sources/{name}", s.handleGetSource).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/sources/{name}/snapshot", s.handleSnapshot).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/sources/{name}/status", s.handleSourceStatus).Methods(http.MethodGet, http.MethodOptions)

	for _, registerFunc := range s.additionalRoutes {
		registerFunc(s.router)
	}

	s.router.NotFoundHandler = http.HandlerFunc(s.errorHandler.HandleNotFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.errorHandler.HandleMethodNotAllowed)
}

func (s *Server) registerHealthCheckers() {
	if s.deps.Runtime != nil {
		s.healthMgr.Register(health.NewRuntimeChecker(s.deps.Runtime))
	}
	if d, ok := s.deps.Sources.(health.DiscoveryStatus); ok {
		s.healthMgr.Register(health.NewDiscoveryChecker(d))
	}
	if s.deps.Redis != nil {
		s.healthMgr.Register(health.NewRedisChecker(s.deps.Redis))
	}
}

// RegisterRoutes adds additional route handlers to the server
func (s *Server) RegisterRoutes(registerFunc func(*mux.Router)) {
	s.additionalRoutes = append(s.additionalRoutes, registerFunc)
}

// GetRouter returns the router for testing.
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// HealthManager exposes the checks so callers can run them at startup.
func (s *Server) HealthManager() *health.Manager {
	return s.healthMgr
}
