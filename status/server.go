package status

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kbukum/relay/component"
	"github.com/kbukum/relay/logger"
)

const (
	componentName = "status-server"
	healthPath    = "/healthz"
	stagesPath    = "/stages"
	versionPath   = "/version"
)

var _ component.Component = (*Server)(nil)

// Server serves pipeline health and stage snapshots over HTTP, with HTTP/2
// cleartext support.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     Config
	log        *logger.Logger

	mu        sync.RWMutex
	pipelines []Snapshotter
	listener  net.Listener
	serving   bool
}

// New creates a status server. checker supplies the component health shown
// on /healthz.
func New(cfg Config, serviceName string, checker HealthChecker, log *logger.Logger) *Server {
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	cfg.ApplyDefaults()

	s := &Server{
		engine: gin.New(),
		config: cfg,
		log:    log.WithComponent(componentName),
	}

	s.engine.Use(recovery(s.log), requestLogger(s.log))
	s.engine.GET(healthPath, Healthz(serviceName, checker))
	s.engine.GET(stagesPath, Stages(s.snapshotters))
	s.engine.GET(versionPath, Version())

	h2s := &http2.Server{
		MaxConcurrentStreams: 250,
		IdleTimeout:          time.Duration(cfg.IdleTimeout) * time.Second,
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      h2c.NewHandler(s.engine, h2s),
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.IdleTimeout) * time.Second,
	}
	return s
}

// AddPipeline lists p on /stages.
func (s *Server) AddPipeline(p Snapshotter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pipelines = append(s.pipelines, p)
}

func (s *Server) snapshotters() []Snapshotter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Snapshotter(nil), s.pipelines...)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Name returns the component name.
func (s *Server) Name() string { return componentName }

// Start binds the address and begins serving. It returns once the listener
// is bound; serving continues in a goroutine.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("status server failed to bind %s: %w", s.httpServer.Addr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.serving = true
	s.mu.Unlock()

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("status server error", logger.Fields(logger.FieldError, err.Error()))
		}
		s.mu.Lock()
		s.serving = false
		s.mu.Unlock()
	}()

	s.log.Info("status server started", logger.Fields("addr", listener.Addr().String()))
	return nil
}

// Stop gracefully shuts down the server with a 5-second deadline.
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown error: %w", err)
	}
	s.log.Info("status server stopped")
	return nil
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Health reports whether the server is serving.
func (s *Server) Health(context.Context) component.Health {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.serving {
		return component.Health{Name: componentName, Status: component.StatusHealthy}
	}
	return component.Health{Name: componentName, Status: component.StatusDegraded, Message: "not serving"}
}
