package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/smart-watering-core/internal/audit"
	"github.com/nerrad567/smart-watering-core/internal/automation"
	"github.com/nerrad567/smart-watering-core/internal/camera"
	"github.com/nerrad567/smart-watering-core/internal/device"
	"github.com/nerrad567/smart-watering-core/internal/farm"
	"github.com/nerrad567/smart-watering-core/internal/infrastructure/config"
	"github.com/nerrad567/smart-watering-core/internal/infrastructure/logging"
	"github.com/nerrad567/smart-watering-core/internal/ingest"
	"github.com/nerrad567/smart-watering-core/internal/reading"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Ingester runs one sensor reading through the ingest pipeline.
type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (*ingest.Result, error)
}

// Commander issues manual device commands.
type Commander interface {
	Command(ctx context.Context, ownerID, deviceID, command string) (*automation.TriggeredAction, error)
}

// BrokerStatus reports whether the command transport is connected.
type BrokerStatus interface {
	IsConnected() bool
}

// subscriptionLister is implemented by brokers that track their inbound
// subscriptions.
type subscriptionLister interface {
	Subscriptions() []string
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Logger    *logging.Logger
	DB        *sql.DB
	Devices   *device.Registry
	Rules     *automation.Registry
	Farms     farm.Repository
	Cameras   camera.Repository
	Readings  reading.Repository
	Actions   automation.ActionRepository
	AuditRepo audit.Repository
	Ingest    Ingester
	Commands  Commander
	Broker    BrokerStatus // optional
	Hub       *Hub         // If set, the server uses this hub instead of creating its own
	Version   string
}

// Server is the HTTP API server for Smart Watering Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	db        *sql.DB
	devices   *device.Registry
	rules     *automation.Registry
	farms     farm.Repository
	cameras   camera.Repository
	readings  reading.Repository
	actions   automation.ActionRepository
	auditRepo audit.Repository
	auditQ    *auditQueue
	ingest    Ingester
	commands  Commander
	broker    BrokerStatus
	version   string
	startTime time.Time
	server    *http.Server
	hub       *Hub
	cancel    context.CancelFunc // cancels background goroutines on Close()
	auditDone chan struct{}
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Devices == nil:
		return nil, fmt.Errorf("device registry is required")
	case deps.Rules == nil:
		return nil, fmt.Errorf("rule registry is required")
	case deps.Farms == nil:
		return nil, fmt.Errorf("farm repository is required")
	case deps.Cameras == nil:
		return nil, fmt.Errorf("camera repository is required")
	case deps.Readings == nil:
		return nil, fmt.Errorf("reading repository is required")
	case deps.Actions == nil:
		return nil, fmt.Errorf("action repository is required")
	case deps.Ingest == nil:
		return nil, fmt.Errorf("ingest service is required")
	case deps.Commands == nil:
		return nil, fmt.Errorf("command dispatcher is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		db:        deps.DB,
		devices:   deps.Devices,
		rules:     deps.Rules,
		farms:     deps.Farms,
		cameras:   deps.Cameras,
		readings:  deps.Readings,
		actions:   deps.Actions,
		auditRepo: deps.AuditRepo,
		ingest:    deps.Ingest,
		commands:  deps.Commands,
		broker:    deps.Broker,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       deps.Hub,
	}
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	s.auditQ = newAuditQueue(s.auditRepo, s.logger)

	return s, nil
}

// Hub returns the WebSocket hub, for wiring into the dispatcher and ingest
// service.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and the audit writer, then launches the HTTP
// listener in a background goroutine. The server can be stopped with
// Close().
//
// Parameters:
//   - ctx: Parent context for background goroutines
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)

	if s.auditQ != nil {
		s.auditDone = make(chan struct{})
		go func() {
			defer close(s.auditDone)
			s.auditQ.run(srvCtx)
		}()
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.ReadTimeout(),
		WriteTimeout:      s.cfg.WriteTimeout(),
		IdleTimeout:       s.cfg.IdleTimeout(),
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete, then
// flushes queued audit entries.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	err := s.server.Shutdown(ctx)

	// Cancel background goroutines (hub, audit writer) once handlers are done
	if s.cancel != nil {
		s.cancel()
	}
	if s.auditDone != nil {
		<-s.auditDone
	}

	if err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
