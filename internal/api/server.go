package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/lumina-home/lumina-core/internal/audit"
	"github.com/lumina-home/lumina-core/internal/auth"
	"github.com/lumina-home/lumina-core/internal/device"
	"github.com/lumina-home/lumina-core/internal/infrastructure/config"
	"github.com/lumina-home/lumina-core/internal/infrastructure/database"
	"github.com/lumina-home/lumina-core/internal/infrastructure/influxdb"
	"github.com/lumina-home/lumina-core/internal/infrastructure/logging"
	"github.com/lumina-home/lumina-core/internal/infrastructure/mqtt"
	"github.com/lumina-home/lumina-core/internal/sensor"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// CommandPublisher publishes device commands to the MQTT broker.
// Satisfied by *mqtt.Client; kept narrow so handlers can be tested
// without a broker.
type CommandPublisher interface {
	Publish(topic string, payload []byte) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Logger    *logging.Logger
	Auth      *auth.Service
	Users     auth.UserRepository
	RBAC      auth.RBACRepository
	Devices   device.Repository
	Snapshots sensor.Repository
	Audit     audit.Repository

	Commands CommandPublisher // optional: device commands disabled when nil
	MQTT     *mqtt.Client     // optional: health reporting only
	Influx   *influxdb.Client // optional: health reporting only
	DB       *database.DB     // optional: health reporting only

	ExternalHub *Hub // if set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the HTTP API server for Lumina Core.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	auth      *auth.Service
	users     auth.UserRepository
	rbac      auth.RBACRepository
	devices   device.Repository
	snapshots sensor.Repository
	audit     audit.Repository

	commands CommandPublisher
	mqtt     *mqtt.Client
	influx   *influxdb.Client
	db       *database.DB

	version   string
	startTime time.Time
	metrics   *apiMetrics
	limiter   *rateLimiter

	server      *http.Server
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth service is required")
	}
	if deps.Users == nil || deps.RBAC == nil {
		return nil, fmt.Errorf("user and rbac repositories are required")
	}
	if deps.Devices == nil || deps.Snapshots == nil {
		return nil, fmt.Errorf("device and snapshot repositories are required")
	}
	if deps.Audit == nil {
		return nil, fmt.Errorf("audit repository is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		auth:      deps.Auth,
		users:     deps.Users,
		rbac:      deps.RBAC,
		devices:   deps.Devices,
		snapshots: deps.Snapshots,
		audit:     deps.Audit,
		commands:  deps.Commands,
		mqtt:      deps.MQTT,
		influx:    deps.Influx,
		db:        deps.DB,
		version:   deps.Version,
		startTime: time.Now(),
		metrics:   newAPIMetrics(),
		limiter:   newRateLimiter(deps.Config.RateLimit.PerSecond, deps.Config.RateLimit.Burst),
	}

	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Hub returns the server's WebSocket hub, creating it if necessary.
// Exposed so the MQTT ingest router can broadcast through it.
func (s *Server) Hub() *Hub {
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It builds the router, starts the WebSocket hub and background loops,
// and launches the HTTP listener in a goroutine. Stop with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	go s.cleanLimiterLoop(srvCtx)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts down the API server, waiting up to
// gracefulShutdownTimeout for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
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

// handleHealth reports the health of the server and its dependencies.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]string{"api": "ok"}

	if s.db != nil {
		if err := s.db.HealthCheck(r.Context()); err != nil {
			components["database"] = "down"
		} else {
			components["database"] = "ok"
		}
	}
	if s.mqtt != nil {
		if s.mqtt.IsConnected() {
			components["mqtt"] = "ok"
		} else {
			components["mqtt"] = "down"
		}
	}
	if s.influx != nil {
		if s.influx.IsConnected() {
			components["influxdb"] = "ok"
		} else {
			components["influxdb"] = "down"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"components":     components,
	})
}
