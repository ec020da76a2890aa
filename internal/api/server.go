package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/netpulse/internal/hub"
	"github.com/nerrad567/netpulse/internal/infrastructure/config"
	"github.com/nerrad567/netpulse/internal/infrastructure/logging"
	"github.com/nerrad567/netpulse/internal/producer"
	"github.com/nerrad567/netpulse/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ProducerStats reports producer activity for /api/metrics.
type ProducerStats interface {
	State() producer.State
	Stats() producer.Stats
}

// ConnectionStatus reports whether an optional backend is reachable.
type ConnectionStatus interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Logger      *logging.Logger
	Broadcaster *hub.Broadcaster

	// Optional.
	History  telemetry.HistoryRepository
	Producer ProducerStats
	MQTT     ConnectionStatus
	InfluxDB ConnectionStatus
	DB       *sql.DB

	Version string

	// Now defaults to time.Now.
	Now func() time.Time
}

// Server is the control plane and realtime endpoint for netpulse.
//
// It serves the websocket hub endpoint and the /api routes. The broadcaster
// is owned by the caller; Close stops the listener but leaves the
// broadcaster running.
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	broadcaster *hub.Broadcaster
	publisher   *hub.Publisher
	history     telemetry.HistoryRepository
	producer    ProducerStats
	mqtt        ConnectionStatus
	influx      ConnectionStatus
	db          *sql.DB
	version     string
	now         func() time.Time
	startTime   time.Time
	upgrader    websocket.Upgrader

	server *http.Server
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Broadcaster == nil {
		return nil, fmt.Errorf("broadcaster is required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.WS.Path == "" {
		deps.WS.Path = config.DefaultHubPath
	}
	if deps.WS.PongTimeout <= 0 {
		deps.WS.PongTimeout = defaultPongTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		logger:      deps.Logger.With("component", "api"),
		broadcaster: deps.Broadcaster,
		publisher:   hub.NewPublisher(deps.Broadcaster),
		history:     deps.History,
		producer:    deps.Producer,
		mqtt:        deps.MQTT,
		influx:      deps.InfluxDB,
		db:          deps.DB,
		version:     deps.Version,
		now:         deps.Now,
		startTime:   time.Now(),
		ctx:         ctx,
		cancel:      cancel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				// Origin checking is handled by CORS middleware
				return true
			},
		},
	}
	return s, nil
}

// Handler returns the fully routed HTTP handler. Start uses it; tests can
// mount it on an httptest.Server.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr, "hub_path", s.wsCfg.Path)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Close gracefully shuts down the HTTP listener and stops the websocket
// keepalive goroutines.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.cancel()
	defer s.wg.Wait()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
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
