package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/vesselplan/internal/observability"
	"github.com/harun/vesselplan/internal/tracing"
	"github.com/harun/vesselplan/pkg/history"
	"github.com/harun/vesselplan/pkg/planner"
	"github.com/harun/vesselplan/pkg/simulator"
	"github.com/rs/zerolog"
)

const (
	maxBodyBytes    = 1 << 20
	maxRetriesLimit = 20
	writeTimeout    = 10 * time.Second
	shutdownTimeout = 30 * time.Second
)

var (
	errMissingEndpoints = errors.New("start and end are required")
	errTooManyRetries   = fmt.Errorf("max_retries cannot exceed %d", maxRetriesLimit)
)

// PlanService runs the plan-validate-retry loop
type PlanService interface {
	Plan(ctx context.Context, req planner.Request) planner.Result
}

// PlanFunc adapts a function to PlanService
type PlanFunc func(ctx context.Context, req planner.Request) planner.Result

// Plan calls f
func (f PlanFunc) Plan(ctx context.Context, req planner.Request) planner.Result {
	return f(ctx, req)
}

// HookTrigger runs lifecycle hooks. *hooks.Manager implements it.
type HookTrigger interface {
	Trigger(ctx context.Context, event string, data map[string]interface{}) error
}

// HistoryStore archives plans
type HistoryStore interface {
	Save(ctx context.Context, req planner.Request, res planner.Result) error
	Get(ctx context.Context, id string) (*history.Entry, error)
	List(ctx context.Context, limit int) ([]history.Summary, error)
}

// Config holds server configuration
type Config struct {
	Host         string
	Port         int
	SharedSecret string
	// Planner may be nil, in which case /v1/plan answers 503
	Planner PlanService
	// History may be nil, which disables archiving and the /v1/plans routes
	History  HistoryStore
	Defaults RequestDefaults
	// PlanTimeout bounds one /v1/plan request; zero means no limit
	PlanTimeout time.Duration
	// Simulation is the template for /v1/simulate runs; obstacles and the
	// safety distance come from each request
	Simulation simulator.Config
	MapRange   float64
	// PlanRateLimit and PlanConcurrency bound /v1/plan per remote address
	PlanRateLimit   int
	PlanConcurrency int
	// Hooks may be nil
	Hooks  HookTrigger
	Logger zerolog.Logger
}

// Server is the HTTP and WebSocket front end for the planner
type Server struct {
	addr        string
	planner     PlanService
	history     HistoryStore
	defaults    RequestDefaults
	planTimeout time.Duration
	simulation  simulator.Config
	mapRange    float64
	server      *http.Server
	listener    net.Listener
	upgrader    websocket.Upgrader
	clients     *ClientRegistry
	broadcaster *EventBroadcaster
	auth        *AuthHandler
	limiters    *RateLimiterPool
	hooks       HookTrigger
	logger      zerolog.Logger

	shutdownMu     sync.RWMutex
	isShuttingDown bool
	inFlight       sync.WaitGroup
}

// NewServer creates a new gateway server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Defaults.SafeDistance < 0 || cfg.Defaults.MaxRetries < 0 {
		return nil, fmt.Errorf("request defaults cannot be negative")
	}
	if cfg.PlanTimeout < 0 {
		return nil, fmt.Errorf("plan timeout cannot be negative")
	}

	observability.EnsureRegistered()

	logger := cfg.Logger.With().Str("component", "gateway").Logger()
	clients := NewClientRegistry()

	s := &Server{
		addr:        net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
		planner:     cfg.Planner,
		history:     cfg.History,
		defaults:    cfg.Defaults,
		planTimeout: cfg.PlanTimeout,
		simulation:  cfg.Simulation,
		mapRange:    cfg.MapRange,
		clients:     clients,
		broadcaster: NewEventBroadcaster(clients, logger),
		auth:        NewAuthHandler(cfg.SharedSecret),
		limiters:    NewRateLimiterPool(cfg.PlanRateLimit, cfg.PlanConcurrency),
		hooks:       cfg.Hooks,
		logger:      logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	return s, nil
}

// Handler returns the routed HTTP handler
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/plan", s.handlePlan)
	api.HandleFunc("POST /v1/validate", s.handleValidate)
	api.HandleFunc("GET /v1/plans", s.handleListPlans)
	api.HandleFunc("GET /v1/plans/{id}", s.handleGetPlan)
	api.HandleFunc("GET /v1/simulate", s.handleSimulate)
	api.HandleFunc("GET /v1/events", s.handleEvents)
	api.HandleFunc("GET /v1/clients", s.handleClients)

	mux := http.NewServeMux()
	mux.Handle("/v1/", s.auth.Middleware(api))
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// Start binds the listener and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting gateway server")

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()
	return nil
}

// Addr returns the bound address once Start has run
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop refuses new work, waits for in-flight plans and closes every client
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down gateway server")
	s.broadcaster.Broadcast(EventServerShutdown, "", map[string]interface{}{
		"message": "Server is shutting down",
	})

	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown deadline reached, forcing close")
	case <-time.After(shutdownTimeout):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	for _, client := range s.clients.All() {
		client.Conn.Close()
	}

	if s.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("Gateway server stopped")
	return nil
}

// Clients returns information about connected WebSocket clients
func (s *Server) Clients() []ClientInfo {
	return s.clients.Infos()
}

// enter registers an in-flight request unless the server is shutting down
func (s *Server) enter() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	if s.isShuttingDown {
		return false
	}
	s.inFlight.Add(1)
	return true
}

func (s *Server) leave() {
	s.inFlight.Done()
}

// fireHook runs hooks in the background. Stop waits for them like any
// in-flight request; once shutdown has begun new hooks are dropped.
func (s *Server) fireHook(ctx context.Context, event string, data map[string]interface{}) {
	if s.hooks == nil || !s.enter() {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer s.leave()
		if err := s.hooks.Trigger(ctx, event, data); err != nil {
			lg := tracing.LoggerFromContext(ctx, s.logger)
			lg.Warn().Err(err).Str("event", event).Msg("Hook failed")
		}
	}()
}

// requestContext attaches the caller's trace id, or a fresh one
func requestContext(r *http.Request) (context.Context, string) {
	traceID := r.Header.Get("X-Trace-Id")
	if traceID == "" {
		traceID = tracing.NewTraceID()
	}
	return tracing.WithTraceID(r.Context(), traceID), traceID
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   msg,
		TraceID: tracing.GetTraceID(r.Context()),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
