package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/vesselplan/internal/observability"
	"github.com/harun/vesselplan/internal/tracing"
	"github.com/harun/vesselplan/pkg/geometry"
	"github.com/harun/vesselplan/pkg/hooks"
	"github.com/harun/vesselplan/pkg/history"
	"github.com/harun/vesselplan/pkg/simulator"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const requestReadTimeout = 30 * time.Second

// simulationJob is a resolved SimulateRequest
type simulationJob struct {
	planID       string
	start        geometry.Point
	waypoints    []geometry.Point
	obstacles    []geometry.Obstacle
	safeDistance float64
}

// connect upgrades the request and registers the client
func (s *Server) connect(w http.ResponseWriter, r *http.Request, kind ClientKind) (*Client, bool) {
	s.shutdownMu.RLock()
	shuttingDown := s.isShuttingDown
	s.shutdownMu.RUnlock()
	if shuttingDown {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return nil, false
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return nil, false
	}

	clientID, err := gonanoid.New()
	if err != nil {
		clientID = tracing.NewTraceID()
	}
	now := time.Now()
	client := &Client{
		ID:           clientID,
		Kind:         kind,
		Conn:         conn,
		ConnectedAt:  now,
		LastActivity: now,
		IPAddress:    r.RemoteAddr,
	}
	s.clients.Add(client)

	s.logger.Info().
		Str("clientId", clientID).
		Str("kind", string(kind)).
		Str("ip", r.RemoteAddr).
		Msg("Client connected")
	return client, true
}

func (s *Server) disconnect(client *Client) {
	client.Conn.Close()
	s.clients.Remove(client.ID)
	s.logger.Info().Str("clientId", client.ID).Msg("Client disconnected")
}

// handleEvents subscribes a client to plan.completed broadcasts
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	client, ok := s.connect(w, r, ClientEvents)
	if !ok {
		return
	}
	defer s.disconnect(client)

	// Drain reads so control frames are handled and closes are noticed.
	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug().Err(err).Str("clientId", client.ID).Msg("Event stream closed")
			}
			return
		}
		s.clients.Touch(client.ID)
	}
}

// handleSimulate plays a route back to the client frame by frame
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	client, ok := s.connect(w, r, ClientSimulation)
	if !ok {
		return
	}
	defer s.disconnect(client)

	ctx, traceID := requestContext(r)
	ctx = tracing.WithClientID(ctx, client.ID)
	logger := tracing.LoggerFromContext(ctx, s.logger)

	var req SimulateRequest
	client.Conn.SetReadDeadline(time.Now().Add(requestReadTimeout))
	if err := client.Conn.ReadJSON(&req); err != nil {
		s.sendEvent(client, traceID, EventSimulationError, map[string]string{"error": "invalid simulation request: " + err.Error()})
		return
	}
	client.Conn.SetReadDeadline(time.Time{})
	s.clients.Touch(client.ID)

	job, err := s.resolveSimulation(ctx, req)
	if err != nil {
		s.sendEvent(client, traceID, EventSimulationError, map[string]string{"error": err.Error()})
		observability.RecordSimulationAudit(ctx, client.ID, "rejected", map[string]interface{}{"error": err.Error()})
		return
	}

	cfg := s.simulation
	cfg.Obstacles = job.obstacles
	cfg.SafeDistance = job.safeDistance
	cfg.Logger = s.logger
	sim, err := simulator.New(cfg)
	if err != nil {
		s.sendEvent(client, traceID, EventSimulationError, map[string]string{"error": err.Error()})
		return
	}

	// The client closing the socket cancels the run.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := client.Conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := s.sendEvent(client, traceID, EventSimulationStart, SimulationStart{
		PlanID:       job.planID,
		Start:        job.start,
		Waypoints:    job.waypoints,
		Obstacles:    job.obstacles,
		SafeDistance: job.safeDistance,
		MapRange:     s.mapRange,
	}); err != nil {
		return
	}

	summary, runErr := sim.Run(ctx, job.start, job.waypoints, func(f simulator.Frame) error {
		return s.sendEvent(client, traceID, EventSimulationFrame, f)
	})

	status := "completed"
	meta := map[string]interface{}{
		"plan_id":       job.planID,
		"frames":        summary.Frames,
		"danger_frames": summary.DangerFrames,
	}
	switch {
	case runErr == nil:
		s.sendEvent(client, traceID, EventSimulationDone, summary)
		client.writeClose(websocket.CloseNormalClosure, "simulation complete")
		s.fireHook(ctx, hooks.EventSimulationDone, map[string]interface{}{
			"client_id":     client.ID,
			"plan_id":       job.planID,
			"frames":        summary.Frames,
			"danger_frames": summary.DangerFrames,
			"completed":     summary.Completed,
		})
	case errors.Is(runErr, context.Canceled):
		status = "cancelled"
	default:
		status = "failed"
		meta["error"] = runErr.Error()
		s.sendEvent(client, traceID, EventSimulationError, map[string]string{"error": runErr.Error()})
	}

	observability.RecordSimulationAudit(ctx, client.ID, status, meta)
	logger.Info().
		Str("status", status).
		Int("frames", summary.Frames).
		Int("danger_frames", summary.DangerFrames).
		Msg("Simulation stream finished")
}

// resolveSimulation loads an archived plan or checks an inline route
func (s *Server) resolveSimulation(ctx context.Context, req SimulateRequest) (simulationJob, error) {
	if req.PlanID != "" {
		if s.history == nil {
			return simulationJob{}, errors.New("history is disabled")
		}
		entry, err := s.history.Get(ctx, req.PlanID)
		if errors.Is(err, history.ErrNotFound) {
			return simulationJob{}, fmt.Errorf("plan %s not found", req.PlanID)
		}
		if err != nil {
			return simulationJob{}, fmt.Errorf("failed to load plan: %w", err)
		}
		if len(entry.Result.Waypoints) == 0 {
			return simulationJob{}, fmt.Errorf("plan %s has no waypoints", req.PlanID)
		}
		return simulationJob{
			planID:       entry.Result.ID,
			start:        entry.Request.Start,
			waypoints:    entry.Result.Waypoints,
			obstacles:    entry.Request.Obstacles,
			safeDistance: entry.Result.SafeDistance,
		}, nil
	}

	if len(req.Waypoints) == 0 {
		return simulationJob{}, errors.New("plan_id or waypoints is required")
	}
	job := simulationJob{
		start:        req.Waypoints[0],
		waypoints:    req.Waypoints,
		obstacles:    req.Obstacles,
		safeDistance: s.defaults.SafeDistance,
	}
	if req.Start != nil {
		job.start = *req.Start
	}
	if req.SafeDistance != nil {
		job.safeDistance = *req.SafeDistance
	}
	if !job.start.IsFinite() {
		return simulationJob{}, errors.New("start must be finite")
	}
	if err := checkRoute(job.waypoints, job.obstacles, job.safeDistance); err != nil {
		return simulationJob{}, err
	}
	return job, nil
}

func (s *Server) sendEvent(client *Client, traceID, event string, data interface{}) error {
	err := client.WriteJSON(EventMessage{
		Type:      "event",
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
		TraceID:   traceID,
		ClientID:  client.ID,
	})
	if err != nil {
		s.logger.Debug().Err(err).Str("clientId", client.ID).Str("event", event).Msg("Failed to send event")
	}
	return err
}

func (c *Client) writeClose(code int, text string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.Conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}
