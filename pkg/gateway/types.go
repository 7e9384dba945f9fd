package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/vesselplan/pkg/geometry"
	"github.com/harun/vesselplan/pkg/planner"
	"github.com/harun/vesselplan/pkg/scene"
	"github.com/harun/vesselplan/pkg/validator"
)

// Event names sent over WebSocket connections
const (
	EventPlanCompleted   = "plan.completed"
	EventSimulationStart = "simulation.start"
	EventSimulationFrame = "simulation.frame"
	EventSimulationDone  = "simulation.done"
	EventSimulationError = "simulation.error"
	EventServerShutdown  = "server.shutdown"
)

// EventMessage is a server-initiated WebSocket message
type EventMessage struct {
	Type      string      `json:"type"`
	Event     string      `json:"event"`
	Seq       int64       `json:"seq,omitempty"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
	ClientID  string      `json:"client_id,omitempty"`
}

// ClientKind distinguishes event subscribers from simulation streams
type ClientKind string

const (
	ClientEvents     ClientKind = "events"
	ClientSimulation ClientKind = "simulation"
)

// Client is a connected WebSocket client
type Client struct {
	ID           string
	Kind         ClientKind
	Conn         *websocket.Conn
	ConnectedAt  time.Time
	LastActivity time.Time
	IPAddress    string

	writeMu sync.Mutex
}

// WriteJSON serializes writes; gorilla connections allow one concurrent writer
func (c *Client) WriteJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.Conn.WriteJSON(v)
}

// WriteMessage writes a pre-encoded message
func (c *Client) WriteMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.Conn.WriteMessage(messageType, data)
}

// ClientInfo describes a connected client
type ClientInfo struct {
	ID           string     `json:"id"`
	Kind         ClientKind `json:"kind"`
	ConnectedAt  time.Time  `json:"connected_at"`
	LastActivity time.Time  `json:"last_activity"`
	IPAddress    string     `json:"ip_address"`
	Idle         bool       `json:"idle"`
}

// PlanBody is the POST /v1/plan request. Absent safe_distance and max_retries
// take the server defaults; explicit zeros are honored.
type PlanBody struct {
	Start        *geometry.Point     `json:"start"`
	End          *geometry.Point     `json:"end"`
	Obstacles    []geometry.Obstacle `json:"obstacles"`
	Instruction  string              `json:"instruction"`
	SafeDistance *float64            `json:"safe_distance,omitempty"`
	MaxRetries   *int                `json:"max_retries,omitempty"`
}

// RequestDefaults fill fields a PlanBody leaves out
type RequestDefaults struct {
	SafeDistance float64
	MaxRetries   int
}

// toRequest validates the body and builds a planner request
func (b PlanBody) toRequest(d RequestDefaults) (planner.Request, error) {
	if b.Start == nil || b.End == nil {
		return planner.Request{}, errMissingEndpoints
	}

	sc := scene.Scene{
		Start:        *b.Start,
		End:          *b.End,
		Obstacles:    b.Obstacles,
		Instruction:  b.Instruction,
		SafeDistance: d.SafeDistance,
		MaxRetries:   d.MaxRetries,
	}
	if b.SafeDistance != nil {
		sc.SafeDistance = *b.SafeDistance
	}
	if b.MaxRetries != nil {
		sc.MaxRetries = *b.MaxRetries
	}
	if sc.MaxRetries > maxRetriesLimit {
		return planner.Request{}, errTooManyRetries
	}
	if err := sc.Validate(); err != nil {
		return planner.Request{}, err
	}

	req := planner.NewRequest(sc.Start, sc.End, sc.Obstacles, sc.Instruction)
	req.SafeDistance = sc.SafeDistance
	req.MaxRetries = sc.MaxRetries
	return req, nil
}

// checkRoute rejects non-finite numbers, negative radii and a negative margin
func checkRoute(waypoints []geometry.Point, obstacles []geometry.Obstacle, safeDistance float64) error {
	if err := scene.CheckSafeDistance(safeDistance); err != nil {
		return err
	}
	if err := scene.CheckWaypoints(waypoints); err != nil {
		return err
	}
	return scene.CheckObstacles(obstacles)
}

// ValidateBody is the POST /v1/validate request
type ValidateBody struct {
	Waypoints    []geometry.Point    `json:"waypoints"`
	Obstacles    []geometry.Obstacle `json:"obstacles"`
	SafeDistance *float64            `json:"safe_distance,omitempty"`
}

// ValidateResponse pairs the pass/fail verdict with the clearance report
type ValidateResponse struct {
	Verdict validator.Verdict    `json:"verdict"`
	Report  validator.PathReport `json:"report"`
}

// SimulateRequest is the first message a /v1/simulate client sends. Either
// PlanID names an archived plan or Waypoints carries the route inline.
type SimulateRequest struct {
	PlanID       string              `json:"plan_id,omitempty"`
	Start        *geometry.Point     `json:"start,omitempty"`
	Waypoints    []geometry.Point    `json:"waypoints,omitempty"`
	Obstacles    []geometry.Obstacle `json:"obstacles,omitempty"`
	SafeDistance *float64            `json:"safe_distance,omitempty"`
}

// SimulationStart is the payload of simulation.start
type SimulationStart struct {
	PlanID       string              `json:"plan_id,omitempty"`
	Start        geometry.Point      `json:"start"`
	Waypoints    []geometry.Point    `json:"waypoints"`
	Obstacles    []geometry.Obstacle `json:"obstacles"`
	SafeDistance float64             `json:"safe_distance"`
	MapRange     float64             `json:"map_range"`
}

// PlanEvent is the payload of plan.completed
type PlanEvent struct {
	ID        string         `json:"id"`
	Status    planner.Status `json:"validation_status"`
	Attempts  int            `json:"attempts"`
	Waypoints int            `json:"waypoints"`
	Error     string         `json:"error,omitempty"`
}

// ErrorResponse is the body of every non-2xx HTTP response
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}
