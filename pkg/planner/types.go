package planner

import (
	"context"
	"time"

	"github.com/harun/vesselplan/pkg/geometry"
)

// Defaults for a planning request
const (
	DefaultSafeDistance = 10.0
	DefaultMaxRetries   = 5
)

// Status is the final validation status of a plan
type Status string

const (
	// StatusSafe means every waypoint and segment clears every obstacle by the margin
	StatusSafe Status = "SAFE"
	// StatusRisky means a candidate was produced but none passed validation
	StatusRisky Status = "RISKY"
	// StatusFailed means no attempt produced a usable candidate
	StatusFailed Status = "FAILED"
)

// Oracle generates candidate routes from a system prompt and a per-attempt user prompt
type Oracle interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// OracleFunc adapts a function to the Oracle interface
type OracleFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

// Complete calls f
func (f OracleFunc) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f(ctx, systemPrompt, userPrompt)
}

// Request is one planning problem
type Request struct {
	Start        geometry.Point      `json:"start"`
	End          geometry.Point      `json:"end"`
	Obstacles    []geometry.Obstacle `json:"obstacles"`
	Instruction  string              `json:"instruction"`
	SafeDistance float64             `json:"safe_distance"`
	MaxRetries   int                 `json:"max_retries"`
}

// NewRequest builds a request with the default safety distance and retry budget
func NewRequest(start, end geometry.Point, obstacles []geometry.Obstacle, instruction string) Request {
	return Request{
		Start:        start,
		End:          end,
		Obstacles:    obstacles,
		Instruction:  instruction,
		SafeDistance: DefaultSafeDistance,
		MaxRetries:   DefaultMaxRetries,
	}
}

// normalized clamps negative margins and budgets to zero
func (r Request) normalized() Request {
	if r.SafeDistance < 0 {
		r.SafeDistance = 0
	}
	if r.MaxRetries < 0 {
		r.MaxRetries = 0
	}
	return r
}

// Candidate is a route proposed by the oracle
type Candidate struct {
	Waypoints   []geometry.Point `json:"waypoints"`
	Explanation string           `json:"explanation"`
}

// Result is the outcome of a planning run. It is never modified after Plan returns.
type Result struct {
	ID           string           `json:"id"`
	Waypoints    []geometry.Point `json:"waypoints"`
	Explanation  string           `json:"explanation"`
	Status       Status           `json:"validation_status"`
	SafeDistance float64          `json:"safe_distance"`
	Error        string           `json:"error,omitempty"`
	Attempts     int              `json:"attempts"`
	CreatedAt    time.Time        `json:"created_at"`
}
