package simulator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/harun/vesselplan/internal/observability"
	"github.com/harun/vesselplan/internal/tracing"
	"github.com/harun/vesselplan/pkg/geometry"
	"github.com/harun/vesselplan/pkg/validator"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Defaults for a simulation run
const (
	DefaultSpeed         = 2.0
	DefaultFrameInterval = 150 * time.Millisecond
	DefaultMaxFrames     = 100000
	// DefaultMapRange is the full chart width, centred on the origin
	DefaultMapRange = 200.0
)

// Config holds simulation settings
type Config struct {
	Obstacles        []geometry.Obstacle
	SafeDistance     float64
	Speed            float64
	ArrivalThreshold float64
	// FrameInterval paces emitted frames; zero runs as fast as possible
	FrameInterval time.Duration
	MaxFrames     int
	Logger        zerolog.Logger
}

// ObstacleClearance is the vessel's edge distance to one obstacle
type ObstacleClearance struct {
	ObstacleIndex int             `json:"obstacle_index"`
	Clearance     float64         `json:"clearance"`
	Level         validator.Level `json:"level"`
}

// Frame is one simulation tick
type Frame struct {
	Index         int                 `json:"index"`
	TargetIndex   int                 `json:"target_index"`
	Position      geometry.Point      `json:"position"`
	Heading       float64             `json:"heading"`
	Clearances    []ObstacleClearance `json:"clearances"`
	MinClearance  *float64            `json:"min_clearance,omitempty"`
	Level         validator.Level     `json:"level"`
	ReachedTarget bool                `json:"reached_target"`
}

// Summary describes a finished run
type Summary struct {
	Frames       int              `json:"frames"`
	Completed    bool             `json:"completed"`
	MinClearance *float64         `json:"min_clearance,omitempty"`
	DangerFrames int              `json:"danger_frames"`
	Track        []geometry.Point `json:"track"`
}

// EmitFunc receives each frame; returning an error stops the run
type EmitFunc func(Frame) error

// Simulation drives a vessel along waypoints
type Simulation struct {
	cfg    Config
	logger zerolog.Logger
}

// New creates a simulation
func New(cfg Config) (*Simulation, error) {
	if cfg.Speed == 0 {
		cfg.Speed = DefaultSpeed
	}
	if cfg.Speed < 0 {
		return nil, fmt.Errorf("speed must be positive")
	}
	if cfg.SafeDistance < 0 {
		return nil, fmt.Errorf("safe distance cannot be negative")
	}
	if cfg.ArrivalThreshold <= 0 {
		cfg.ArrivalThreshold = DefaultArrivalThreshold
	}
	if cfg.MaxFrames <= 0 {
		cfg.MaxFrames = DefaultMaxFrames
	}

	return &Simulation{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "simulator").Logger(),
	}, nil
}

// Run moves a fresh vessel from start through every waypoint in order
func (s *Simulation) Run(ctx context.Context, start geometry.Point, waypoints []geometry.Point, emit EmitFunc) (Summary, error) {
	ctx, span := tracing.StartSpan(ctx, tracing.TracerSimulator, "simulator.run",
		attribute.Int("simulation.waypoints", len(waypoints)),
	)
	defer span.End()

	observability.SimulationStarted()
	defer observability.SimulationFinished()

	vessel := NewVessel(start)
	vessel.ArrivalThreshold = s.cfg.ArrivalThreshold

	summary := Summary{}
	minClearance := math.Inf(1)

	var ticker *time.Ticker
	if s.cfg.FrameInterval > 0 {
		ticker = time.NewTicker(s.cfg.FrameInterval)
		defer ticker.Stop()
	}

	target := 0
	for target < len(waypoints) {
		if summary.Frames >= s.cfg.MaxFrames {
			return s.finish(summary, vessel, minClearance), fmt.Errorf("simulation exceeded %d frames", s.cfg.MaxFrames)
		}

		if ticker != nil {
			select {
			case <-ctx.Done():
				return s.finish(summary, vessel, minClearance), ctx.Err()
			case <-ticker.C:
			}
		} else if err := ctx.Err(); err != nil {
			return s.finish(summary, vessel, minClearance), err
		}

		arrived := vessel.Step(waypoints[target], s.cfg.Speed)
		frame := s.frame(summary.Frames, target, vessel, arrived)
		if frame.MinClearance != nil {
			minClearance = math.Min(minClearance, *frame.MinClearance)
		}
		if frame.Level == validator.LevelDanger {
			summary.DangerFrames++
		}
		summary.Frames++
		observability.RecordSimulationFrame()

		if emit != nil {
			if err := emit(frame); err != nil {
				return s.finish(summary, vessel, minClearance), err
			}
		}

		if arrived {
			target++
		}
	}

	summary.Completed = true
	summary = s.finish(summary, vessel, minClearance)
	s.logger.Debug().
		Int("frames", summary.Frames).
		Int("danger_frames", summary.DangerFrames).
		Msg("Simulation completed")
	return summary, nil
}

func (s *Simulation) frame(index, target int, v *Vessel, arrived bool) Frame {
	pos := v.Position()
	frame := Frame{
		Index:         index,
		TargetIndex:   target,
		Position:      pos,
		Heading:       v.Heading,
		Clearances:    make([]ObstacleClearance, 0, len(s.cfg.Obstacles)),
		Level:         validator.LevelClear,
		ReachedTarget: arrived,
	}

	for i, obs := range s.cfg.Obstacles {
		c := geometry.ClearanceToPoint(pos, obs)
		frame.Clearances = append(frame.Clearances, ObstacleClearance{
			ObstacleIndex: i,
			Clearance:     c,
			Level:         validator.Classify(c, s.cfg.SafeDistance),
		})
		if frame.MinClearance == nil || c < *frame.MinClearance {
			c := c
			frame.MinClearance = &c
		}
	}
	if frame.MinClearance != nil {
		frame.Level = validator.Classify(*frame.MinClearance, s.cfg.SafeDistance)
	}

	return frame
}

func (s *Simulation) finish(summary Summary, v *Vessel, minClearance float64) Summary {
	summary.Track = v.History
	if !math.IsInf(minClearance, 1) {
		summary.MinClearance = &minClearance
	}
	return summary
}
