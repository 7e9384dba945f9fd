package validator

import (
	"encoding/json"
	"math"

	"github.com/harun/vesselplan/pkg/geometry"
)

// CautionFactor scales the safety margin to get the caution band
const CautionFactor = 1.5

// Level grades a clearance against the safety margin
type Level string

const (
	LevelDanger  Level = "danger"
	LevelCaution Level = "caution"
	LevelClear   Level = "clear"
)

// Classify grades a clearance: below the margin is danger, below
// CautionFactor times the margin is caution, anything else is clear.
func Classify(clearance, safeDistance float64) Level {
	switch {
	case tooClose(clearance, safeDistance):
		return LevelDanger
	case clearance < safeDistance*CautionFactor:
		return LevelCaution
	default:
		return LevelClear
	}
}

// WaypointClearance is the nearest obstacle edge distance for one waypoint
type WaypointClearance struct {
	Index         int            `json:"index"`
	Point         geometry.Point `json:"point"`
	ObstacleIndex int            `json:"obstacle_index"` // -1 when there are no obstacles
	Clearance     float64        `json:"clearance"`
	Level         Level          `json:"level"`
}

// PathReport summarizes clearances along a route.
// It is informational and never changes a Verdict.
type PathReport struct {
	SafeDistance         float64             `json:"safe_distance"`
	Waypoints            []WaypointClearance `json:"waypoints"`
	MinWaypointClearance float64             `json:"min_waypoint_clearance"`
	MinSegmentClearance  float64             `json:"min_segment_clearance"`
	AllWaypointsSafe     bool                `json:"all_waypoints_safe"`
}

// Report computes the per-waypoint clearance table for a route.
// Clearances are +Inf when there are no obstacles.
func Report(waypoints []geometry.Point, obstacles []geometry.Obstacle, safeDistance float64) PathReport {
	report := PathReport{
		SafeDistance:         safeDistance,
		Waypoints:            make([]WaypointClearance, 0, len(waypoints)),
		MinWaypointClearance: math.Inf(1),
		MinSegmentClearance:  math.Inf(1),
		AllWaypointsSafe:     true,
	}

	for i, wp := range waypoints {
		wc := WaypointClearance{
			Index:         i,
			Point:         wp,
			ObstacleIndex: -1,
			Clearance:     math.Inf(1),
		}
		for j, obs := range obstacles {
			if c := geometry.ClearanceToPoint(wp, obs); math.IsNaN(c) || c < wc.Clearance {
				wc.Clearance = c
				wc.ObstacleIndex = j
			}
		}
		wc.Level = Classify(wc.Clearance, safeDistance)
		if wc.Level == LevelDanger {
			report.AllWaypointsSafe = false
		}
		report.MinWaypointClearance = math.Min(report.MinWaypointClearance, wc.Clearance)
		report.Waypoints = append(report.Waypoints, wc)
	}

	for i := 0; i < len(waypoints)-1; i++ {
		for _, obs := range obstacles {
			c := geometry.ClearanceToSegment(waypoints[i], waypoints[i+1], obs)
			report.MinSegmentClearance = math.Min(report.MinSegmentClearance, c)
		}
	}

	return report
}

// MarshalJSON encodes an infinite clearance (no obstacles) as null
func (w WaypointClearance) MarshalJSON() ([]byte, error) {
	type alias WaypointClearance
	return json.Marshal(struct {
		alias
		Clearance *float64 `json:"clearance"`
	}{alias(w), finite(w.Clearance)})
}

// MarshalJSON encodes infinite minimum clearances as null
func (r PathReport) MarshalJSON() ([]byte, error) {
	type alias PathReport
	return json.Marshal(struct {
		alias
		MinWaypointClearance *float64 `json:"min_waypoint_clearance"`
		MinSegmentClearance  *float64 `json:"min_segment_clearance"`
	}{alias(r), finite(r.MinWaypointClearance), finite(r.MinSegmentClearance)})
}

func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}
