// Package validator checks candidate routes against circular obstacles.
//
// Invariants:
//   - A route is valid only if every waypoint and every connecting segment
//     keeps at least the safety margin from every obstacle edge.
//   - Validation is fail-fast and pure: the first violation found is reported,
//     and repeated calls with the same inputs return the same verdict.
package validator

import (
	"fmt"

	"github.com/harun/vesselplan/pkg/geometry"
)

// ViolationKind identifies which phase of validation failed
type ViolationKind string

const (
	ViolationWaypoint ViolationKind = "waypoint"
	ViolationSegment  ViolationKind = "segment"
)

// Violation describes the first clearance breach found
type Violation struct {
	Kind          ViolationKind  `json:"kind"`
	Index         int            `json:"index"` // waypoint index, or index of the segment's first waypoint
	ObstacleIndex int            `json:"obstacle_index"`
	Point         geometry.Point `json:"point"`
	Clearance     float64        `json:"clearance"`
	Shortfall     float64        `json:"shortfall"`
}

// Verdict is the result of validating a route.
// Message is empty if and only if Valid is true.
type Verdict struct {
	Valid     bool       `json:"is_valid"`
	Message   string     `json:"message"`
	Violation *Violation `json:"violation,omitempty"`
}

// tooClose reports a clearance under the margin. NaN on either side counts as
// too close.
func tooClose(clearance, safeDistance float64) bool {
	return !(clearance >= safeDistance)
}

// Validate checks waypoints first, then the segments between consecutive
// waypoints, and returns on the first clearance below safeDistance.
func Validate(waypoints []geometry.Point, obstacles []geometry.Obstacle, safeDistance float64) Verdict {
	for i, wp := range waypoints {
		for j, obs := range obstacles {
			clearance := geometry.ClearanceToPoint(wp, obs)
			if tooClose(clearance, safeDistance) {
				v := &Violation{
					Kind:          ViolationWaypoint,
					Index:         i,
					ObstacleIndex: j,
					Point:         wp,
					Clearance:     clearance,
					Shortfall:     safeDistance - clearance,
				}
				return Verdict{
					Message: fmt.Sprintf(
						"waypoint %d (%g, %g) is only %.1fm from the edge of obstacle %d, %.1fm short of the %gm safety margin",
						i, wp.X, wp.Y, clearance, j+1, v.Shortfall, safeDistance,
					),
					Violation: v,
				}
			}
		}
	}

	// A connector between two safe waypoints can still cut through an obstacle.
	for i := 0; i < len(waypoints)-1; i++ {
		a, b := waypoints[i], waypoints[i+1]
		for j, obs := range obstacles {
			clearance := geometry.ClearanceToSegment(a, b, obs)
			if tooClose(clearance, safeDistance) {
				v := &Violation{
					Kind:          ViolationSegment,
					Index:         i,
					ObstacleIndex: j,
					Point:         a,
					Clearance:     clearance,
					Shortfall:     safeDistance - clearance,
				}
				return Verdict{
					Message: fmt.Sprintf(
						"segment from waypoint %d to %d passes only %.1fm from the edge of obstacle %d, %.1fm short of the %gm safety margin",
						i, i+1, clearance, j+1, v.Shortfall, safeDistance,
					),
					Violation: v,
				}
			}
		}
	}

	return Verdict{Valid: true}
}
