// Package simulator moves a kinematic vessel along a planned route and
// reports its clearance to each obstacle frame by frame.
//
// All state is explicit: a Vessel is owned by one Simulation run and is
// never shared between runs.
package simulator

import (
	"math"

	"github.com/harun/vesselplan/pkg/geometry"
)

// DefaultArrivalThreshold is the distance at which a vessel snaps onto its target
const DefaultArrivalThreshold = 0.5

// Vessel is a point vessel with a heading and a track history
type Vessel struct {
	X                float64          `json:"x"`
	Y                float64          `json:"y"`
	Heading          float64          `json:"heading"` // degrees, counter-clockwise from +X
	History          []geometry.Point `json:"history"`
	ArrivalThreshold float64          `json:"-"`
}

// NewVessel places a vessel at start
func NewVessel(start geometry.Point) *Vessel {
	return &Vessel{
		X:                start.X,
		Y:                start.Y,
		History:          []geometry.Point{start},
		ArrivalThreshold: DefaultArrivalThreshold,
	}
}

// Position returns the current position
func (v *Vessel) Position() geometry.Point {
	return geometry.Point{X: v.X, Y: v.Y}
}

// Step moves the vessel at most speed units toward target and reports
// whether it has arrived. Within the arrival threshold it snaps onto target.
func (v *Vessel) Step(target geometry.Point, speed float64) bool {
	delta := target.Sub(v.Position())
	dist := delta.Norm()

	if dist < v.ArrivalThreshold || dist == 0 {
		v.X, v.Y = target.X, target.Y
		v.History = append(v.History, target)
		return true
	}

	v.Heading = math.Atan2(delta.Y, delta.X) * 180 / math.Pi

	step := math.Min(speed, dist)
	next := v.Position().Add(delta.Scale(step / dist))
	v.X, v.Y = next.X, next.Y
	v.History = append(v.History, next)

	return false
}
