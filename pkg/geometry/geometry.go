// Package geometry provides the 2-D primitives used for route safety checks.
//
// All obstacles are circles. Clearance is measured from the obstacle edge,
// so a negative clearance means the geometry overlaps the obstacle disk.
package geometry

import (
	"fmt"
	"math"
)

// Point is a 2-D coordinate in metres
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Obstacle is a circular keep-out area
type Obstacle struct {
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Radius float64 `json:"radius" yaml:"radius"`
}

// Center returns the obstacle center as a Point
func (o Obstacle) Center() Point {
	return Point{X: o.X, Y: o.Y}
}

// IsFinite reports whether the center and radius are real numbers
func (o Obstacle) IsFinite() bool {
	return Finite(o.X, o.Y, o.Radius)
}

// IsFinite reports whether both coordinates are real numbers
func (p Point) IsFinite() bool {
	return Finite(p.X, p.Y)
}

// Finite reports whether no value is NaN or infinite
func Finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// String formats the obstacle as "(x, y) r=radius"
func (o Obstacle) String() string {
	return fmt.Sprintf("(%g, %g) r=%g", o.X, o.Y, o.Radius)
}

// String formats the point as "(x, y)"
func (p Point) String() string {
	return fmt.Sprintf("(%g, %g)", p.X, p.Y)
}

// Add returns p + q
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns p - q
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Scale returns p scaled by k
func (p Point) Scale(k float64) Point {
	return Point{X: p.X * k, Y: p.Y * k}
}

// Dot returns the dot product of p and q
func (p Point) Dot(q Point) float64 {
	return p.X*q.X + p.Y*q.Y
}

// Norm returns the Euclidean length of p
func (p Point) Norm() float64 {
	return math.Hypot(p.X, p.Y)
}

// Distance returns the Euclidean distance between a and b
func Distance(a, b Point) float64 {
	return b.Sub(a).Norm()
}

// PointToSegmentDistance returns the shortest distance from p to the segment [a, b].
// A degenerate segment (a == b) reduces to the point-to-point distance.
func PointToSegmentDistance(p, a, b Point) float64 {
	ab := b.Sub(a)
	lenSq := ab.Dot(ab)
	if lenSq == 0 {
		return Distance(p, a)
	}

	t := p.Sub(a).Dot(ab) / lenSq
	t = math.Max(0, math.Min(1, t))

	return Distance(p, a.Add(ab.Scale(t)))
}

// ClearanceToPoint returns the distance from p to the obstacle edge
func ClearanceToPoint(p Point, o Obstacle) float64 {
	return Distance(p, o.Center()) - o.Radius
}

// ClearanceToSegment returns the distance from the segment [a, b] to the obstacle edge
func ClearanceToSegment(a, b Point, o Obstacle) float64 {
	return PointToSegmentDistance(o.Center(), a, b) - o.Radius
}

// ObstacleFromTuple converts an [x, y, radius] tuple into an Obstacle.
// Tuples with fewer than three fields have no circular extent and are rejected.
func ObstacleFromTuple(t []float64) (Obstacle, bool) {
	if len(t) < 3 {
		return Obstacle{}, false
	}
	return Obstacle{X: t[0], Y: t[1], Radius: t[2]}, true
}

// ObstaclesFromTuples normalizes a list of tuples, returning the obstacles and
// the indexes of the tuples that were dropped.
func ObstaclesFromTuples(tuples [][]float64) ([]Obstacle, []int) {
	obstacles := make([]Obstacle, 0, len(tuples))
	var dropped []int
	for i, t := range tuples {
		o, ok := ObstacleFromTuple(t)
		if !ok {
			dropped = append(dropped, i)
			continue
		}
		obstacles = append(obstacles, o)
	}
	return obstacles, dropped
}

// PointFromPair converts an [x, y] pair into a Point
func PointFromPair(pair []float64) (Point, error) {
	if len(pair) != 2 {
		return Point{}, fmt.Errorf("expected [x, y], got %d values", len(pair))
	}
	return Point{X: pair[0], Y: pair[1]}, nil
}
