package scene

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/harun/vesselplan/pkg/geometry"
	"gopkg.in/yaml.v3"
)

// DefaultPointRadius is the radius given to obstacles entered as "x, y"
const DefaultPointRadius = 5.0

// Scene is a planning problem as read from a scene file or request body
type Scene struct {
	Start        geometry.Point      `json:"start"`
	End          geometry.Point      `json:"end"`
	Obstacles    []geometry.Obstacle `json:"obstacles"`
	SafeDistance float64             `json:"safe_distance"`
	Instruction  string              `json:"instruction"`
	MaxRetries   int                 `json:"max_retries"`

	hasSafeDistance bool
	hasMaxRetries   bool
}

// file is the on-disk YAML layout, which uses tuples like the planner call signature
type file struct {
	Start        []float64   `yaml:"start"`
	End          []float64   `yaml:"end"`
	Obstacles    [][]float64 `yaml:"obstacles"`
	SafeDistance *float64    `yaml:"safe_distance"`
	Instruction  string      `yaml:"instruction"`
	MaxRetries   *int        `yaml:"max_retries"`
}

// LoadFile reads a scene from a YAML file
func LoadFile(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML scene document
func Parse(data []byte) (*Scene, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse scene: %w", err)
	}

	start, err := geometry.PointFromPair(f.Start)
	if err != nil {
		return nil, fmt.Errorf("invalid start: %w", err)
	}
	end, err := geometry.PointFromPair(f.End)
	if err != nil {
		return nil, fmt.Errorf("invalid end: %w", err)
	}

	obstacles, dropped := geometry.ObstaclesFromTuples(f.Obstacles)
	if len(dropped) > 0 {
		return nil, fmt.Errorf("obstacles %v need [x, y, radius]", dropped)
	}

	s := &Scene{
		Start:       start,
		End:         end,
		Obstacles:   obstacles,
		Instruction: f.Instruction,
	}
	if f.SafeDistance != nil {
		s.SafeDistance, s.hasSafeDistance = *f.SafeDistance, true
	}
	if f.MaxRetries != nil {
		s.MaxRetries, s.hasMaxRetries = *f.MaxRetries, true
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// ApplyDefaults fills safe_distance and max_retries when the scene file did
// not set them. Values written explicitly, including zero, are kept.
func (s *Scene) ApplyDefaults(safeDistance float64, maxRetries int) {
	if !s.hasSafeDistance {
		s.SafeDistance, s.hasSafeDistance = safeDistance, true
	}
	if !s.hasMaxRetries {
		s.MaxRetries, s.hasMaxRetries = maxRetries, true
	}
}

// Validate checks the scene values
func (s *Scene) Validate() error {
	if !s.Start.IsFinite() {
		return fmt.Errorf("start must be finite")
	}
	if !s.End.IsFinite() {
		return fmt.Errorf("end must be finite")
	}
	if err := CheckSafeDistance(s.SafeDistance); err != nil {
		return err
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative")
	}
	return CheckObstacles(s.Obstacles)
}

// CheckSafeDistance rejects a negative or non-finite safety margin
func CheckSafeDistance(v float64) error {
	if !geometry.Finite(v) {
		return fmt.Errorf("safe_distance must be finite")
	}
	if v < 0 {
		return fmt.Errorf("safe_distance cannot be negative")
	}
	return nil
}

// CheckObstacles rejects non-finite obstacles and negative radii
func CheckObstacles(obstacles []geometry.Obstacle) error {
	for i, o := range obstacles {
		if !o.IsFinite() {
			return fmt.Errorf("obstacle %d: values must be finite", i+1)
		}
		if o.Radius < 0 {
			return fmt.Errorf("obstacle %d: radius cannot be negative", i+1)
		}
	}
	return nil
}

// CheckWaypoints rejects non-finite waypoints
func CheckWaypoints(waypoints []geometry.Point) error {
	for i, p := range waypoints {
		if !p.IsFinite() {
			return fmt.Errorf("waypoint %d must be finite", i)
		}
	}
	return nil
}

// ParseObstacleLines parses obstacles written one per line as "x, y, radius".
// A two-field line gets DefaultPointRadius. Lines that cannot be parsed are
// returned as warnings and skipped.
func ParseObstacleLines(text string) ([]geometry.Obstacle, []string) {
	var obstacles []geometry.Obstacle
	var warnings []string

	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		o, err := ParseObstacle(line)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to parse %q: %v", line, err))
			continue
		}
		obstacles = append(obstacles, o)
	}

	return obstacles, warnings
}

// ParseObstacle parses a single "x, y[, radius]" entry
func ParseObstacle(entry string) (geometry.Obstacle, error) {
	parts := strings.Split(entry, ",")
	if len(parts) < 2 {
		return geometry.Obstacle{}, fmt.Errorf("expected x, y[, radius]")
	}

	values := make([]float64, 0, 3)
	for _, part := range parts[:min(len(parts), 3)] {
		v, err := parseNumber(part)
		if err != nil {
			return geometry.Obstacle{}, err
		}
		values = append(values, v)
	}

	o := geometry.Obstacle{X: values[0], Y: values[1], Radius: DefaultPointRadius}
	if len(values) == 3 {
		o.Radius = values[2]
	}
	if o.Radius < 0 {
		return geometry.Obstacle{}, fmt.Errorf("radius cannot be negative")
	}
	return o, nil
}

// ParsePoint parses an "x,y" pair
func ParsePoint(s string) (geometry.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return geometry.Point{}, fmt.Errorf("expected x,y, got %q", s)
	}
	x, err := parseNumber(parts[0])
	if err != nil {
		return geometry.Point{}, fmt.Errorf("invalid x in %q", s)
	}
	y, err := parseNumber(parts[1])
	if err != nil {
		return geometry.Point{}, fmt.Errorf("invalid y in %q", s)
	}
	return geometry.Point{X: x, Y: y}, nil
}

// parseNumber accepts finite decimal numbers only
func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !geometry.Finite(v) {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}
