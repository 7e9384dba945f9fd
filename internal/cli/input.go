package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/harun/vesselplan/internal/config"
	"github.com/harun/vesselplan/pkg/geometry"
	"github.com/harun/vesselplan/pkg/planner"
	"github.com/harun/vesselplan/pkg/scene"
	"github.com/spf13/cobra"
)

// sceneFlags describe a planning problem on the command line. They override
// the matching fields of a scene file when both are given.
type sceneFlags struct {
	start         string
	end           string
	obstacles     []string
	obstaclesFile string
	safeDistance  float64
	maxRetries    int
	instruction   string
	// pointsOptional lets a command without a scene file omit --start and --end
	pointsOptional bool
}

func (f *sceneFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.start, "start", "", "start point as x,y")
	cmd.Flags().StringVar(&f.end, "end", "", "end point as x,y")
	cmd.Flags().StringArrayVar(&f.obstacles, "obstacle", nil, "obstacle as x,y[,radius] (repeatable)")
	cmd.Flags().StringVar(&f.obstaclesFile, "obstacles-file", "", "file with one x, y[, radius] obstacle per line")
	cmd.Flags().Float64Var(&f.safeDistance, "safe-distance", planner.DefaultSafeDistance, "minimum clearance from obstacle edges in metres")
	cmd.Flags().IntVar(&f.maxRetries, "max-retries", planner.DefaultMaxRetries, "maximum planning attempts")
	cmd.Flags().StringVar(&f.instruction, "instruction", "", "extra routing instruction for the planner")
}

// resolve builds a scene from an optional scene file and the flags. Values
// absent from both come from the planner section of cfg. The returned
// warnings name obstacle lines that were skipped.
func (f *sceneFlags) resolve(cmd *cobra.Command, path string, cfg *config.Config) (*scene.Scene, []string, error) {
	flags := cmd.Flags()

	var s *scene.Scene
	if path != "" {
		loaded, err := scene.LoadFile(path)
		if err != nil {
			return nil, nil, err
		}
		s = loaded
	} else {
		if !f.pointsOptional && (!flags.Changed("start") || !flags.Changed("end")) {
			return nil, nil, fmt.Errorf("a scene file or both --start and --end are required")
		}
		s = &scene.Scene{}
	}
	s.ApplyDefaults(cfg.Planner.SafeDistance, cfg.Planner.MaxRetries)

	if flags.Changed("start") {
		p, err := scene.ParsePoint(f.start)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --start: %w", err)
		}
		s.Start = p
	}
	if flags.Changed("end") {
		p, err := scene.ParsePoint(f.end)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --end: %w", err)
		}
		s.End = p
	}

	var warnings []string
	if flags.Changed("obstacle") || flags.Changed("obstacles-file") {
		var obstacles []geometry.Obstacle
		for _, entry := range f.obstacles {
			o, err := scene.ParseObstacle(entry)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid --obstacle %q: %w", entry, err)
			}
			obstacles = append(obstacles, o)
		}
		if f.obstaclesFile != "" {
			data, err := os.ReadFile(f.obstaclesFile)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to read obstacles file: %w", err)
			}
			parsed, skipped := scene.ParseObstacleLines(string(data))
			obstacles = append(obstacles, parsed...)
			warnings = skipped
		}
		s.Obstacles = obstacles
	}

	if flags.Changed("safe-distance") {
		s.SafeDistance = f.safeDistance
	}
	if flags.Changed("max-retries") {
		s.MaxRetries = f.maxRetries
	}
	if flags.Changed("instruction") {
		s.Instruction = f.instruction
	}

	if err := s.Validate(); err != nil {
		return nil, nil, err
	}
	return s, warnings, nil
}

func requestFromScene(s *scene.Scene) planner.Request {
	req := planner.NewRequest(s.Start, s.End, s.Obstacles, s.Instruction)
	req.SafeDistance = s.SafeDistance
	req.MaxRetries = s.MaxRetries
	return req
}

// parseWaypoints parses "x,y;x,y;..."
func parseWaypoints(s string) ([]geometry.Point, error) {
	var points []geometry.Point
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		p, err := scene.ParsePoint(part)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("no waypoints given")
	}
	return points, nil
}

// loadRoute reads the waypoints of a saved plan result or any JSON object
// with a "waypoints" array.
func loadRoute(path string) ([]geometry.Point, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read route file: %w", err)
	}
	var route struct {
		Waypoints []geometry.Point `json:"waypoints"`
	}
	if err := json.Unmarshal(data, &route); err != nil {
		return nil, fmt.Errorf("failed to parse route file: %w", err)
	}
	if len(route.Waypoints) == 0 {
		return nil, fmt.Errorf("route file has no waypoints")
	}
	return route.Waypoints, nil
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
