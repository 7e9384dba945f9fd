package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harun/vesselplan/internal/observability"
	"github.com/harun/vesselplan/pkg/geometry"
	"github.com/harun/vesselplan/pkg/history"
	"github.com/harun/vesselplan/pkg/hooks"
	"github.com/harun/vesselplan/pkg/simulator"
	"github.com/spf13/cobra"
)

var (
	simulateScene     sceneFlags
	simulateWaypoints string
	simulateRoute     string
	simulatePlanID    string
	simulateRealtime  bool
	simulateFrames    bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate [scene.yaml]",
	Short: "Sail a vessel along a route",
	Long: `Move a simulated vessel from the start point through every waypoint and
grade its clearance to each obstacle at every step. The route is an archived
plan (--plan-id) or given with --waypoints or --route against a scene. Without
a start point the vessel starts at the first waypoint.

Frames are printed as JSON lines with --frames; a summary is always printed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSimulate,
}

func init() {
	simulateScene.pointsOptional = true
	simulateScene.register(simulateCmd)
	simulateCmd.Flags().StringVar(&simulateWaypoints, "waypoints", "", "route as x,y;x,y;...")
	simulateCmd.Flags().StringVar(&simulateRoute, "route", "", "JSON file with a waypoints array")
	simulateCmd.Flags().StringVar(&simulatePlanID, "plan-id", "", "simulate an archived plan")
	simulateCmd.Flags().BoolVar(&simulateRealtime, "realtime", false, "pace frames at the configured frame interval")
	simulateCmd.Flags().BoolVar(&simulateFrames, "frames", false, "print every frame as a JSON line")
	rootCmd.AddCommand(simulateCmd)
}

type simulationInput struct {
	start        geometry.Point
	waypoints    []geometry.Point
	obstacles    []geometry.Obstacle
	safeDistance float64
}

func runSimulate(cmd *cobra.Command, args []string) error {
	rt, err := setupEnv(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	var path string
	if len(args) > 0 {
		path = args[0]
	}

	var in simulationInput
	if simulatePlanID != "" {
		in, err = simulationFromHistory(cmd, rt)
	} else {
		in, err = simulationFromScene(cmd, rt, path)
	}
	if err != nil {
		return err
	}

	cfg := rt.cfg.Simulation
	var interval time.Duration
	if simulateRealtime {
		interval = cfg.FrameInterval
	}
	sim, err := simulator.New(simulator.Config{
		Obstacles:        in.obstacles,
		SafeDistance:     in.safeDistance,
		Speed:            cfg.Speed,
		ArrivalThreshold: cfg.ArrivalThreshold,
		FrameInterval:    interval,
		MaxFrames:        cfg.MaxFrames,
		Logger:           rt.log.Zerolog(),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var emit simulator.EmitFunc
	if simulateFrames {
		enc := json.NewEncoder(cmd.OutOrStdout())
		emit = func(f simulator.Frame) error {
			return enc.Encode(f)
		}
	}

	summary, runErr := sim.Run(ctx, in.start, in.waypoints, emit)

	status := "completed"
	if runErr != nil {
		status = "aborted"
	}
	observability.RecordSimulationAudit(ctx, "cli", status, map[string]interface{}{
		"plan_id":       simulatePlanID,
		"frames":        summary.Frames,
		"danger_frames": summary.DangerFrames,
	})

	if runErr == nil {
		rt.trigger(context.WithoutCancel(ctx), hooks.EventSimulationDone, map[string]interface{}{
			"client_id":     "cli",
			"plan_id":       simulatePlanID,
			"frames":        summary.Frames,
			"danger_frames": summary.DangerFrames,
			"completed":     summary.Completed,
		})
	}

	if err := writeJSON(cmd, summary); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("simulation stopped: %w", runErr)
	}
	return nil
}

func simulationFromHistory(cmd *cobra.Command, rt *runEnv) (simulationInput, error) {
	if simulateWaypoints != "" || simulateRoute != "" {
		return simulationInput{}, fmt.Errorf("--plan-id cannot be combined with --waypoints or --route")
	}
	store, err := history.Open(history.Config{DBPath: rt.cfg.History.DBPath, Logger: rt.log.Zerolog()})
	if err != nil {
		return simulationInput{}, err
	}
	defer store.Close()

	entry, err := store.Get(cmd.Context(), simulatePlanID)
	if err != nil {
		return simulationInput{}, fmt.Errorf("plan %s: %w", simulatePlanID, err)
	}
	if len(entry.Result.Waypoints) == 0 {
		return simulationInput{}, fmt.Errorf("plan %s has no waypoints", simulatePlanID)
	}
	return simulationInput{
		start:        entry.Request.Start,
		waypoints:    entry.Result.Waypoints,
		obstacles:    entry.Request.Obstacles,
		safeDistance: entry.Result.SafeDistance,
	}, nil
}

func simulationFromScene(cmd *cobra.Command, rt *runEnv, path string) (simulationInput, error) {
	waypoints, err := routeFromFlags(simulateWaypoints, simulateRoute)
	if err != nil {
		return simulationInput{}, err
	}
	s, warnings, err := simulateScene.resolve(cmd, path, rt.cfg)
	if err != nil {
		return simulationInput{}, err
	}
	logger := rt.logger("cli")
	for _, w := range warnings {
		logger.Warn().Msg(w)
	}

	start := s.Start
	if path == "" && !cmd.Flags().Changed("start") {
		start = waypoints[0]
	}
	return simulationInput{
		start:        start,
		waypoints:    waypoints,
		obstacles:    s.Obstacles,
		safeDistance: s.SafeDistance,
	}, nil
}
