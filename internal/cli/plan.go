package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harun/vesselplan/internal/config"
	"github.com/harun/vesselplan/internal/tracing"
	"github.com/harun/vesselplan/pkg/agent"
	"github.com/harun/vesselplan/pkg/history"
	"github.com/harun/vesselplan/pkg/hooks"
	"github.com/harun/vesselplan/pkg/planner"
	"github.com/harun/vesselplan/pkg/scene"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	planScene     sceneFlags
	planWatch     bool
	planNoHistory bool
)

// newOracle builds the route oracle from the LLM config. Tests replace it.
var newOracle = func(cfg *config.Config, logger zerolog.Logger) (planner.Oracle, error) {
	if err := cfg.RequireLLM(); err != nil {
		return nil, err
	}
	return agent.NewOracle(agent.OracleConfig{
		Logger:       logger,
		AuthProfiles: cfg.LLM.AuthProfiles(),
		Temperature:  cfg.LLM.Temperature,
		MaxTokens:    cfg.LLM.MaxTokens,
		Cooldown:     cfg.LLM.Cooldown,
	})
}

var planCmd = &cobra.Command{
	Use:   "plan [scene.yaml]",
	Short: "Plan a safe route",
	Long: `Plan a waypoint route from start to end that keeps the safety distance
from every obstacle. The scene comes from a YAML file, from flags, or from
both with flags taking precedence. The result is printed as JSON.

With --watch the scene file is re-planned every time it changes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlan,
}

func init() {
	planScene.register(planCmd)
	planCmd.Flags().BoolVar(&planWatch, "watch", false, "re-plan whenever the scene file changes")
	planCmd.Flags().BoolVar(&planNoHistory, "no-history", false, "do not archive the result")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	rt, err := setupEnv(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	var path string
	if len(args) > 0 {
		path = args[0]
	}
	if planWatch && path == "" {
		return fmt.Errorf("--watch requires a scene file")
	}

	p, err := newPlanner(rt)
	if err != nil {
		return err
	}

	var store *history.Store
	if rt.cfg.History.Enabled && !planNoHistory {
		store, err = history.Open(history.Config{DBPath: rt.cfg.History.DBPath, Logger: rt.log.Zerolog()})
		if err != nil {
			return err
		}
		defer store.Close()
	}

	logger := rt.logger("cli")
	if !planWatch {
		req, err := resolvePlanRequest(cmd, path, rt.cfg, logger)
		if err != nil {
			return err
		}
		res := planOnce(cmd.Context(), cmd, rt, p, store, req, logger)
		if res.Status == planner.StatusFailed {
			return fmt.Errorf("planning failed: %s", res.Error)
		}
		return nil
	}

	return watchPlan(cmd, path, rt, p, store, logger)
}

func newPlanner(rt *runEnv) (*planner.Planner, error) {
	oracle, err := newOracle(rt.cfg, rt.log.Zerolog())
	if err != nil {
		return nil, err
	}
	return planner.New(planner.Config{
		Oracle:            oracle,
		Logger:            rt.log.Zerolog(),
		Analyzer:          rt.cfg.Planner.Analyzer(),
		AttemptTimeout:    rt.cfg.Planner.AttemptTimeout,
		EnforceEndpoints:  rt.cfg.Planner.EnforceEndpoints,
		EndpointTolerance: rt.cfg.Planner.EndpointTolerance,
	})
}

func resolvePlanRequest(cmd *cobra.Command, path string, cfg *config.Config, logger zerolog.Logger) (planner.Request, error) {
	s, warnings, err := planScene.resolve(cmd, path, cfg)
	if err != nil {
		return planner.Request{}, err
	}
	for _, w := range warnings {
		logger.Warn().Msg(w)
	}
	return requestFromScene(s), nil
}

// planOnce runs one planning loop, archives it, runs the hooks and prints the result
func planOnce(ctx context.Context, cmd *cobra.Command, rt *runEnv, p *planner.Planner, store *history.Store, req planner.Request, logger zerolog.Logger) planner.Result {
	traceID := tracing.NewTraceID()
	ctx = tracing.WithTraceID(ctx, traceID)
	res := p.Plan(ctx, req)

	if store != nil {
		if err := store.Save(context.WithoutCancel(ctx), req, res); err != nil {
			logger.Warn().Err(err).Str("plan_id", res.ID).Msg("Failed to archive plan")
		}
	}
	rt.trigger(context.WithoutCancel(ctx), hooks.EventPlanCompleted, map[string]interface{}{
		"plan_id":       res.ID,
		"status":        string(res.Status),
		"attempts":      res.Attempts,
		"waypoints":     len(res.Waypoints),
		"safe_distance": res.SafeDistance,
		"error":         res.Error,
		"trace_id":      traceID,
	})
	if err := writeJSON(cmd, res); err != nil {
		logger.Error().Err(err).Msg("Failed to write result")
	}
	return res
}

func watchPlan(cmd *cobra.Command, path string, rt *runEnv, p *planner.Planner, store *history.Store, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	changed := make(chan struct{}, 1)
	watcher, err := scene.NewWatcher(scene.WatcherConfig{
		Path: path,
		OnChange: func(*scene.Scene) {
			select {
			case changed <- struct{}{}:
			default:
			}
		},
		Logger: rt.log.Zerolog(),
	})
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		return err
	}
	defer watcher.Stop()

	logger.Info().Str("scene", path).Msg("Watching scene file")

	// the first run plans the scene as it is now
	changed <- struct{}{}
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Stopped watching")
			return nil
		case <-changed:
			req, err := resolvePlanRequest(cmd, path, rt.cfg, logger)
			if err != nil {
				logger.Error().Err(err).Msg("Scene rejected")
				continue
			}
			planOnce(ctx, cmd, rt, p, store, req, logger)
		}
	}
}
