package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harun/vesselplan/pkg/gateway"
	"github.com/harun/vesselplan/pkg/history"
	"github.com/harun/vesselplan/pkg/simulator"
	"github.com/spf13/cobra"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket gateway",
	Long: `Serve the planner over HTTP. POST /v1/plan plans a route, POST /v1/validate
checks one, /v1/plans lists the archive, and the /v1/events and /v1/simulate
WebSocket endpoints stream plan events and simulation frames. Prometheus
metrics are served on /metrics.

Without LLM credentials the gateway still validates, simulates and serves the
archive, but /v1/plan answers 503.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (overrides gateway.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides gateway.port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := setupEnv(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	logger := rt.logger("cli")
	cfg := rt.cfg

	if cmd.Flags().Changed("host") {
		cfg.Gateway.Host = serveHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Gateway.Port = servePort
	}

	gwCfg := gateway.Config{
		Host:         cfg.Gateway.Host,
		Port:         cfg.Gateway.Port,
		SharedSecret: cfg.Gateway.SharedSecret,
		Defaults: gateway.RequestDefaults{
			SafeDistance: cfg.Planner.SafeDistance,
			MaxRetries:   cfg.Planner.MaxRetries,
		},
		PlanTimeout: cfg.Gateway.PlanTimeout,
		Simulation: simulator.Config{
			Speed:            cfg.Simulation.Speed,
			ArrivalThreshold: cfg.Simulation.ArrivalThreshold,
			FrameInterval:    cfg.Simulation.FrameInterval,
			MaxFrames:        cfg.Simulation.MaxFrames,
		},
		MapRange:        cfg.Simulation.MapRange,
		PlanRateLimit:   cfg.Gateway.PlanRateLimit,
		PlanConcurrency: cfg.Gateway.PlanConcurrency,
		Logger:          rt.log.Zerolog(),
	}
	if rt.hooks.Count() > 0 {
		gwCfg.Hooks = rt.hooks
	}

	if err := cfg.RequireLLM(); err != nil {
		logger.Warn().Err(err).Msg("Planning disabled")
	} else {
		p, err := newPlanner(rt)
		if err != nil {
			return err
		}
		gwCfg.Planner = p
	}

	if cfg.History.Enabled {
		store, err := history.Open(history.Config{DBPath: cfg.History.DBPath, Logger: rt.log.Zerolog()})
		if err != nil {
			return err
		}
		defer store.Close()
		gwCfg.History = store
	}

	srv, err := gateway.NewServer(gwCfg)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	if cfg.Gateway.SharedSecret == "" {
		logger.Warn().Msg("No shared secret configured; the API is open to anyone who can reach it")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Gateway listening on %s\n", srv.Addr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info().Msg("Shutting down gateway")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
