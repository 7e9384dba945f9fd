package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/harun/vesselplan/internal/config"
	"github.com/harun/vesselplan/internal/logger"
	"github.com/harun/vesselplan/internal/observability"
	"github.com/harun/vesselplan/internal/tracing"
	"github.com/harun/vesselplan/pkg/hooks"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// runEnv bundles what every command needs after the config is loaded
type runEnv struct {
	cfg     *config.Config
	log     *logger.Logger
	hooks   *hooks.Manager
	tracing bool
	audit   bool
}

// setupEnv loads the config, applies --log-level and builds the logger.
// Tracing and the audit log are started only when the config enables them.
func setupEnv(cmd *cobra.Command) (*runEnv, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	lg, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		Console:    true,
		Pretty:     cfg.Logging.Pretty,
		Redaction:  cfg.Logging.Redaction,
		MaxSizeMB:  cfg.Logging.MaxSize,
		MaxAgeDays: cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	hm, err := hooks.NewManager(hooks.Config{
		Enabled: cfg.Hooks.Enabled,
		Hooks:   cfg.Hooks.Entries(),
		Logger:  lg.Zerolog(),
	})
	if err != nil {
		_ = lg.Close()
		return nil, fmt.Errorf("invalid hooks: %w", err)
	}

	rt := &runEnv{cfg: cfg, log: lg, hooks: hm}

	zl := lg.Zerolog()
	if cfg.Logging.AuditFile != "" {
		if err := openAuditLog(cfg.Logging.AuditFile); err != nil {
			zl.Warn().Err(err).Str("path", cfg.Logging.AuditFile).Msg("Audit log disabled")
		} else {
			rt.audit = true
		}
	}

	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(cfg.Tracing.ServiceName); err != nil {
			zl.Warn().Err(err).Msg("Failed to initialize tracing")
		} else {
			rt.tracing = true
		}
	}

	return rt, nil
}

func openAuditLog(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}
	return observability.InitAuditLogger(path)
}

// logger returns a component logger
func (r *runEnv) logger(component string) zerolog.Logger {
	return r.log.Component(component)
}

// trigger runs the hooks for event and logs failures
func (r *runEnv) trigger(ctx context.Context, event string, data map[string]interface{}) {
	if err := r.hooks.Trigger(ctx, event, data); err != nil {
		lg := r.log.Zerolog()
		lg.Warn().Err(err).Str("event", event).Msg("Hook failed")
	}
}

// Close flushes tracing, the audit log and the log file
func (r *runEnv) Close() {
	if r.tracing {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = tracing.ShutdownOpenTelemetry(ctx)
		cancel()
	}
	if r.audit {
		_ = observability.GetAuditLogger().Close()
		observability.SetAuditOutput(io.Discard)
	}
	_ = r.log.Close()
}
