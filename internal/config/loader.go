package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix      = "VESSELPLAN"
	configDirName  = ".vesselplan"
	configFileName = "vesselplan.yaml"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader. An empty path means the default
// location under the user's home directory.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load reads the config file if it exists, applies environment overrides and
// fills derived paths. A missing file is not an error.
func (l *Loader) Load() (*Config, error) {
	configPath, err := l.path()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindLegacyEnv(v)

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Dir(configPath)
	}
	if cfg.History.DBPath == "" {
		cfg.History.DBPath = filepath.Join(cfg.DataDir, "history.db")
	}
	if cfg.Logging.AuditFile == "" {
		cfg.Logging.AuditFile = filepath.Join(cfg.DataDir, "audit.log")
	}

	return cfg, nil
}

// setDefaults registers every key so environment variables can override
// values that the config file does not mention.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("data_dir", d.DataDir)

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.cooldown", d.LLM.Cooldown)
	v.SetDefault("llm.profiles", d.LLM.Profiles)

	v.SetDefault("planner.safe_distance", d.Planner.SafeDistance)
	v.SetDefault("planner.max_retries", d.Planner.MaxRetries)
	v.SetDefault("planner.attempt_timeout", d.Planner.AttemptTimeout)
	v.SetDefault("planner.narrow_gap", d.Planner.NarrowGap)
	v.SetDefault("planner.caution_gap", d.Planner.CautionGap)
	v.SetDefault("planner.enforce_endpoints", d.Planner.EnforceEndpoints)
	v.SetDefault("planner.endpoint_tolerance", d.Planner.EndpointTolerance)

	v.SetDefault("simulation.speed", d.Simulation.Speed)
	v.SetDefault("simulation.arrival_threshold", d.Simulation.ArrivalThreshold)
	v.SetDefault("simulation.frame_interval", d.Simulation.FrameInterval)
	v.SetDefault("simulation.max_frames", d.Simulation.MaxFrames)
	v.SetDefault("simulation.map_range", d.Simulation.MapRange)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.pretty", d.Logging.Pretty)
	v.SetDefault("logging.max_size", d.Logging.MaxSize)
	v.SetDefault("logging.max_age", d.Logging.MaxAge)
	v.SetDefault("logging.compress", d.Logging.Compress)
	v.SetDefault("logging.redaction", d.Logging.Redaction)
	v.SetDefault("logging.audit_file", d.Logging.AuditFile)

	v.SetDefault("gateway.host", d.Gateway.Host)
	v.SetDefault("gateway.port", d.Gateway.Port)
	v.SetDefault("gateway.plan_timeout", d.Gateway.PlanTimeout)
	v.SetDefault("gateway.shared_secret", d.Gateway.SharedSecret)
	v.SetDefault("gateway.plan_rate_limit", d.Gateway.PlanRateLimit)
	v.SetDefault("gateway.plan_concurrency", d.Gateway.PlanConcurrency)

	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.db_path", d.History.DBPath)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)

	v.SetDefault("hooks.enabled", d.Hooks.Enabled)
	v.SetDefault("hooks.hooks", d.Hooks.Hooks)
}

// bindLegacyEnv accepts the unprefixed LLM_* variables as a fallback for
// the primary endpoint.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("llm.provider", envPrefix+"_LLM_PROVIDER", "LLM_PROVIDER")
	_ = v.BindEnv("llm.model", envPrefix+"_LLM_MODEL", "LLM_MODEL_NAME")
	_ = v.BindEnv("llm.api_key", envPrefix+"_LLM_API_KEY", "LLM_API_KEY")
	_ = v.BindEnv("llm.base_url", envPrefix+"_LLM_BASE_URL", "LLM_BASE_URL")
}

// Save writes cfg as YAML. The file may hold API keys, so it is created 0600.
func (l *Loader) Save(cfg *Config) error {
	configPath, err := l.path()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GetConfigPath returns the config file path, or "" when the home directory is unknown
func (l *Loader) GetConfigPath() string {
	p, err := l.path()
	if err != nil {
		return ""
	}
	return p
}

func (l *Loader) path() (string, error) {
	if l.configPath != "" {
		return l.configPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, configDirName, configFileName), nil
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
