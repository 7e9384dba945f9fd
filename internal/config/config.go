package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/harun/vesselplan/pkg/agent"
	"github.com/harun/vesselplan/pkg/hooks"
	"github.com/harun/vesselplan/pkg/planner"
	"github.com/harun/vesselplan/pkg/scene"
	"github.com/harun/vesselplan/pkg/simulator"
)

// Config represents the main vesselplan configuration
type Config struct {
	LLM        LLMConfig        `json:"llm" yaml:"llm" mapstructure:"llm"`
	Planner    PlannerConfig    `json:"planner" yaml:"planner" mapstructure:"planner"`
	Simulation SimulationConfig `json:"simulation" yaml:"simulation" mapstructure:"simulation"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging" mapstructure:"logging"`
	Gateway    GatewayConfig    `json:"gateway" yaml:"gateway" mapstructure:"gateway"`
	History    HistoryConfig    `json:"history" yaml:"history" mapstructure:"history"`
	Tracing    TracingConfig    `json:"tracing" yaml:"tracing" mapstructure:"tracing"`
	Hooks      HooksConfig      `json:"hooks" yaml:"hooks" mapstructure:"hooks"`

	// DataDir holds the history database and the log file
	DataDir string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`
}

// LLMConfig configures the route oracle. The flat provider fields describe a
// single primary endpoint and can be set from the environment; Profiles adds
// failover endpoints.
type LLMConfig struct {
	Provider    string          `json:"provider" yaml:"provider" mapstructure:"provider"`
	Model       string          `json:"model" yaml:"model" mapstructure:"model"`
	APIKey      string          `json:"api_key" yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string          `json:"base_url" yaml:"base_url" mapstructure:"base_url"`
	Temperature float64         `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int             `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`
	// Cooldown benches a failing profile; zero turns it off
	Cooldown    time.Duration   `json:"cooldown" yaml:"cooldown" mapstructure:"cooldown"`
	Profiles    []ProfileConfig `json:"profiles" yaml:"profiles" mapstructure:"profiles"`
}

// ProfileConfig is one LLM endpoint. Lower priority values are tried first.
type ProfileConfig struct {
	ID       string `json:"id" yaml:"id" mapstructure:"id"`
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider"` // anthropic, openai, openai-compatible
	Model    string `json:"model" yaml:"model" mapstructure:"model"`
	APIKey   string `json:"api_key" yaml:"api_key" mapstructure:"api_key"`
	BaseURL  string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`
	Priority int    `json:"priority" yaml:"priority" mapstructure:"priority"`
}

// PlannerConfig holds request defaults and loop policy
type PlannerConfig struct {
	SafeDistance      float64       `json:"safe_distance" yaml:"safe_distance" mapstructure:"safe_distance"`
	MaxRetries        int           `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
	AttemptTimeout    time.Duration `json:"attempt_timeout" yaml:"attempt_timeout" mapstructure:"attempt_timeout"`
	NarrowGap         float64       `json:"narrow_gap" yaml:"narrow_gap" mapstructure:"narrow_gap"`
	CautionGap        float64       `json:"caution_gap" yaml:"caution_gap" mapstructure:"caution_gap"`
	EnforceEndpoints  bool          `json:"enforce_endpoints" yaml:"enforce_endpoints" mapstructure:"enforce_endpoints"`
	EndpointTolerance float64       `json:"endpoint_tolerance" yaml:"endpoint_tolerance" mapstructure:"endpoint_tolerance"`
}

// SimulationConfig holds vessel playback settings
type SimulationConfig struct {
	Speed            float64       `json:"speed" yaml:"speed" mapstructure:"speed"`
	ArrivalThreshold float64       `json:"arrival_threshold" yaml:"arrival_threshold" mapstructure:"arrival_threshold"`
	FrameInterval    time.Duration `json:"frame_interval" yaml:"frame_interval" mapstructure:"frame_interval"`
	MaxFrames        int           `json:"max_frames" yaml:"max_frames" mapstructure:"max_frames"`
	// MapRange is the chart extent advertised to simulation clients
	MapRange float64 `json:"map_range" yaml:"map_range" mapstructure:"map_range"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" yaml:"level" mapstructure:"level"`
	File      string `json:"file" yaml:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" yaml:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" yaml:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" yaml:"max_age" mapstructure:"max_age"`    // days
	Compress  bool   `json:"compress" yaml:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" yaml:"redaction" mapstructure:"redaction"`
	// AuditFile receives JSON audit events for plans and simulations
	AuditFile string `json:"audit_file" yaml:"audit_file" mapstructure:"audit_file"`
}

// GatewayConfig holds HTTP server configuration
type GatewayConfig struct {
	Host string `json:"host" yaml:"host" mapstructure:"host"`
	Port int    `json:"port" yaml:"port" mapstructure:"port"`
	// PlanTimeout bounds a whole /v1/plan request
	PlanTimeout time.Duration `json:"plan_timeout" yaml:"plan_timeout" mapstructure:"plan_timeout"`
	// SharedSecret, when set, is required on every /v1 request
	SharedSecret string `json:"shared_secret" yaml:"shared_secret" mapstructure:"shared_secret"`
	// PlanRateLimit is the number of /v1/plan requests per minute per remote address
	PlanRateLimit   int `json:"plan_rate_limit" yaml:"plan_rate_limit" mapstructure:"plan_rate_limit"`
	PlanConcurrency int `json:"plan_concurrency" yaml:"plan_concurrency" mapstructure:"plan_concurrency"`
}

// HistoryConfig holds plan archive configuration
type HistoryConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	DBPath  string `json:"db_path" yaml:"db_path" mapstructure:"db_path"`
}

// TracingConfig holds OpenTelemetry configuration
type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"service_name" yaml:"service_name" mapstructure:"service_name"`
}

// HooksConfig lists actions run when a plan or a simulation finishes
type HooksConfig struct {
	Enabled bool         `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Hooks   []HookConfig `json:"hooks" yaml:"hooks" mapstructure:"hooks"`
}

// HookConfig is one hook: a shell script or a webhook URL
type HookConfig struct {
	ID      string        `json:"id" yaml:"id" mapstructure:"id"`
	Event   string        `json:"event" yaml:"event" mapstructure:"event"` // plan.completed, simulation.done
	Script  string        `json:"script,omitempty" yaml:"script,omitempty" mapstructure:"script"`
	URL     string        `json:"url,omitempty" yaml:"url,omitempty" mapstructure:"url"`
	Secret  string        `json:"secret,omitempty" yaml:"secret,omitempty" mapstructure:"secret"`
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	Enabled bool          `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
}

// Entries converts the configured hooks for the hook manager
func (h HooksConfig) Entries() []hooks.Hook {
	entries := make([]hooks.Hook, 0, len(h.Hooks))
	for _, c := range h.Hooks {
		entries = append(entries, hooks.Hook{
			ID:      c.ID,
			Event:   c.Event,
			Script:  c.Script,
			URL:     c.URL,
			Secret:  c.Secret,
			Timeout: c.Timeout,
			Enabled: c.Enabled,
		})
	}
	return entries
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "openai",
			Temperature: agent.DefaultTemperature,
			MaxTokens:   agent.DefaultMaxTokens,
			Cooldown:    agent.DefaultCooldown,
			Profiles:    []ProfileConfig{},
		},
		Planner: PlannerConfig{
			SafeDistance:      planner.DefaultSafeDistance,
			MaxRetries:        planner.DefaultMaxRetries,
			AttemptTimeout:    60 * time.Second,
			NarrowGap:         scene.DefaultNarrowGap,
			CautionGap:        scene.DefaultCautionGap,
			EnforceEndpoints:  false,
			EndpointTolerance: planner.DefaultEndpointTolerance,
		},
		Simulation: SimulationConfig{
			Speed:            simulator.DefaultSpeed,
			ArrivalThreshold: simulator.DefaultArrivalThreshold,
			FrameInterval:    simulator.DefaultFrameInterval,
			MaxFrames:        simulator.DefaultMaxFrames,
			MapRange:         simulator.DefaultMapRange,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Pretty:    true,
			MaxSize:   50,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Gateway: GatewayConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			PlanTimeout:     5 * time.Minute,
			PlanRateLimit:   20,
			PlanConcurrency: 2,
		},
		History: HistoryConfig{
			Enabled: true,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "vesselplan",
		},
		Hooks: HooksConfig{
			Enabled: false,
			Hooks:   []HookConfig{},
		},
	}
}

// String returns a JSON representation of the config with API keys masked
func (c *Config) String() string {
	masked := *c
	masked.LLM.APIKey = maskKey(c.LLM.APIKey)
	masked.Gateway.SharedSecret = maskKey(c.Gateway.SharedSecret)
	masked.Hooks.Hooks = make([]HookConfig, len(c.Hooks.Hooks))
	for i, h := range c.Hooks.Hooks {
		h.Secret = maskKey(h.Secret)
		masked.Hooks.Hooks[i] = h
	}
	masked.LLM.Profiles = make([]ProfileConfig, len(c.LLM.Profiles))
	for i, p := range c.LLM.Profiles {
		p.APIKey = maskKey(p.APIKey)
		masked.LLM.Profiles[i] = p
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

// Validate checks that the configuration is usable. It does not require LLM
// credentials; commands that call the oracle check RequireLLM separately.
func (c *Config) Validate() error {
	return errors.Join(NewValidator().ValidateConfig(c)...)
}

// RequireLLM reports an error when no oracle endpoint is configured
func (c *Config) RequireLLM() error {
	if len(c.LLM.AuthProfiles()) == 0 {
		return fmt.Errorf("no LLM credentials configured: set llm.api_key (or VESSELPLAN_LLM_API_KEY) or add llm.profiles")
	}
	return nil
}

// AuthProfiles converts the LLM section into oracle auth profiles, sorted by
// priority. The flat primary endpoint, when it has a key, gets priority 0 and
// id "primary".
func (l LLMConfig) AuthProfiles() []agent.AuthProfile {
	profiles := make([]agent.AuthProfile, 0, len(l.Profiles)+1)
	if l.APIKey != "" || (l.Provider == "openai-compatible" && l.BaseURL != "") {
		profiles = append(profiles, agent.AuthProfile{
			ID:       "primary",
			Provider: l.Provider,
			Model:    l.Model,
			APIKey:   l.APIKey,
			BaseURL:  l.BaseURL,
			Priority: 0,
		})
	}
	for i, p := range l.Profiles {
		id := p.ID
		if id == "" {
			id = fmt.Sprintf("profile-%d", i+1)
		}
		profiles = append(profiles, agent.AuthProfile{
			ID:       id,
			Provider: p.Provider,
			Model:    p.Model,
			APIKey:   p.APIKey,
			BaseURL:  p.BaseURL,
			Priority: p.Priority,
		})
	}
	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].Priority < profiles[j].Priority
	})
	return profiles
}

// Analyzer returns the corridor analyzer configured for the planner
func (p PlannerConfig) Analyzer() scene.Analyzer {
	return scene.Analyzer{NarrowGap: p.NarrowGap, CautionGap: p.CautionGap}
}
