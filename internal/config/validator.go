package config

import (
	"fmt"
	"strings"

	"github.com/harun/vesselplan/pkg/hooks"
)

var (
	validProviders = []string{"anthropic", "openai", "openai-compatible"}
	validLogLevels = []string{"debug", "info", "warn", "error"}
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateProvider checks a provider name
func (v *Validator) ValidateProvider(provider string) error {
	for _, p := range validProviders {
		if provider == p {
			return nil
		}
	}
	return fmt.Errorf("invalid provider %q (must be one of: %s)", provider, strings.Join(validProviders, ", "))
}

// ValidateAPIKey validates an API key format for the given provider
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	switch provider {
	case "anthropic":
		if key == "" {
			return fmt.Errorf("anthropic API key cannot be empty")
		}
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if key == "" {
			return fmt.Errorf("openai API key cannot be empty")
		}
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}
	// openai-compatible servers accept arbitrary keys, or none
	return nil
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %g", temp)
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	for _, valid := range validLogLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLogLevels, ", "))
}

// ValidatePort validates a TCP port
func (v *Validator) ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

func (v *Validator) validateEndpoint(name, provider, key, baseURL string) []error {
	var errs []error
	if err := v.ValidateProvider(provider); err != nil {
		return []error{fmt.Errorf("%s: %w", name, err)}
	}
	if provider == "openai-compatible" && baseURL == "" {
		errs = append(errs, fmt.Errorf("%s: base_url is required for openai-compatible providers", name))
	}
	if err := v.ValidateAPIKey(key, provider); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
	}
	return errs
}

// ValidateConfig performs comprehensive validation and returns every problem found
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errs []error

	// The primary endpoint is only checked once a key or base URL is present
	if cfg.LLM.APIKey != "" || cfg.LLM.BaseURL != "" {
		errs = append(errs, v.validateEndpoint("llm", cfg.LLM.Provider, cfg.LLM.APIKey, cfg.LLM.BaseURL)...)
	}
	seen := make(map[string]bool)
	for i, p := range cfg.LLM.Profiles {
		name := fmt.Sprintf("llm profile %d", i)
		if p.ID != "" {
			name = fmt.Sprintf("llm profile %s", p.ID)
			if seen[p.ID] {
				errs = append(errs, fmt.Errorf("%s: duplicate id", name))
			}
			seen[p.ID] = true
		}
		errs = append(errs, v.validateEndpoint(name, p.Provider, p.APIKey, p.BaseURL)...)
	}
	if err := v.ValidateTemperature(cfg.LLM.Temperature); err != nil {
		errs = append(errs, fmt.Errorf("llm: %w", err))
	}
	if err := v.ValidateMaxTokens(cfg.LLM.MaxTokens); err != nil {
		errs = append(errs, fmt.Errorf("llm: %w", err))
	}
	if cfg.LLM.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("llm.cooldown must be >= 0"))
	}

	p := cfg.Planner
	if p.SafeDistance < 0 {
		errs = append(errs, fmt.Errorf("planner.safe_distance must be >= 0"))
	}
	if p.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("planner.max_retries must be >= 0"))
	}
	if p.AttemptTimeout < 0 {
		errs = append(errs, fmt.Errorf("planner.attempt_timeout must be >= 0"))
	}
	if p.NarrowGap < 0 || p.CautionGap < 0 {
		errs = append(errs, fmt.Errorf("planner gap thresholds must be >= 0"))
	}
	if p.CautionGap < p.NarrowGap {
		errs = append(errs, fmt.Errorf("planner.caution_gap (%g) must not be below planner.narrow_gap (%g)", p.CautionGap, p.NarrowGap))
	}
	if p.EndpointTolerance < 0 {
		errs = append(errs, fmt.Errorf("planner.endpoint_tolerance must be >= 0"))
	}

	s := cfg.Simulation
	if s.Speed <= 0 {
		errs = append(errs, fmt.Errorf("simulation.speed must be > 0"))
	}
	if s.ArrivalThreshold < 0 {
		errs = append(errs, fmt.Errorf("simulation.arrival_threshold must be >= 0"))
	}
	if s.FrameInterval < 0 {
		errs = append(errs, fmt.Errorf("simulation.frame_interval must be >= 0"))
	}
	if s.MaxFrames < 0 {
		errs = append(errs, fmt.Errorf("simulation.max_frames must be >= 0"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if err := v.ValidatePort(cfg.Gateway.Port); err != nil {
		errs = append(errs, fmt.Errorf("gateway: %w", err))
	}
	if cfg.Gateway.PlanTimeout < 0 {
		errs = append(errs, fmt.Errorf("gateway.plan_timeout cannot be negative"))
	}
	if cfg.Gateway.PlanRateLimit < 0 || cfg.Gateway.PlanConcurrency < 0 {
		errs = append(errs, fmt.Errorf("gateway rate limits cannot be negative"))
	}
	if cfg.History.Enabled && cfg.History.DBPath == "" {
		errs = append(errs, fmt.Errorf("history.db_path is required when history is enabled"))
	}
	if cfg.Tracing.Enabled && cfg.Tracing.ServiceName == "" {
		errs = append(errs, fmt.Errorf("tracing.service_name is required when tracing is enabled"))
	}

	if cfg.Hooks.Enabled {
		for i, h := range cfg.Hooks.Hooks {
			if !h.Enabled {
				continue
			}
			name := fmt.Sprintf("hook %d", i)
			if h.ID != "" {
				name = "hook " + h.ID
			}
			if h.Event != hooks.EventPlanCompleted && h.Event != hooks.EventSimulationDone {
				errs = append(errs, fmt.Errorf("%s: unknown event %q", name, h.Event))
			}
			if (h.Script == "") == (h.URL == "") {
				errs = append(errs, fmt.Errorf("%s: set exactly one of script and url", name))
			}
			if h.Timeout < 0 {
				errs = append(errs, fmt.Errorf("%s: timeout cannot be negative", name))
			}
		}
	}

	return errs
}
