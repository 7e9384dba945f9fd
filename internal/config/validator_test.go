package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAPIKey(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name     string
		key      string
		provider string
		wantErr  bool
	}{
		{"valid anthropic key", "sk-ant-api03-test", "anthropic", false},
		{"anthropic key with wrong prefix", "sk-test", "anthropic", true},
		{"empty anthropic key", "", "anthropic", true},
		{"valid openai key", "sk-test123", "openai", false},
		{"openai key with wrong prefix", "key-123", "openai", true},
		{"compatible server without key", "", "openai-compatible", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateAPIKey(tt.key, tt.provider)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateProvider(t *testing.T) {
	v := NewValidator()
	assert.NoError(t, v.ValidateProvider("anthropic"))
	assert.NoError(t, v.ValidateProvider("openai-compatible"))
	assert.Error(t, v.ValidateProvider("gemini"))
	assert.Error(t, v.ValidateProvider(""))
}

func TestValidateRanges(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateTemperature(0))
	assert.NoError(t, v.ValidateTemperature(1))
	assert.Error(t, v.ValidateTemperature(1.5))

	assert.NoError(t, v.ValidateMaxTokens(2048))
	assert.Error(t, v.ValidateMaxTokens(0))
	assert.Error(t, v.ValidateMaxTokens(300000))

	assert.NoError(t, v.ValidatePort(8080))
	assert.Error(t, v.ValidatePort(70000))

	assert.NoError(t, v.ValidateLogLevel("debug"))
	assert.Error(t, v.ValidateLogLevel("trace"))
}

func TestValidateConfig(t *testing.T) {
	v := NewValidator()

	t.Run("compatible profile needs a base url", func(t *testing.T) {
		cfg := validConfig()
		cfg.LLM.Profiles = []ProfileConfig{{ID: "local", Provider: "openai-compatible"}}
		errs := v.ValidateConfig(cfg)
		assert.Len(t, errs, 1)
		assert.Contains(t, errs[0].Error(), "base_url")
	})

	t.Run("duplicate profile ids", func(t *testing.T) {
		cfg := validConfig()
		cfg.LLM.Profiles = []ProfileConfig{
			{ID: "a", Provider: "openai", APIKey: "sk-1"},
			{ID: "a", Provider: "openai", APIKey: "sk-2"},
		}
		errs := v.ValidateConfig(cfg)
		assert.Len(t, errs, 1)
		assert.Contains(t, errs[0].Error(), "duplicate")
	})

	t.Run("speed must be positive", func(t *testing.T) {
		cfg := validConfig()
		cfg.Simulation.Speed = 0
		assert.Len(t, v.ValidateConfig(cfg), 1)
	})

	t.Run("primary endpoint checked only when configured", func(t *testing.T) {
		cfg := validConfig()
		cfg.LLM.Provider = "anthropic"
		assert.Empty(t, v.ValidateConfig(cfg))

		cfg.LLM.APIKey = "not-an-anthropic-key"
		assert.Len(t, v.ValidateConfig(cfg), 1)
	})

	t.Run("hooks", func(t *testing.T) {
		cfg := validConfig()
		cfg.Hooks.Enabled = true
		cfg.Hooks.Hooks = []HookConfig{
			{ID: "ok", Event: "plan.completed", Script: "true", Enabled: true},
			{ID: "off", Event: "bogus", Enabled: false},
		}
		assert.Empty(t, v.ValidateConfig(cfg))

		cfg.Hooks.Hooks = append(cfg.Hooks.Hooks,
			HookConfig{ID: "bad-event", Event: "plan.started", Script: "true", Enabled: true},
			HookConfig{ID: "no-action", Event: "simulation.done", Enabled: true},
		)
		errs := v.ValidateConfig(cfg)
		require.Len(t, errs, 2)
		assert.Contains(t, errs[0].Error(), "unknown event")
		assert.Contains(t, errs[1].Error(), "exactly one")
	})

	t.Run("gateway limits", func(t *testing.T) {
		cfg := validConfig()
		cfg.Gateway.PlanRateLimit = -1
		assert.Len(t, v.ValidateConfig(cfg), 1)
	})
}
