package agent

import (
	"errors"
	"strings"
	"time"
)

// Defaults applied to oracle calls
const (
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 2048
	DefaultCooldown    = time.Minute
)

// Default models per provider
var defaultModels = map[string]string{
	"anthropic": "claude-3-5-sonnet-20241022",
	"openai":    "gpt-4o-mini",
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// AuthProfile represents credentials and model choice for one LLM endpoint
type AuthProfile struct {
	ID            string `json:"id"`
	Provider      string `json:"provider"` // "anthropic", "openai", "openai-compatible"
	Model         string `json:"model,omitempty"`
	APIKey        string `json:"api_key"`
	BaseURL       string `json:"base_url,omitempty"`
	CooldownUntil *int64 `json:"cooldown_until,omitempty"`
	FailureCount  int    `json:"failure_count"`
	Priority      int    `json:"priority"`
}

// ModelOrDefault returns the profile model or the provider default
func (p AuthProfile) ModelOrDefault() string {
	if p.Model != "" {
		return p.Model
	}
	if p.Provider == "openai-compatible" {
		return defaultModels["openai"]
	}
	return defaultModels[p.Provider]
}

// AgentMessage represents a message in the conversation
type AgentMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ErrNoProfiles is returned when no profile could be tried
var ErrNoProfiles = errors.New("no auth profile available")

// IsRetryableError checks if an error should be tried against the next profile
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errMsg := strings.ToLower(err.Error())

	for _, marker := range []string{
		// network
		"econnreset", "etimedout", "connection refused", "connection reset", "timeout", "eof",
		// rate limits
		"429", "rate limit", "overloaded",
		// server errors
		"500", "502", "503", "504", "529",
	} {
		if strings.Contains(errMsg, marker) {
			return true
		}
	}

	return false
}

// EstimateTokens provides a rough token count estimation
func EstimateTokens(messages []AgentMessage) int {
	totalChars := 0
	for _, msg := range messages {
		totalChars += len(msg.Content)
	}
	// Rough estimation: 1 token ≈ 4 characters
	return (totalChars + 3) / 4
}
