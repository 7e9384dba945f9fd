package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/harun/vesselplan/internal/observability"
	"github.com/harun/vesselplan/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// OracleConfig holds oracle configuration
type OracleConfig struct {
	Logger          zerolog.Logger
	AuthProfiles    []AuthProfile
	ProviderFactory ProviderCreator
	Temperature     float64
	MaxTokens       int
	// Cooldown is multiplied by the failure count of a profile. Zero disables
	// cooldown.
	Cooldown time.Duration
}

// Oracle sends planning prompts to LLM providers, trying auth profiles in
// priority order and cooling down profiles that fail.
type Oracle struct {
	logger          zerolog.Logger
	providerFactory ProviderCreator
	temperature     float64
	maxTokens       int
	cooldown        time.Duration
	now             func() time.Time

	authProfiles []AuthProfile
	authMu       sync.RWMutex
}

// NewOracle creates a new oracle
func NewOracle(cfg OracleConfig) (*Oracle, error) {
	observability.EnsureRegistered()

	if len(cfg.AuthProfiles) == 0 {
		return nil, fmt.Errorf("at least one auth profile is required")
	}

	providerFactory := cfg.ProviderFactory
	if providerFactory == nil {
		providerFactory = &ProviderFactory{}
	}

	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = DefaultTemperature
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	cooldown := cfg.Cooldown
	if cooldown < 0 {
		return nil, fmt.Errorf("cooldown must not be negative")
	}

	profiles := make([]AuthProfile, len(cfg.AuthProfiles))
	copy(profiles, cfg.AuthProfiles)

	return &Oracle{
		logger:          cfg.Logger.With().Str("component", "oracle").Logger(),
		providerFactory: providerFactory,
		temperature:     temperature,
		maxTokens:       maxTokens,
		cooldown:        cooldown,
		now:             time.Now,
		authProfiles:    profiles,
	}, nil
}

// Complete sends one system + user prompt pair and returns the model text
func (o *Oracle) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	o.authMu.RLock()
	profiles := make([]AuthProfile, len(o.authProfiles))
	copy(profiles, o.authProfiles)
	o.authMu.RUnlock()
	logger := tracing.LoggerFromContext(ctx, o.logger)

	sortProfilesByPriority(profiles)

	var lastErr error

	for _, profile := range o.usable(profiles, logger) {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		profileStart := time.Now()
		logger.Debug().Str("profileId", profile.ID).Msg("Trying auth profile")

		provider, err := o.providerFactory.NewProvider(profile)
		if err != nil {
			lastErr = err
			observability.RecordOracleCall(profile.Provider, time.Since(profileStart), false)
			logger.Warn().
				Str("profileId", profile.ID).
				Err(err).
				Msg("Failed to create provider")
			continue
		}

		text, err := o.callProvider(ctx, provider, profile, systemPrompt, userPrompt)
		if err == nil {
			o.updateProfileSuccess(profile.ID)
			observability.RecordOracleCall(profile.Provider, time.Since(profileStart), true)
			return text, nil
		}

		lastErr = err
		observability.RecordOracleCall(profile.Provider, time.Since(profileStart), false)
		logger.Warn().
			Str("profileId", profile.ID).
			Err(err).
			Msg("Auth profile failed")

		o.updateProfileFailure(profile.ID)

		if !IsRetryableError(err) {
			return "", err
		}
	}

	if lastErr == nil {
		return "", ErrNoProfiles
	}
	logger.Error().Err(lastErr).Msg("All auth profiles failed")
	return "", fmt.Errorf("all auth profiles failed: %w", lastErr)
}

// usable drops profiles in cooldown, keeping priority order. When every
// profile is cooling down, the one whose cooldown ends first is returned so
// the call still reaches a provider.
func (o *Oracle) usable(profiles []AuthProfile, logger zerolog.Logger) []AuthProfile {
	now := o.now().UnixMilli()
	ready := make([]AuthProfile, 0, len(profiles))
	var soonest *AuthProfile

	for i := range profiles {
		profile := profiles[i]
		if profile.CooldownUntil == nil || now >= *profile.CooldownUntil {
			observability.SetProviderCooldown(profile.Provider, false)
			ready = append(ready, profile)
			continue
		}
		observability.SetProviderCooldown(profile.Provider, true)
		logger.Debug().Str("profileId", profile.ID).Msg("Skipping profile in cooldown")
		if soonest == nil || *profile.CooldownUntil < *soonest.CooldownUntil {
			soonest = &profiles[i]
		}
	}

	if len(ready) == 0 && soonest != nil {
		logger.Debug().Str("profileId", soonest.ID).Msg("All profiles cooling down, using the one that recovers first")
		ready = append(ready, *soonest)
	}
	return ready
}

func (o *Oracle) callProvider(ctx context.Context, provider LLMProvider, profile AuthProfile, systemPrompt, userPrompt string) (string, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		tracing.TracerAgent,
		"agent.complete",
		attribute.String("provider", provider.Provider()),
		attribute.String("profile", profile.ID),
	)
	defer span.End()

	response, err := provider.Call(ctx, LLMRequest{
		Model:        profile.ModelOrDefault(),
		Messages:     []AgentMessage{{Role: "user", Content: userPrompt}},
		Temperature:  o.temperature,
		MaxTokens:    o.maxTokens,
		SystemPrompt: systemPrompt,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if response.Usage != nil {
		span.SetAttributes(
			attribute.Int("usage.input_tokens", response.Usage.InputTokens),
			attribute.Int("usage.output_tokens", response.Usage.OutputTokens),
		)
	}
	return response.Content, nil
}

// Profiles returns a copy of the current profile state
func (o *Oracle) Profiles() []AuthProfile {
	o.authMu.RLock()
	defer o.authMu.RUnlock()
	profiles := make([]AuthProfile, len(o.authProfiles))
	copy(profiles, o.authProfiles)
	return profiles
}

// updateProfileSuccess resets failure count for a profile
func (o *Oracle) updateProfileSuccess(profileID string) {
	o.authMu.Lock()
	defer o.authMu.Unlock()

	for i := range o.authProfiles {
		if o.authProfiles[i].ID == profileID {
			o.authProfiles[i].FailureCount = 0
			o.authProfiles[i].CooldownUntil = nil
			observability.SetProviderCooldown(o.authProfiles[i].Provider, false)
			break
		}
	}
}

// updateProfileFailure puts a profile into cooldown, longer after each failure
func (o *Oracle) updateProfileFailure(profileID string) {
	o.authMu.Lock()
	defer o.authMu.Unlock()

	for i := range o.authProfiles {
		if o.authProfiles[i].ID == profileID {
			o.authProfiles[i].FailureCount++
			if o.cooldown == 0 {
				break
			}
			until := o.now().Add(o.cooldown * time.Duration(o.authProfiles[i].FailureCount)).UnixMilli()
			o.authProfiles[i].CooldownUntil = &until
			observability.SetProviderCooldown(o.authProfiles[i].Provider, true)
			break
		}
	}
}

// sortProfilesByPriority sorts profiles by priority (lower = higher priority)
func sortProfilesByPriority(profiles []AuthProfile) {
	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].Priority < profiles[j].Priority
	})
}
