package agent

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name string
	text string
	err  error
}

func (p *fakeProvider) Call(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &LLMResponse{Content: p.text, Usage: &TokenUsage{InputTokens: 10, OutputTokens: 5}}, nil
}

func (p *fakeProvider) Provider() string {
	return p.name
}

type fakeFactory struct {
	mu        sync.Mutex
	providers map[string]*fakeProvider
	requests  []string
	failNew   map[string]bool
}

func (f *fakeFactory) NewProvider(profile AuthProfile) (LLMProvider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, profile.ID)
	if f.failNew[profile.ID] {
		return nil, errors.New("bad credentials")
	}
	return f.providers[profile.ID], nil
}

func (f *fakeFactory) tried() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func newTestOracle(t *testing.T, factory ProviderCreator, profiles ...AuthProfile) *Oracle {
	t.Helper()
	o, err := NewOracle(OracleConfig{
		Logger:          zerolog.New(io.Discard),
		AuthProfiles:    profiles,
		ProviderFactory: factory,
		Cooldown:        DefaultCooldown,
	})
	require.NoError(t, err)
	return o
}

func TestNewOracle(t *testing.T) {
	t.Run("requires a profile", func(t *testing.T) {
		_, err := NewOracle(OracleConfig{})
		assert.Error(t, err)
	})

	t.Run("applies defaults", func(t *testing.T) {
		o := newTestOracle(t, &fakeFactory{}, AuthProfile{ID: "a", Provider: "anthropic"})
		assert.Equal(t, DefaultTemperature, o.temperature)
		assert.Equal(t, DefaultMaxTokens, o.maxTokens)
		assert.Equal(t, DefaultCooldown, o.cooldown)
	})

	t.Run("rejects a negative cooldown", func(t *testing.T) {
		_, err := NewOracle(OracleConfig{
			AuthProfiles: []AuthProfile{{ID: "a", Provider: "anthropic"}},
			Cooldown:     -time.Second,
		})
		assert.Error(t, err)
	})
}

func TestOracleUsesHighestPriorityProfile(t *testing.T) {
	factory := &fakeFactory{providers: map[string]*fakeProvider{
		"backup":  {name: "openai", text: "from backup"},
		"primary": {name: "anthropic", text: "from primary"},
	}}
	o := newTestOracle(t, factory,
		AuthProfile{ID: "backup", Provider: "openai", Priority: 2},
		AuthProfile{ID: "primary", Provider: "anthropic", Priority: 1},
	)

	text, err := o.Complete(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "from primary", text)
	assert.Equal(t, []string{"primary"}, factory.tried())
}

func TestOracleFailsOverOnRetryableError(t *testing.T) {
	factory := &fakeFactory{providers: map[string]*fakeProvider{
		"primary": {name: "anthropic", err: errors.New("529 overloaded")},
		"backup":  {name: "openai", text: "from backup"},
	}}
	o := newTestOracle(t, factory,
		AuthProfile{ID: "primary", Provider: "anthropic", Priority: 1},
		AuthProfile{ID: "backup", Provider: "openai", Priority: 2},
	)

	text, err := o.Complete(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "from backup", text)

	t.Run("failed profile cools down", func(t *testing.T) {
		profiles := o.Profiles()
		require.Len(t, profiles, 2)
		assert.Equal(t, 1, profiles[0].FailureCount)
		require.NotNil(t, profiles[0].CooldownUntil)
		assert.Greater(t, *profiles[0].CooldownUntil, time.Now().UnixMilli())
		assert.Nil(t, profiles[1].CooldownUntil)
	})

	t.Run("cooling profile is skipped", func(t *testing.T) {
		_, err := o.Complete(context.Background(), "system", "user")
		require.NoError(t, err)
		assert.Equal(t, []string{"primary", "backup", "backup"}, factory.tried())
	})

	t.Run("cooldown expires", func(t *testing.T) {
		o.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
		factory.providers["primary"].err = nil
		factory.providers["primary"].text = "primary again"

		text, err := o.Complete(context.Background(), "system", "user")
		require.NoError(t, err)
		assert.Equal(t, "primary again", text)
		assert.Equal(t, 0, o.Profiles()[0].FailureCount)
	})
}

func TestOracleStopsOnPermanentError(t *testing.T) {
	factory := &fakeFactory{providers: map[string]*fakeProvider{
		"primary": {name: "anthropic", err: errors.New("invalid x-api-key")},
		"backup":  {name: "openai", text: "unused"},
	}}
	o := newTestOracle(t, factory,
		AuthProfile{ID: "primary", Provider: "anthropic", Priority: 1},
		AuthProfile{ID: "backup", Provider: "openai", Priority: 2},
	)

	_, err := o.Complete(context.Background(), "system", "user")
	assert.EqualError(t, err, "invalid x-api-key")
	assert.Equal(t, []string{"primary"}, factory.tried())
}

func TestOracleAllProfilesFail(t *testing.T) {
	factory := &fakeFactory{
		providers: map[string]*fakeProvider{
			"b": {name: "openai", err: errors.New("503 service unavailable")},
		},
		failNew: map[string]bool{"a": true},
	}
	o := newTestOracle(t, factory,
		AuthProfile{ID: "a", Provider: "anthropic", Priority: 1},
		AuthProfile{ID: "b", Provider: "openai", Priority: 2},
	)

	_, err := o.Complete(context.Background(), "system", "user")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all auth profiles failed")
	assert.Contains(t, err.Error(), "503")

	t.Run("profiles without cooldown are tried again", func(t *testing.T) {
		_, err := o.Complete(context.Background(), "system", "user")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad credentials")
		assert.Equal(t, []string{"a", "b", "a"}, factory.tried())
	})
}

// flakyProvider fails the first failures calls and answers text afterwards
type flakyProvider struct {
	mu       sync.Mutex
	failures int
	calls    int
	text     string
}

func (p *flakyProvider) Call(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failures {
		return nil, errors.New("503 service unavailable")
	}
	return &LLMResponse{Content: p.text}, nil
}

func (p *flakyProvider) Provider() string {
	return "openai"
}

func (p *flakyProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type singleFactory struct {
	provider LLMProvider
}

func (f singleFactory) NewProvider(AuthProfile) (LLMProvider, error) {
	return f.provider, nil
}

func TestOracleSingleProfileInCooldownIsStillTried(t *testing.T) {
	provider := &flakyProvider{failures: 1, text: "recovered"}
	o := newTestOracle(t, singleFactory{provider: provider}, AuthProfile{ID: "only", Provider: "openai"})

	_, err := o.Complete(context.Background(), "system", "user")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	require.NotNil(t, o.Profiles()[0].CooldownUntil)

	text, err := o.Complete(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, 2, provider.callCount())
	assert.Nil(t, o.Profiles()[0].CooldownUntil)
}

func TestOracleFallsBackToProfileRecoveringFirst(t *testing.T) {
	factory := &fakeFactory{providers: map[string]*fakeProvider{
		"primary": {name: "anthropic", text: "from primary"},
		"backup":  {name: "openai", text: "from backup"},
	}}
	o := newTestOracle(t, factory,
		AuthProfile{ID: "primary", Provider: "anthropic", Priority: 1},
		AuthProfile{ID: "backup", Provider: "openai", Priority: 2},
	)
	now := time.Now()
	later, soon := now.Add(time.Hour).UnixMilli(), now.Add(time.Minute).UnixMilli()
	o.authProfiles[0].CooldownUntil = &later
	o.authProfiles[1].CooldownUntil = &soon

	text, err := o.Complete(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "from backup", text)
	assert.Equal(t, []string{"backup"}, factory.tried())
}

func TestOracleZeroCooldown(t *testing.T) {
	provider := &flakyProvider{failures: 1, text: "ok"}
	o, err := NewOracle(OracleConfig{
		Logger:          zerolog.Nop(),
		AuthProfiles:    []AuthProfile{{ID: "only", Provider: "openai"}},
		ProviderFactory: singleFactory{provider: provider},
	})
	require.NoError(t, err)

	_, err = o.Complete(context.Background(), "system", "user")
	require.Error(t, err)

	profiles := o.Profiles()
	assert.Equal(t, 1, profiles[0].FailureCount)
	assert.Nil(t, profiles[0].CooldownUntil)
}

func TestOracleHonoursCancelledContext(t *testing.T) {
	factory := &fakeFactory{providers: map[string]*fakeProvider{"a": {name: "anthropic", text: "x"}}}
	o := newTestOracle(t, factory, AuthProfile{ID: "a", Provider: "anthropic"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Complete(ctx, "system", "user")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, factory.tried())
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, IsRetryableError(nil))
	assert.True(t, IsRetryableError(errors.New("dial tcp: connection refused")))
	assert.True(t, IsRetryableError(errors.New("POST: 429 Too Many Requests")))
	assert.True(t, IsRetryableError(errors.New("Rate limit reached")))
	assert.True(t, IsRetryableError(errors.New("502 Bad Gateway")))
	assert.False(t, IsRetryableError(errors.New("400 Bad Request: invalid model")))
}

func TestModelOrDefault(t *testing.T) {
	assert.Equal(t, "custom", AuthProfile{Provider: "anthropic", Model: "custom"}.ModelOrDefault())
	assert.Equal(t, defaultModels["anthropic"], AuthProfile{Provider: "anthropic"}.ModelOrDefault())
	assert.Equal(t, defaultModels["openai"], AuthProfile{Provider: "openai-compatible"}.ModelOrDefault())
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(nil))
	assert.Equal(t, 3, EstimateTokens([]AgentMessage{{Content: "hello world"}}))
}
