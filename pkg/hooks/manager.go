// Package hooks runs user-configured actions when a plan or a simulation
// finishes. An action is either a shell script, which receives the event in
// its environment, or an HTTP endpoint, which receives a signed JSON post.
package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Lifecycle events
const (
	EventPlanCompleted  = "plan.completed"
	EventSimulationDone = "simulation.done"
)

// Header names on webhook deliveries
const (
	EventHeader     = "X-Vesselplan-Event"
	SignatureHeader = "X-Vesselplan-Signature"
)

// DefaultTimeout bounds a hook that sets no timeout
const DefaultTimeout = 30 * time.Second

// Hook is one action bound to an event. Exactly one of Script and URL is set.
type Hook struct {
	ID     string
	Event  string
	Script string
	URL    string
	// Secret signs URL deliveries with HMAC-SHA256
	Secret  string
	Timeout time.Duration
	Enabled bool
}

// Config configures a Hook manager.
type Config struct {
	Enabled bool
	Hooks   []Hook
	Logger  zerolog.Logger
	// Client posts webhook deliveries; nil uses a default client
	Client *http.Client
}

// Payload is the JSON body of a webhook delivery
type Payload struct {
	Event     string                 `json:"event"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Manager executes configured hooks for lifecycle events.
type Manager struct {
	enabled bool
	logger  zerolog.Logger
	client  *http.Client

	mu           sync.RWMutex
	hooksByEvent map[string][]Hook
}

// NewManager creates a hook manager.
func NewManager(cfg Config) (*Manager, error) {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}

	manager := &Manager{
		enabled:      cfg.Enabled,
		logger:       cfg.Logger.With().Str("component", "hooks").Logger(),
		client:       client,
		hooksByEvent: make(map[string][]Hook),
	}

	if !cfg.Enabled {
		return manager, nil
	}

	for _, hook := range cfg.Hooks {
		if !hook.Enabled {
			continue
		}
		event := strings.TrimSpace(hook.Event)
		if event == "" {
			return nil, fmt.Errorf("hook event is required")
		}
		script, url := strings.TrimSpace(hook.Script), strings.TrimSpace(hook.URL)
		if script == "" && url == "" {
			return nil, fmt.Errorf("hook for event %q needs a script or a url", event)
		}
		if script != "" && url != "" {
			return nil, fmt.Errorf("hook for event %q cannot have both a script and a url", event)
		}
		manager.hooksByEvent[event] = append(manager.hooksByEvent[event], hook)
	}

	return manager, nil
}

// Count returns the number of enabled hooks
func (m *Manager) Count() int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, hooks := range m.hooksByEvent {
		n += len(hooks)
	}
	return n
}

// Trigger executes hooks registered for an event.
func (m *Manager) Trigger(ctx context.Context, event string, data map[string]interface{}) error {
	if m == nil || !m.enabled {
		return nil
	}
	event = strings.TrimSpace(event)
	if event == "" {
		return fmt.Errorf("event is required")
	}

	m.mu.RLock()
	hooks := append([]Hook(nil), m.hooksByEvent[event]...)
	m.mu.RUnlock()
	if len(hooks) == 0 {
		return nil
	}

	var errs []error
	for _, hook := range hooks {
		if err := m.executeHook(ctx, event, hook, data); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (m *Manager) executeHook(ctx context.Context, event string, hook Hook, data map[string]interface{}) error {
	if ctx == nil {
		ctx = context.Background()
	}

	hookID := hook.ID
	if strings.TrimSpace(hookID) == "" {
		hookID = event
	}

	timeout := hook.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if strings.TrimSpace(hook.URL) != "" {
		if err := m.deliver(runCtx, event, hook, data); err != nil {
			return fmt.Errorf("hook %s failed: %w", hookID, err)
		}
		m.logger.Debug().Str("event", event).Str("hook_id", hookID).Msg("Webhook delivered")
		return nil
	}

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", hook.Script)
	cmd.Env = buildHookEnvironment(event, data)

	output, err := cmd.CombinedOutput()
	outputText := strings.TrimSpace(string(output))
	if err != nil {
		if outputText != "" {
			return fmt.Errorf("hook %s failed: %w: %s", hookID, err, outputText)
		}
		return fmt.Errorf("hook %s failed: %w", hookID, err)
	}

	if outputText != "" {
		m.logger.Debug().
			Str("event", event).
			Str("hook_id", hookID).
			Str("output", outputText).
			Msg("Hook executed")
	}

	return nil
}

// deliver posts the event to the hook URL. Any non-2xx answer is an error.
func (m *Manager) deliver(ctx context.Context, event string, hook Hook, data map[string]interface{}) error {
	body, err := json.Marshal(Payload{Event: event, Timestamp: time.Now().UTC(), Data: data})
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, event)
	if hook.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(body, hook.Secret))
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("endpoint answered %s", resp.Status)
	}
	return nil
}

func buildHookEnvironment(event string, data map[string]interface{}) []string {
	env := append([]string{}, os.Environ()...)
	env = append(env, "VESSELPLAN_HOOK_EVENT="+event)

	if len(data) == 0 {
		return env
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		envKey := "VESSELPLAN_HOOK_DATA_" + normalizeEnvKey(key)
		env = append(env, envKey+"="+fmt.Sprintf("%v", data[key]))
	}
	return env
}

func normalizeEnvKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "UNKNOWN"
	}

	upper := strings.ToUpper(key)
	builder := strings.Builder{}
	builder.Grow(len(upper))
	for _, r := range upper {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			builder.WriteRune(r)
			continue
		}
		builder.WriteRune('_')
	}
	return builder.String()
}
