package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/harun/vesselplan/internal/config"
	"github.com/harun/vesselplan/pkg/gateway"
	"github.com/harun/vesselplan/pkg/history"
	"github.com/harun/vesselplan/pkg/planner"
	"github.com/harun/vesselplan/pkg/simulator"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const straightRoute = `{"waypoints": [{"x": 0, "y": 0}, {"x": 100, "y": 0}], "explanation": "straight run"}`

// stubOracle replaces the LLM oracle with canned responses, repeating the
// last one, and counts the calls.
func stubOracle(t *testing.T, responses ...string) *atomic.Int32 {
	t.Helper()
	calls := &atomic.Int32{}
	orig := newOracle
	t.Cleanup(func() { newOracle = orig })

	newOracle = func(*config.Config, zerolog.Logger) (planner.Oracle, error) {
		return planner.OracleFunc(func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
			n := int(calls.Add(1))
			if n > len(responses) {
				n = len(responses)
			}
			return responses[n-1], nil
		}), nil
	}
	return calls
}

func writeScene(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scene.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestPlanCommand(t *testing.T) {
	t.Run("plans from flags and archives the result", func(t *testing.T) {
		configPath := testConfig(t)
		calls := stubOracle(t, straightRoute)

		output, err := executeCommand(t, "plan", "--config", configPath,
			"--start", "0,0", "--end", "100,0", "--obstacle", "50,40,5")
		require.NoError(t, err)
		assert.Equal(t, int32(1), calls.Load())

		var res planner.Result
		require.NoError(t, json.Unmarshal([]byte(output), &res))
		assert.Equal(t, planner.StatusSafe, res.Status)
		assert.Equal(t, 1, res.Attempts)
		assert.Equal(t, planner.DefaultSafeDistance, res.SafeDistance)
		require.Len(t, res.Waypoints, 2)
		assert.NotEmpty(t, res.ID)

		output, err = executeCommand(t, "history", "list", "--json", "--config", configPath)
		require.NoError(t, err)
		var plans []history.Summary
		require.NoError(t, json.Unmarshal([]byte(output), &plans))
		require.Len(t, plans, 1)
		assert.Equal(t, res.ID, plans[0].ID)
		assert.Equal(t, planner.StatusSafe, plans[0].Status)
	})

	t.Run("no history flag skips the archive", func(t *testing.T) {
		configPath := testConfig(t)
		stubOracle(t, straightRoute)

		_, err := executeCommand(t, "plan", "--config", configPath, "--no-history",
			"--start", "0,0", "--end", "100,0")
		require.NoError(t, err)

		output, err := executeCommand(t, "history", "list", "--config", configPath)
		require.NoError(t, err)
		assert.Contains(t, output, "No plans archived")
	})

	t.Run("scene file with explicit zero retries fails without calling the oracle", func(t *testing.T) {
		configPath := testConfig(t)
		calls := stubOracle(t, straightRoute)
		scenePath := writeScene(t, "start: [0, 0]\nend: [100, 0]\nobstacles:\n  - [50, 40, 5]\nmax_retries: 0\n")

		output, err := executeCommand(t, "plan", "--config", configPath, scenePath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "planning failed")
		assert.Equal(t, int32(0), calls.Load())

		var res planner.Result
		require.NoError(t, json.Unmarshal([]byte(output), &res))
		assert.Equal(t, planner.StatusFailed, res.Status)
		assert.Equal(t, 0, res.Attempts)
	})

	t.Run("flags override the scene file", func(t *testing.T) {
		configPath := testConfig(t)
		stubOracle(t, straightRoute)
		scenePath := writeScene(t, "start: [0, 0]\nend: [100, 0]\nsafe_distance: 3\n")

		output, err := executeCommand(t, "plan", "--config", configPath, "--safe-distance", "7", scenePath)
		require.NoError(t, err)

		var res planner.Result
		require.NoError(t, json.Unmarshal([]byte(output), &res))
		assert.Equal(t, 7.0, res.SafeDistance)
	})

	t.Run("unsafe candidates end risky", func(t *testing.T) {
		configPath := testConfig(t)
		stubOracle(t, straightRoute)

		output, err := executeCommand(t, "plan", "--config", configPath,
			"--start", "0,0", "--end", "100,0", "--obstacle", "50,0,5", "--max-retries", "2")
		require.NoError(t, err)

		var res planner.Result
		require.NoError(t, json.Unmarshal([]byte(output), &res))
		assert.Equal(t, planner.StatusRisky, res.Status)
		assert.Equal(t, 2, res.Attempts)
	})

	t.Run("missing endpoints", func(t *testing.T) {
		configPath := testConfig(t)
		stubOracle(t, straightRoute)

		_, err := executeCommand(t, "plan", "--config", configPath, "--start", "0,0")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--start and --end")
	})

	t.Run("no credentials", func(t *testing.T) {
		configPath := testConfig(t)

		_, err := executeCommand(t, "plan", "--config", configPath, "--start", "0,0", "--end", "1,1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no LLM credentials")
	})
}

func TestAnalyzeCommand(t *testing.T) {
	configPath := testConfig(t)

	t.Run("json", func(t *testing.T) {
		output, err := executeCommand(t, "analyze", "--config", configPath, "--json",
			"--start", "0,0", "--end", "100,0",
			"--obstacle", "40,0,5", "--obstacle", "60,0,5", "--safe-distance", "10")
		require.NoError(t, err)

		var body struct {
			SafeDistance float64 `json:"safe_distance"`
			Pairs        []struct {
				I     int     `json:"i"`
				J     int     `json:"j"`
				Gap   float64 `json:"gap"`
				Class string  `json:"class"`
			} `json:"pairs"`
		}
		require.NoError(t, json.Unmarshal([]byte(output), &body))
		assert.Equal(t, 10.0, body.SafeDistance)
		require.Len(t, body.Pairs, 1)
		assert.InDelta(t, -10.0, body.Pairs[0].Gap, 1e-9)
		assert.Equal(t, "impassable", body.Pairs[0].Class)
	})

	t.Run("text", func(t *testing.T) {
		output, err := executeCommand(t, "analyze", "--config", configPath,
			"--start", "0,0", "--end", "100,0", "--obstacle", "50,40,5")
		require.NoError(t, err)
		assert.Contains(t, output, "Obstacles: 1")
		assert.Contains(t, output, "fewer than two obstacles")
	})
}

func TestValidateCommand(t *testing.T) {
	configPath := testConfig(t)

	t.Run("safe route", func(t *testing.T) {
		output, err := executeCommand(t, "validate", "--config", configPath,
			"--waypoints", "0,0;100,0", "--obstacle", "50,40,5", "--safe-distance", "10")
		require.NoError(t, err)

		var resp gateway.ValidateResponse
		require.NoError(t, json.Unmarshal([]byte(output), &resp))
		assert.True(t, resp.Verdict.Valid)
		assert.Empty(t, resp.Verdict.Message)
		assert.Len(t, resp.Report.Waypoints, 2)
	})

	t.Run("unsafe route", func(t *testing.T) {
		output, err := executeCommand(t, "validate", "--config", configPath,
			"--waypoints", "0,0;100,0", "--obstacle", "50,5,3", "--safe-distance", "10")
		require.Error(t, err)
		assert.ErrorIs(t, err, errUnsafeRoute)
		assert.Contains(t, output, `"is_valid": false`)
	})

	t.Run("route file", func(t *testing.T) {
		routePath := filepath.Join(t.TempDir(), "route.json")
		require.NoError(t, os.WriteFile(routePath, []byte(straightRoute), 0644))

		output, err := executeCommand(t, "validate", "--config", configPath, "--route", routePath)
		require.NoError(t, err)
		assert.Contains(t, output, `"is_valid": true`)
	})

	t.Run("route required", func(t *testing.T) {
		_, err := executeCommand(t, "validate", "--config", configPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "route is required")
	})

	t.Run("exclusive route flags", func(t *testing.T) {
		_, err := executeCommand(t, "validate", "--config", configPath, "--waypoints", "0,0", "--route", "x.json")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mutually exclusive")
	})

	t.Run("non-finite input is rejected", func(t *testing.T) {
		output, err := executeCommand(t, "validate", "--config", configPath,
			"--waypoints", "0,0;100,0", "--obstacle", "50,0,10", "--safe-distance", "NaN")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "safe_distance must be finite")
		assert.NotContains(t, output, `"is_valid": true`)

		_, err = executeCommand(t, "validate", "--config", configPath,
			"--waypoints", "0,0;100,0", "--obstacle", "50,0,NaN")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid --obstacle")
	})
}

func TestSimulateCommand(t *testing.T) {
	t.Run("inline route", func(t *testing.T) {
		configPath := testConfig(t)

		output, err := executeCommand(t, "simulate", "--config", configPath,
			"--waypoints", "0,0;10,0", "--obstacle", "5,20,2", "--safe-distance", "5")
		require.NoError(t, err)

		var summary simulator.Summary
		require.NoError(t, json.Unmarshal([]byte(output), &summary))
		assert.True(t, summary.Completed)
		assert.Greater(t, summary.Frames, 0)
		assert.Zero(t, summary.DangerFrames)
		require.NotEmpty(t, summary.Track)
		assert.InDelta(t, 10.0, summary.Track[len(summary.Track)-1].X, 0.5)
	})

	t.Run("frames as json lines", func(t *testing.T) {
		configPath := testConfig(t)

		output, err := executeCommand(t, "simulate", "--config", configPath, "--frames",
			"--start", "0,0", "--waypoints", "3,0", "--obstacle", "10,0,1")
		require.NoError(t, err)

		scanner := bufio.NewScanner(strings.NewReader(output))
		var frames []simulator.Frame
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, `{"index"`) {
				continue
			}
			var f simulator.Frame
			require.NoError(t, json.Unmarshal([]byte(line), &f))
			frames = append(frames, f)
		}
		require.NotEmpty(t, frames)
		assert.Equal(t, 0, frames[0].Index)
		assert.True(t, frames[len(frames)-1].ReachedTarget)
	})

	t.Run("archived plan", func(t *testing.T) {
		configPath := testConfig(t)
		stubOracle(t, straightRoute)

		output, err := executeCommand(t, "plan", "--config", configPath,
			"--start", "0,0", "--end", "100,0", "--obstacle", "50,40,5")
		require.NoError(t, err)
		var res planner.Result
		require.NoError(t, json.Unmarshal([]byte(output), &res))

		output, err = executeCommand(t, "simulate", "--config", configPath, "--plan-id", res.ID)
		require.NoError(t, err)
		var summary simulator.Summary
		require.NoError(t, json.Unmarshal([]byte(output), &summary))
		assert.True(t, summary.Completed)
		assert.Zero(t, summary.DangerFrames)
	})

	t.Run("unknown plan", func(t *testing.T) {
		configPath := testConfig(t)

		_, err := executeCommand(t, "simulate", "--config", configPath, "--plan-id", "missing")
		require.Error(t, err)
		assert.ErrorIs(t, err, history.ErrNotFound)
	})
}

func TestHistoryCommand(t *testing.T) {
	configPath := testConfig(t)
	stubOracle(t, straightRoute)

	output, err := executeCommand(t, "plan", "--config", configPath, "--start", "0,0", "--end", "100,0")
	require.NoError(t, err)
	var res planner.Result
	require.NoError(t, json.Unmarshal([]byte(output), &res))

	t.Run("list table", func(t *testing.T) {
		output, err := executeCommand(t, "history", "list", "--config", configPath)
		require.NoError(t, err)
		assert.Contains(t, output, "STATUS")
		assert.Contains(t, output, res.ID)
		assert.Contains(t, output, "SAFE")
	})

	t.Run("show", func(t *testing.T) {
		output, err := executeCommand(t, "history", "show", res.ID, "--config", configPath)
		require.NoError(t, err)

		var entry history.Entry
		require.NoError(t, json.Unmarshal([]byte(output), &entry))
		assert.Equal(t, res.ID, entry.Result.ID)
		assert.Equal(t, 100.0, entry.Request.End.X)
	})

	t.Run("show unknown", func(t *testing.T) {
		_, err := executeCommand(t, "history", "show", "nope", "--config", configPath)
		require.Error(t, err)
		assert.ErrorIs(t, err, history.ErrNotFound)
	})
}

func TestConfigCommand(t *testing.T) {
	t.Run("init writes defaults once", func(t *testing.T) {
		testConfig(t)
		path := filepath.Join(t.TempDir(), "sub", "vesselplan.yaml")

		output, err := executeCommand(t, "config", "init", "--config", path)
		require.NoError(t, err)
		assert.Contains(t, output, path)
		assert.FileExists(t, path)

		_, err = executeCommand(t, "config", "init", "--config", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already exists")

		_, err = executeCommand(t, "config", "init", "--config", path, "--force")
		require.NoError(t, err)
	})

	t.Run("show masks keys", func(t *testing.T) {
		configPath := testConfig(t)
		t.Setenv("VESSELPLAN_LLM_API_KEY", "sk-abcdefghijklmnop")

		output, err := executeCommand(t, "config", "show", "--config", configPath)
		require.NoError(t, err)
		assert.Contains(t, output, "sk-a****mnop")
		assert.NotContains(t, output, "sk-abcdefghijklmnop")
	})

	t.Run("validate warns without credentials", func(t *testing.T) {
		configPath := testConfig(t)

		output, err := executeCommand(t, "config", "validate", "--config", configPath)
		require.NoError(t, err)
		assert.Contains(t, output, "Configuration is valid")
		assert.Contains(t, output, "Warning")
	})

	t.Run("validate rejects bad values", func(t *testing.T) {
		testConfig(t)
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("planner:\n  safe_distance: -1\n"), 0600))

		_, err := executeCommand(t, "config", "validate", "--config", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})
}

func TestPlanRunsHooks(t *testing.T) {
	configPath := testConfig(t)
	stubOracle(t, straightRoute)

	outputPath := filepath.Join(t.TempDir(), "hook.txt")
	cfg := "logging:\n  level: error\n  pretty: false\n" +
		"hooks:\n  enabled: true\n  hooks:\n" +
		"    - id: record\n      event: plan.completed\n      enabled: true\n" +
		"      script: echo \"$VESSELPLAN_HOOK_DATA_STATUS $VESSELPLAN_HOOK_DATA_ATTEMPTS\" > " + outputPath + "\n"
	require.NoError(t, os.WriteFile(configPath, []byte(cfg), 0600))

	_, err := executeCommand(t, "plan", "--config", configPath, "--no-history", "--start", "0,0", "--end", "100,0")
	require.NoError(t, err)

	content, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Equal(t, "SAFE 1\n", string(content))
}
