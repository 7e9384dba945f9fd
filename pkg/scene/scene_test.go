package scene

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harun/vesselplan/pkg/geometry"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const harbourScene = `
start: [-50, -50]
end: [50, 50]
obstacles:
  - [0, 0, 15]
  - [20, 20, 10]
safe_distance: 10
instruction: reach the pier
max_retries: 3
`

func TestParse(t *testing.T) {
	t.Run("parses a complete scene", func(t *testing.T) {
		s, err := Parse([]byte(harbourScene))
		require.NoError(t, err)

		assert.Equal(t, geometry.Point{X: -50, Y: -50}, s.Start)
		assert.Equal(t, geometry.Point{X: 50, Y: 50}, s.End)
		assert.Equal(t, []geometry.Obstacle{{X: 0, Y: 0, Radius: 15}, {X: 20, Y: 20, Radius: 10}}, s.Obstacles)
		assert.Equal(t, 10.0, s.SafeDistance)
		assert.Equal(t, "reach the pier", s.Instruction)
		assert.Equal(t, 3, s.MaxRetries)
	})

	t.Run("rejects obstacles without radius", func(t *testing.T) {
		_, err := Parse([]byte("start: [0, 0]\nend: [1, 1]\nobstacles:\n  - [5, 5]\n"))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "[x, y, radius]")
	})

	t.Run("rejects a malformed start", func(t *testing.T) {
		_, err := Parse([]byte("start: [0]\nend: [1, 1]\n"))
		assert.Error(t, err)
	})

	t.Run("defaults fill only absent values", func(t *testing.T) {
		s, err := Parse([]byte("start: [0, 0]\nend: [1, 1]\nsafe_distance: 0\n"))
		require.NoError(t, err)

		s.ApplyDefaults(10, 5)
		assert.Equal(t, 0.0, s.SafeDistance)
		assert.Equal(t, 5, s.MaxRetries)
	})

	t.Run("rejects negative safe distance", func(t *testing.T) {
		_, err := Parse([]byte("start: [0, 0]\nend: [1, 1]\nsafe_distance: -1\n"))
		assert.Error(t, err)
	})

	t.Run("rejects non-finite numbers", func(t *testing.T) {
		docs := map[string]string{
			"safe distance":   "start: [0, 0]\nend: [1, 1]\nsafe_distance: .nan\n",
			"infinite margin": "start: [0, 0]\nend: [1, 1]\nsafe_distance: .inf\n",
			"radius":          "start: [0, 0]\nend: [1, 1]\nobstacles:\n  - [5, 5, .nan]\n",
			"obstacle center": "start: [0, 0]\nend: [1, 1]\nobstacles:\n  - [.inf, 5, 3]\n",
			"start":           "start: [.nan, 0]\nend: [1, 1]\n",
		}
		for name, doc := range docs {
			_, err := Parse([]byte(doc))
			assert.Error(t, err, name)
		}
	})
}

func TestSceneValidateRejectsNaN(t *testing.T) {
	s := &Scene{End: geometry.Point{X: 1, Y: 1}, SafeDistance: math.NaN()}
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "safe_distance must be finite")

	s.SafeDistance = 5
	s.Obstacles = []geometry.Obstacle{{X: 0, Y: 0, Radius: math.NaN()}}
	err = s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "obstacle 1")
}

func TestCheckWaypoints(t *testing.T) {
	assert.NoError(t, CheckWaypoints([]geometry.Point{{X: 1, Y: 2}}))
	assert.Error(t, CheckWaypoints([]geometry.Point{{X: 1, Y: 2}, {X: math.Inf(-1), Y: 0}}))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.yaml")
	require.NoError(t, os.WriteFile(path, []byte(harbourScene), 0644))

	s, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, s.Obstacles, 2)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseObstacleLines(t *testing.T) {
	obstacles, warnings := ParseObstacleLines("0, 0, 15\n20, 20\n\nbad line\n40, x, 3\n-10.5, 7, 2.5")

	assert.Equal(t, []geometry.Obstacle{
		{X: 0, Y: 0, Radius: 15},
		{X: 20, Y: 20, Radius: DefaultPointRadius},
		{X: -10.5, Y: 7, Radius: 2.5},
	}, obstacles)
	assert.Len(t, warnings, 2)
}

func TestParsePoint(t *testing.T) {
	p, err := ParsePoint(" -50, 12.5 ")
	require.NoError(t, err)
	assert.Equal(t, geometry.Point{X: -50, Y: 12.5}, p)

	_, err = ParsePoint("1,2,3")
	assert.Error(t, err)
	_, err = ParsePoint("a,2")
	assert.Error(t, err)
	_, err = ParsePoint("NaN,2")
	assert.Error(t, err)
	_, err = ParsePoint("1,Inf")
	assert.Error(t, err)
}

func TestParseObstacleRejectsNonFinite(t *testing.T) {
	for _, entry := range []string{"0,0,NaN", "NaN,0,5", "0,+Inf", "0,0,-inf"} {
		_, err := ParseObstacle(entry)
		assert.Error(t, err, entry)
	}

	o, err := ParseObstacle("1, 2, 3")
	require.NoError(t, err)
	assert.Equal(t, geometry.Obstacle{X: 1, Y: 2, Radius: 3}, o)
}

func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.yaml")
	require.NoError(t, os.WriteFile(path, []byte(harbourScene), 0644))

	changes := make(chan *Scene, 4)
	w, err := NewWatcher(WatcherConfig{
		Path:               path,
		StabilityThreshold: 20 * time.Millisecond,
		OnChange:           func(s *Scene) { changes <- s },
		Logger:             zerolog.Nop(),
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	updated := "start: [0, 0]\nend: [100, 0]\nobstacles:\n  - [50, 0, 5]\nsafe_distance: 4\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0644))

	select {
	case s := <-changes:
		assert.Equal(t, geometry.Point{X: 100, Y: 0}, s.End)
		assert.Equal(t, 4.0, s.SafeDistance)
	case <-time.After(3 * time.Second):
		t.Fatal("expected a scene change notification")
	}
}

func TestNewWatcherRequiresCallback(t *testing.T) {
	_, err := NewWatcher(WatcherConfig{Path: "scene.yaml"})
	assert.Error(t, err)

	_, err = NewWatcher(WatcherConfig{OnChange: func(*Scene) {}})
	assert.Error(t, err)
}
