package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/harun/vesselplan/pkg/geometry"
	"github.com/harun/vesselplan/pkg/planner"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{
		DBPath: filepath.Join(t.TempDir(), "history", "plans.db"),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleResult(id string, status planner.Status, created time.Time) planner.Result {
	return planner.Result{
		ID:           id,
		Waypoints:    []geometry.Point{{X: 0, Y: 0}, {X: 5, Y: 5}, {X: 10, Y: 0}},
		Explanation:  "arc",
		Status:       status,
		SafeDistance: 10,
		Attempts:     2,
		CreatedAt:    created,
	}
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestSaveAndGet(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	req := planner.NewRequest(geometry.Point{X: 0, Y: 0}, geometry.Point{X: 10, Y: 0},
		[]geometry.Obstacle{{X: 5, Y: 0, Radius: 2}}, "go east")
	res := sampleResult("plan-1", planner.StatusSafe, time.Now())

	require.NoError(t, s.Save(ctx, req, res))

	entry, err := s.Get(ctx, "plan-1")
	require.NoError(t, err)
	assert.Equal(t, req, entry.Request)
	assert.Equal(t, res.Waypoints, entry.Result.Waypoints)
	assert.Equal(t, planner.StatusSafe, entry.Result.Status)
	assert.True(t, res.CreatedAt.Equal(entry.Result.CreatedAt))

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveRequiresID(t *testing.T) {
	s := createTestStore(t)
	assert.Error(t, s.Save(context.Background(), planner.Request{}, planner.Result{}))
}

func TestSaveReplacesSameID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, planner.Request{}, sampleResult("p", planner.StatusRisky, time.Now())))
	require.NoError(t, s.Save(ctx, planner.Request{}, sampleResult("p", planner.StatusSafe, time.Now())))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entry, err := s.Get(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, planner.StatusSafe, entry.Result.Status)
}

func TestList(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, s.Save(ctx, planner.Request{}, sampleResult("old", planner.StatusFailed, base.Add(-time.Hour))))
	require.NoError(t, s.Save(ctx, planner.Request{}, sampleResult("new", planner.StatusSafe, base)))
	require.NoError(t, s.Save(ctx, planner.Request{}, sampleResult("mid", planner.StatusRisky, base.Add(-time.Minute))))

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "new", all[0].ID)
	assert.Equal(t, "mid", all[1].ID)
	assert.Equal(t, "old", all[2].ID)
	assert.Equal(t, 3, all[0].Waypoints)
	assert.Equal(t, planner.StatusSafe, all[0].Status)

	limited, err := s.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "new", limited[0].ID)
}

func TestListEmpty(t *testing.T) {
	s := createTestStore(t)
	all, err := s.List(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}
