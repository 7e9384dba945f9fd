package scene

import (
	"strings"
	"testing"

	"github.com/harun/vesselplan/pkg/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzerClassify(t *testing.T) {
	a := DefaultAnalyzer()

	tests := []struct {
		gap      float64
		expected ChannelClass
	}{
		{-0.1, ChannelImpassable},
		{0, ChannelNarrow},
		{19.9, ChannelNarrow},
		{20, ChannelCautious},
		{39.9, ChannelCautious},
		{40, ChannelClear},
		{500, ChannelClear},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, a.Classify(tt.gap), "gap %v", tt.gap)
	}
}

func TestAnalyze(t *testing.T) {
	obstacles := []geometry.Obstacle{
		{X: 0, Y: 0, Radius: 15},
		{X: 20, Y: 20, Radius: 10},
		{X: 100, Y: 0, Radius: 5},
	}

	pairs := DefaultAnalyzer().Analyze(obstacles, 10)
	require.Len(t, pairs, 3)

	assert.Equal(t, 0, pairs[0].I)
	assert.Equal(t, 1, pairs[0].J)
	assert.InDelta(t, 28.284271-15-10-20, pairs[0].Gap, 1e-5)
	assert.Equal(t, ChannelImpassable, pairs[0].Class)

	assert.Equal(t, 0, pairs[1].I)
	assert.Equal(t, 2, pairs[1].J)
	assert.InDelta(t, 100-15-5-20, pairs[1].Gap, 1e-9)
	assert.Equal(t, ChannelClear, pairs[1].Class)
}

func TestAnalyzerCustomThresholds(t *testing.T) {
	a := Analyzer{NarrowGap: 5, CautionGap: 10}
	assert.Equal(t, ChannelCautious, a.Classify(7))
	assert.Equal(t, ChannelClear, a.Classify(15))
}

func TestNotes(t *testing.T) {
	a := DefaultAnalyzer()

	t.Run("fewer than two obstacles has no pairwise constraint", func(t *testing.T) {
		assert.Contains(t, a.Notes(nil, 10), "No pairwise constraint")
		assert.Contains(t, a.Notes([]geometry.Obstacle{{X: 1, Y: 1, Radius: 1}}, 10), "No pairwise constraint")
	})

	t.Run("one line per pair", func(t *testing.T) {
		notes := a.Notes([]geometry.Obstacle{
			{X: 0, Y: 0, Radius: 15},
			{X: 20, Y: 20, Radius: 10},
			{X: 0, Y: 60, Radius: 5},
		}, 10)

		lines := strings.Split(notes, "\n")
		require.Len(t, lines, 3)
		assert.Contains(t, lines[0], "Obstacles 1 and 2")
		assert.Contains(t, lines[0], "IMPASSABLE")
	})
}
