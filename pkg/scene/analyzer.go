package scene

import (
	"fmt"
	"strings"

	"github.com/harun/vesselplan/pkg/geometry"
)

// ChannelClass grades the water between two safety-inflated obstacles
type ChannelClass string

const (
	ChannelImpassable ChannelClass = "impassable"
	ChannelNarrow     ChannelClass = "narrow"
	ChannelCautious   ChannelClass = "cautious"
	ChannelClear      ChannelClass = "clear"
)

// Default gap thresholds in metres. These are tuning values, not physical limits.
const (
	DefaultNarrowGap  = 20.0
	DefaultCautionGap = 40.0
)

// PairAnalysis is the channel between obstacles I and J (0-indexed, I < J)
type PairAnalysis struct {
	I     int          `json:"i"`
	J     int          `json:"j"`
	Gap   float64      `json:"gap"`
	Class ChannelClass `json:"class"`
}

// Analyzer produces advisory notes about obstacle spacing for the planning
// prompt. It never accepts or rejects a route.
type Analyzer struct {
	NarrowGap  float64
	CautionGap float64
}

// DefaultAnalyzer returns an analyzer with the default thresholds
func DefaultAnalyzer() Analyzer {
	return Analyzer{
		NarrowGap:  DefaultNarrowGap,
		CautionGap: DefaultCautionGap,
	}
}

// Analyze computes the gap between every unordered pair of obstacles once
// each is inflated by the safety margin.
func (a Analyzer) Analyze(obstacles []geometry.Obstacle, safeDistance float64) []PairAnalysis {
	var pairs []PairAnalysis
	for i := 0; i < len(obstacles); i++ {
		for j := i + 1; j < len(obstacles); j++ {
			oi, oj := obstacles[i], obstacles[j]
			gap := geometry.Distance(oi.Center(), oj.Center()) - oi.Radius - oj.Radius - 2*safeDistance
			pairs = append(pairs, PairAnalysis{
				I:     i,
				J:     j,
				Gap:   gap,
				Class: a.Classify(gap),
			})
		}
	}
	return pairs
}

// Classify grades a single gap
func (a Analyzer) Classify(gap float64) ChannelClass {
	switch {
	case gap < 0:
		return ChannelImpassable
	case gap < a.NarrowGap:
		return ChannelNarrow
	case gap < a.CautionGap:
		return ChannelCautious
	default:
		return ChannelClear
	}
}

// Notes renders the pair analysis as prompt text, one line per pair
func (a Analyzer) Notes(obstacles []geometry.Obstacle, safeDistance float64) string {
	if len(obstacles) < 2 {
		return "No pairwise constraint: fewer than two obstacles, detour around each one directly."
	}

	pairs := a.Analyze(obstacles, safeDistance)
	lines := make([]string, 0, len(pairs))
	for _, p := range pairs {
		lines = append(lines, fmt.Sprintf("- Obstacles %d and %d: safety-boundary gap %.1fm, %s",
			p.I+1, p.J+1, p.Gap, advice(p.Class)))
	}
	return strings.Join(lines, "\n")
}

func advice(c ChannelClass) string {
	switch c {
	case ChannelImpassable:
		return "IMPASSABLE, route around the pair as a unit"
	case ChannelNarrow:
		return "narrow channel, route around rather than through"
	case ChannelCautious:
		return "passable with caution"
	default:
		return "clear channel, safe to pass"
	}
}
