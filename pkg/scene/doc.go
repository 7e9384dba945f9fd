// Package scene reads planning scenes and annotates obstacle layouts.
//
// Invariants:
// - Obstacles are normalized to [x, y, radius] at parse time and never mutated afterwards.
// - Analyzer output is advisory prompt context; it never gates a route.
//
// Usage:
//
//	s, _ := scene.LoadFile("harbour.yaml")
//	notes := scene.DefaultAnalyzer().Notes(s.Obstacles, s.SafeDistance)
//	_ = notes
package scene
