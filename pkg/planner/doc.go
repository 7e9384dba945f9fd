// Package planner asks an oracle for waypoint routes and keeps asking until
// one passes the safety validator or the retry budget runs out.
//
// Invariants:
//   - Attempts run strictly in order; each prompt may depend on the previous failure.
//   - Retry state belongs to one Plan call and is never shared.
//   - Plan always returns a Result. SAFE means the route validated; RISKY means the
//     best rejected candidate is returned with a warning; FAILED means no attempt
//     produced usable waypoints and Error says why.
//
// Usage:
//
//	p, _ := planner.New(planner.Config{Oracle: oracle, Logger: logger})
//	res := p.Plan(ctx, planner.NewRequest(start, end, obstacles, "reach the pier"))
//	_ = res
package planner
