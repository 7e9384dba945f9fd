// Package agent adapts LLM providers into the planning oracle.
//
// Invariants:
// - Auth profiles are tried in ascending priority; failing profiles cool down.
// - A non-retryable provider error stops failover and is returned as is.
// - Providers see one system prompt and one user message per call; no tools.
//
// Usage:
//
//	oracle, _ := agent.NewOracle(agent.OracleConfig{
//		AuthProfiles: []agent.AuthProfile{{ID: "main", Provider: "anthropic", APIKey: key}},
//	})
//	text, _ := oracle.Complete(ctx, planner.SystemPrompt, prompt)
//	_ = text
package agent
