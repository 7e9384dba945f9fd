package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harun/vesselplan/internal/observability"
	"github.com/harun/vesselplan/internal/tracing"
	"github.com/harun/vesselplan/pkg/geometry"
	"github.com/harun/vesselplan/pkg/scene"
	"github.com/harun/vesselplan/pkg/validator"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultEndpointTolerance is used when endpoint enforcement is on and no tolerance is set
const DefaultEndpointTolerance = 0.5

// Config holds the planner dependencies
type Config struct {
	Oracle Oracle
	Logger zerolog.Logger
	// Analyzer annotates the prompt; the zero value means DefaultAnalyzer
	Analyzer scene.Analyzer
	// AttemptTimeout bounds each oracle call; zero means no limit
	AttemptTimeout time.Duration
	// EnforceEndpoints rejects routes that do not start at Start and end at End
	EnforceEndpoints  bool
	EndpointTolerance float64
}

// Planner runs the plan-validate-retry loop. It holds only read-only
// configuration, so one Planner may serve concurrent Plan calls.
type Planner struct {
	oracle            Oracle
	logger            zerolog.Logger
	analyzer          scene.Analyzer
	attemptTimeout    time.Duration
	enforceEndpoints  bool
	endpointTolerance float64
}

// retryState lives for a single Plan call
type retryState struct {
	attempts int
	lastErr  error
	best     *Candidate
}

// offer keeps c if it has strictly more waypoints than the current best
func (s *retryState) offer(c Candidate) {
	if s.best == nil || len(c.Waypoints) > len(s.best.Waypoints) {
		s.best = &c
	}
}

// New creates a planner
func New(cfg Config) (*Planner, error) {
	if cfg.Oracle == nil {
		return nil, fmt.Errorf("oracle is required")
	}
	if cfg.AttemptTimeout < 0 {
		return nil, fmt.Errorf("attempt timeout cannot be negative")
	}

	analyzer := cfg.Analyzer
	if analyzer.NarrowGap == 0 && analyzer.CautionGap == 0 {
		analyzer = scene.DefaultAnalyzer()
	}

	tolerance := cfg.EndpointTolerance
	if tolerance <= 0 {
		tolerance = DefaultEndpointTolerance
	}

	return &Planner{
		oracle:            cfg.Oracle,
		logger:            cfg.Logger.With().Str("component", "planner").Logger(),
		analyzer:          analyzer,
		attemptTimeout:    cfg.AttemptTimeout,
		enforceEndpoints:  cfg.EnforceEndpoints,
		endpointTolerance: tolerance,
	}, nil
}

// Plan asks the oracle for routes until one validates or the retry budget is
// spent. It never returns an error: oracle, parse and safety failures all end
// up in the Result's status, error and explanation.
func (p *Planner) Plan(ctx context.Context, req Request) Result {
	req = req.normalized()
	started := time.Now()
	planID := uuid.New().String()

	ctx = tracing.WithPlanID(ctx, planID)
	ctx, span := tracing.StartSpan(ctx, tracing.TracerPlanner, "planner.plan",
		attribute.String("plan.id", planID),
		attribute.Int("plan.obstacles", len(req.Obstacles)),
		attribute.Float64("plan.safe_distance", req.SafeDistance),
		attribute.Int("plan.max_retries", req.MaxRetries),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, p.logger)
	logger.Info().
		Int("obstacles", len(req.Obstacles)).
		Float64("safe_distance", req.SafeDistance).
		Int("max_retries", req.MaxRetries).
		Msg("Planning started")

	notes := p.analyzer.Notes(req.Obstacles, req.SafeDistance)
	state := &retryState{}

	var result *Result
	for attempt := 1; attempt <= req.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			state.lastErr = err
			logger.Warn().Err(err).Int("attempt", attempt).Msg("Planning cancelled")
			break
		}

		state.attempts = attempt
		candidate, attemptErr := p.runAttempt(ctx, req, notes, attempt, feedback(state.lastErr))
		if attemptErr == nil {
			observability.RecordPlanAttempt("accepted")
			result = p.accepted(req, candidate, attempt)
			break
		}

		observability.RecordPlanAttempt(string(attemptErr.Kind))
		logger.Warn().
			Int("attempt", attempt).
			Str("kind", string(attemptErr.Kind)).
			Err(attemptErr).
			Msg("Planning attempt rejected")

		state.lastErr = attemptErr
		if attemptErr.Kind == KindSafetyViolation {
			candidate.Explanation = appendNote(candidate.Explanation, "[Issue] "+attemptErr.Error())
			state.offer(candidate)
		}
	}

	if result == nil {
		result = p.exhausted(state)
	}
	result.ID = planID
	result.SafeDistance = req.SafeDistance
	result.Attempts = state.attempts
	result.CreatedAt = time.Now()

	span.SetAttributes(
		attribute.String("plan.status", string(result.Status)),
		attribute.Int("plan.attempts", result.Attempts),
	)
	if result.Status == StatusFailed {
		span.SetStatus(codes.Error, result.Error)
	}

	observability.RecordPlan(string(result.Status), result.Attempts, time.Since(started))
	observability.RecordPlanAudit(ctx, planID, string(result.Status), map[string]interface{}{
		"attempts":      result.Attempts,
		"waypoints":     len(result.Waypoints),
		"safe_distance": result.SafeDistance,
		"error":         result.Error,
	})

	logger.Info().
		Str("status", string(result.Status)).
		Int("attempts", result.Attempts).
		Int("waypoints", len(result.Waypoints)).
		Dur("duration", time.Since(started)).
		Msg("Planning finished")

	return *result
}

// runAttempt performs one oracle call, parse and validation. On a safety
// violation the candidate is returned alongside the error.
func (p *Planner) runAttempt(ctx context.Context, req Request, notes string, attempt int, lastError string) (Candidate, *AttemptError) {
	ctx, span := tracing.StartSpan(ctx, tracing.TracerPlanner, "planner.attempt",
		attribute.Int("plan.attempt", attempt),
	)
	defer span.End()

	prompt := BuildUserPrompt(req, notes, attempt, lastError)

	text, err := p.callOracle(ctx, prompt)
	if err != nil {
		return Candidate{}, p.fail(span, newAttemptError(KindOracleInvocation, attempt, err))
	}

	outcome := ParseCandidate(text)
	span.SetAttributes(
		attribute.String("plan.outcome", outcome.Kind.String()),
		attribute.String("plan.extract_stage", string(outcome.Stage)),
	)
	switch outcome.Kind {
	case OutcomeUnparseable:
		return Candidate{}, p.fail(span, newAttemptError(KindParse, attempt, outcome.Err()))
	case OutcomeEmpty:
		return Candidate{}, p.fail(span, newAttemptError(KindEmptyCandidate, attempt, outcome.Err()))
	}

	candidate := outcome.Candidate
	span.SetAttributes(attribute.Int("plan.waypoints", len(candidate.Waypoints)))

	verdict := validator.Validate(candidate.Waypoints, req.Obstacles, req.SafeDistance)
	if !verdict.Valid {
		return candidate, p.fail(span, newAttemptError(KindSafetyViolation, attempt, errors.New(verdict.Message)))
	}

	if err := checkEndpoints(candidate.Waypoints, req.Start, req.End, p.endpointTolerance); err != nil {
		if p.enforceEndpoints {
			return candidate, p.fail(span, newAttemptError(KindSafetyViolation, attempt, err))
		}
		lg := tracing.LoggerFromContext(ctx, p.logger)
		lg.Warn().Err(err).Int("attempt", attempt).Msg("Route endpoints differ from the request")
	}

	return candidate, nil
}

func (p *Planner) callOracle(ctx context.Context, prompt string) (string, error) {
	callCtx := ctx
	if p.attemptTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.attemptTimeout)
		defer cancel()
	}

	text, err := p.oracle.Complete(callCtx, SystemPrompt, prompt)
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("oracle timed out after %s: %w", p.attemptTimeout, err)
		}
		return "", err
	}
	return text, nil
}

func (p *Planner) fail(span trace.Span, err *AttemptError) *AttemptError {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(err.Kind))
	return err
}

func (p *Planner) accepted(req Request, c Candidate, attempt int) *Result {
	note := fmt.Sprintf("[Validated] Every waypoint and leg keeps at least %gm from every obstacle edge (attempt %d of %d).",
		req.SafeDistance, attempt, req.MaxRetries)
	return &Result{
		Waypoints:   c.Waypoints,
		Explanation: appendNote(c.Explanation, note),
		Status:      StatusSafe,
	}
}

func (p *Planner) exhausted(state *retryState) *Result {
	if state.best != nil {
		warning := fmt.Sprintf("[Warning] No fully safe route was found in %d attempts. "+
			"This is the most detailed candidate; verify it manually or re-plan before use.", state.attempts)
		return &Result{
			Waypoints:   state.best.Waypoints,
			Explanation: appendNote(state.best.Explanation, warning),
			Status:      StatusRisky,
		}
	}

	msg := "no planning attempts were made"
	if state.lastErr != nil {
		msg = state.lastErr.Error()
	}
	return &Result{
		Waypoints:   []geometry.Point{},
		Explanation: fmt.Sprintf("Planning failed after %d attempts: %s", state.attempts, msg),
		Status:      StatusFailed,
		Error:       msg,
	}
}

// checkEndpoints reports whether the route starts at start and ends at end
func checkEndpoints(waypoints []geometry.Point, start, end geometry.Point, tolerance float64) error {
	if len(waypoints) == 0 {
		return ErrEndpointMismatch
	}
	first, last := waypoints[0], waypoints[len(waypoints)-1]
	if d := geometry.Distance(first, start); d > tolerance {
		return fmt.Errorf("%w: first waypoint %s is %.1fm from start %s", ErrEndpointMismatch, first, d, start)
	}
	if d := geometry.Distance(last, end); d > tolerance {
		return fmt.Errorf("%w: last waypoint %s is %.1fm from end %s", ErrEndpointMismatch, last, d, end)
	}
	return nil
}

func feedback(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func appendNote(explanation, note string) string {
	if explanation == "" {
		return note
	}
	return explanation + "\n\n" + note
}
