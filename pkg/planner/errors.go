package planner

import "errors"

// ErrorKind classifies why a planning attempt did not produce a safe route.
// Every kind is retryable within the budget.
type ErrorKind string

const (
	// KindOracleInvocation is a provider, network or timeout failure
	KindOracleInvocation ErrorKind = "oracle_invocation"
	// KindParse is a response with no recoverable candidate JSON
	KindParse ErrorKind = "parse"
	// KindEmptyCandidate is parsed JSON without usable waypoints
	KindEmptyCandidate ErrorKind = "empty_candidate"
	// KindSafetyViolation is a candidate that failed validation; it is kept as a fallback
	KindSafetyViolation ErrorKind = "safety_violation"
)

var (
	// ErrEmptyCandidate is recorded when the response has no waypoints
	ErrEmptyCandidate = errors.New("empty result")
	// ErrUnparseable is recorded when no candidate object can be recovered
	ErrUnparseable = errors.New("unparseable oracle response")
	// ErrEndpointMismatch is recorded when endpoint enforcement rejects a route
	ErrEndpointMismatch = errors.New("route endpoints do not match start and end")
)

// AttemptError is the failure of a single planning attempt
type AttemptError struct {
	Kind    ErrorKind
	Attempt int
	Err     error
}

// Error returns the underlying message so it can be fed back to the oracle verbatim
func (e *AttemptError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

// Unwrap implements the errors.Unwrap interface.
func (e *AttemptError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AttemptError of the same kind.
func (e *AttemptError) Is(target error) bool {
	var attemptErr *AttemptError
	if errors.As(target, &attemptErr) {
		return e.Kind == attemptErr.Kind
	}
	return false
}

func newAttemptError(kind ErrorKind, attempt int, err error) *AttemptError {
	return &AttemptError{Kind: kind, Attempt: attempt, Err: err}
}
