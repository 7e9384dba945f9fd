package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/harun/vesselplan/internal/tracing"
	"github.com/harun/vesselplan/pkg/hooks"
	"github.com/harun/vesselplan/pkg/history"
	"github.com/harun/vesselplan/pkg/validator"
)

const (
	defaultListLimit = 20
	maxListLimit     = 500
)

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	ctx, traceID := requestContext(r)
	r = r.WithContext(ctx)
	w.Header().Set("X-Trace-Id", traceID)
	logger := tracing.LoggerFromContext(ctx, s.logger)

	if s.planner == nil {
		writeError(w, r, http.StatusServiceUnavailable, "planner is not configured")
		return
	}

	var body PlanBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req, err := body.toRequest(s.defaults)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	limiter := s.limiters.Get(remoteHost(r))
	if ok, reason := limiter.TryStart(); !ok {
		writeError(w, r, http.StatusTooManyRequests, reason)
		return
	}
	defer limiter.Finish()

	if !s.enter() {
		writeError(w, r, http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	defer s.leave()

	if s.planTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.planTimeout)
		defer cancel()
	}

	logger.Info().
		Int("obstacles", len(req.Obstacles)).
		Float64("safe_distance", req.SafeDistance).
		Int("max_retries", req.MaxRetries).
		Msg("Gateway received plan request")

	result := s.planner.Plan(ctx, req)

	if s.history != nil {
		// Archive even if the caller went away; the plan was paid for.
		if err := s.history.Save(context.WithoutCancel(ctx), req, result); err != nil {
			logger.Warn().Err(err).Str("plan_id", result.ID).Msg("Failed to archive plan")
		}
	}

	s.broadcaster.Broadcast(EventPlanCompleted, traceID, PlanEvent{
		ID:        result.ID,
		Status:    result.Status,
		Attempts:  result.Attempts,
		Waypoints: len(result.Waypoints),
		Error:     result.Error,
	})
	s.fireHook(ctx, hooks.EventPlanCompleted, map[string]interface{}{
		"plan_id":       result.ID,
		"status":        string(result.Status),
		"attempts":      result.Attempts,
		"waypoints":     len(result.Waypoints),
		"safe_distance": result.SafeDistance,
		"error":         result.Error,
		"trace_id":      traceID,
	})

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	ctx, traceID := requestContext(r)
	r = r.WithContext(ctx)
	w.Header().Set("X-Trace-Id", traceID)

	var body ValidateBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	safe := s.defaults.SafeDistance
	if body.SafeDistance != nil {
		safe = *body.SafeDistance
	}
	if err := checkRoute(body.Waypoints, body.Obstacles, safe); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ValidateResponse{
		Verdict: validator.Validate(body.Waypoints, body.Obstacles, safe),
		Report:  validator.Report(body.Waypoints, body.Obstacles, safe),
	})
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	ctx, _ := requestContext(r)
	r = r.WithContext(ctx)

	if s.history == nil {
		writeError(w, r, http.StatusServiceUnavailable, "history is disabled")
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	plans, err := s.history.List(ctx, limit)
	if err != nil {
		lg := tracing.LoggerFromContext(ctx, s.logger)
		lg.Error().Err(err).Msg("Failed to list plans")
		writeError(w, r, http.StatusInternalServerError, "failed to list plans")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"plans": plans})
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	ctx, _ := requestContext(r)
	r = r.WithContext(ctx)

	if s.history == nil {
		writeError(w, r, http.StatusServiceUnavailable, "history is disabled")
		return
	}

	entry, err := s.history.Get(ctx, r.PathValue("id"))
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		lg := tracing.LoggerFromContext(ctx, s.logger)
		lg.Error().Err(err).Msg("Failed to load plan")
		writeError(w, r, http.StatusInternalServerError, "failed to load plan")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleClients(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"clients": s.clients.Infos()})
}
