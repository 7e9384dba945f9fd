package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	planTotal       *prometheus.CounterVec
	planDuration    prometheus.Histogram
	planAttempts    prometheus.Histogram
	attemptOutcomes *prometheus.CounterVec

	oracleCallTotal    *prometheus.CounterVec
	oracleCallDuration *prometheus.HistogramVec
	oracleErrorsTotal  *prometheus.CounterVec
	providerCooldown   *prometheus.GaugeVec

	historyWriteDuration prometheus.Histogram
	historyEntries       prometheus.Gauge

	activeSimulations prometheus.Gauge
	simulationFrames  prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			planTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "plan_total",
					Help: "Total planning runs by final validation status.",
				},
				[]string{"status"},
			),
			planDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "plan_duration_seconds",
					Help:    "Planning run duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			planAttempts: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "plan_attempts",
					Help:    "Oracle attempts used per planning run.",
					Buckets: []float64{1, 2, 3, 4, 5, 7, 10},
				},
			),
			attemptOutcomes: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "plan_attempt_outcomes_total",
					Help: "Planning attempts by outcome (accepted, oracle_invocation, parse, empty_candidate, safety_violation).",
				},
				[]string{"outcome"},
			),
			oracleCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "oracle_call_total",
					Help: "Total oracle calls by provider and status.",
				},
				[]string{"provider", "status"},
			),
			oracleCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "oracle_call_duration_seconds",
					Help:    "Oracle call duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			oracleErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "oracle_errors_total",
					Help: "Total oracle errors by provider.",
				},
				[]string{"provider"},
			),
			providerCooldown: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "provider_cooldown_active",
					Help: "Provider cooldown active state (1 active, 0 inactive).",
				},
				[]string{"provider"},
			),
			historyWriteDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "history_write_duration_seconds",
					Help:    "Plan history write duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			historyEntries: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "history_entries_total",
					Help: "Plans stored in the history archive.",
				},
			),
			activeSimulations: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_simulations",
					Help: "Current number of streaming simulations.",
				},
			),
			simulationFrames: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "simulation_frames_total",
					Help: "Total simulation frames emitted.",
				},
			),
		}

		prometheus.MustRegister(
			m.planTotal,
			m.planDuration,
			m.planAttempts,
			m.attemptOutcomes,
			m.oracleCallTotal,
			m.oracleCallDuration,
			m.oracleErrorsTotal,
			m.providerCooldown,
			m.historyWriteDuration,
			m.historyEntries,
			m.activeSimulations,
			m.simulationFrames,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordPlan(status string, attempts int, duration time.Duration) {
	m := getMetrics()
	m.planTotal.WithLabelValues(status).Inc()
	m.planAttempts.Observe(float64(attempts))
	m.planDuration.Observe(duration.Seconds())
}

func RecordPlanAttempt(outcome string) {
	m := getMetrics()
	m.attemptOutcomes.WithLabelValues(outcome).Inc()
}

func RecordOracleCall(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.oracleCallTotal.WithLabelValues(provider, status).Inc()
	m.oracleCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
	if !success {
		m.oracleErrorsTotal.WithLabelValues(provider).Inc()
	}
}

func SetProviderCooldown(provider string, active bool) {
	m := getMetrics()
	value := 0.0
	if active {
		value = 1.0
	}
	m.providerCooldown.WithLabelValues(provider).Set(value)
}

func RecordHistoryWrite(duration time.Duration) {
	m := getMetrics()
	m.historyWriteDuration.Observe(duration.Seconds())
}

func SetHistoryEntries(total int) {
	m := getMetrics()
	m.historyEntries.Set(float64(total))
}

func SimulationStarted() {
	getMetrics().activeSimulations.Inc()
}

func SimulationFinished() {
	getMetrics().activeSimulations.Dec()
}

func RecordSimulationFrame() {
	getMetrics().simulationFrames.Inc()
}
