package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	routingDecisions *prometheus.CounterVec

	turnTotal    *prometheus.CounterVec
	turnDuration *prometheus.HistogramVec

	loopIterations  prometheus.Histogram
	budgetExhausted prometheus.Counter

	modelCallTotal    *prometheus.CounterVec
	modelCallDuration *prometheus.HistogramVec

	toolInvocationTotal    *prometheus.CounterVec
	toolInvocationDuration *prometheus.HistogramVec
	toolErrorsTotal        *prometheus.CounterVec

	storeQueryTotal    *prometheus.CounterVec
	storeQueryDuration prometheus.Histogram

	identityResolutions *prometheus.CounterVec

	preferenceLoads prometheus.Counter
	preferenceSaves prometheus.Counter
	preferenceTotal prometheus.Gauge
	activeThreads   prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			routingDecisions: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "supervisor_routing_decisions_total",
					Help: "Routing decisions by selected agent and tier (keyword or model).",
				},
				[]string{"agent", "tier"},
			),
			turnTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "turn_total",
					Help: "Processed conversation turns by agent and status.",
				},
				[]string{"agent", "status"},
			),
			turnDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "turn_duration_seconds",
					Help:    "End-to-end turn processing duration by agent.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"agent"},
			),
			loopIterations: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "agent_loop_iterations",
					Help:    "Ask-model iterations consumed per agent loop run.",
					Buckets: []float64{1, 2, 3, 4, 5, 7, 10, 15, 20},
				},
			),
			budgetExhausted: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "agent_loop_budget_exhausted_total",
					Help: "Agent loop runs terminated by step budget exhaustion.",
				},
			),
			modelCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "model_call_total",
					Help: "Model invocations by provider and status.",
				},
				[]string{"provider", "status"},
			),
			modelCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "model_call_duration_seconds",
					Help:    "Model invocation duration by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			toolInvocationTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_invocation_total",
					Help: "Tool invocations by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolInvocationDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_invocation_duration_seconds",
					Help:    "Tool invocation duration by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			toolErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_errors_total",
					Help: "Failed tool invocations by tool.",
				},
				[]string{"tool"},
			),
			storeQueryTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "store_query_total",
					Help: "Store queries by status.",
				},
				[]string{"status"},
			),
			storeQueryDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "store_query_duration_seconds",
					Help:    "Store query duration.",
					Buckets: prometheus.DefBuckets,
				},
			),
			identityResolutions: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "identity_resolutions_total",
					Help: "Identity resolution attempts by outcome (pattern, email, phone, unresolved).",
				},
				[]string{"outcome"},
			),
			preferenceLoads: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "preference_loads_total",
					Help: "Preference store loads.",
				},
			),
			preferenceSaves: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "preference_saves_total",
					Help: "Preference store saves.",
				},
			),
			preferenceTotal: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "preference_records",
					Help: "Preference records currently held.",
				},
			),
			activeThreads: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_threads",
					Help: "Conversation threads with live session state.",
				},
			),
		}

		prometheus.MustRegister(
			m.routingDecisions,
			m.turnTotal,
			m.turnDuration,
			m.loopIterations,
			m.budgetExhausted,
			m.modelCallTotal,
			m.modelCallDuration,
			m.toolInvocationTotal,
			m.toolInvocationDuration,
			m.toolErrorsTotal,
			m.storeQueryTotal,
			m.storeQueryDuration,
			m.identityResolutions,
			m.preferenceLoads,
			m.preferenceSaves,
			m.preferenceTotal,
			m.activeThreads,
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

func RecordRoutingDecision(agent, tier string) {
	getMetrics().routingDecisions.WithLabelValues(agent, tier).Inc()
}

func RecordTurn(agent string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.turnTotal.WithLabelValues(agent, status).Inc()
	m.turnDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

func RecordLoopIterations(iterations int) {
	getMetrics().loopIterations.Observe(float64(iterations))
}

func RecordBudgetExhausted() {
	getMetrics().budgetExhausted.Inc()
}

func RecordModelCall(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.modelCallTotal.WithLabelValues(provider, status).Inc()
	m.modelCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordToolInvocation(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.toolInvocationTotal.WithLabelValues(tool, status).Inc()
	m.toolInvocationDuration.WithLabelValues(tool).Observe(duration.Seconds())
	if !success {
		m.toolErrorsTotal.WithLabelValues(tool).Inc()
	}
}

func RecordStoreQuery(duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.storeQueryTotal.WithLabelValues(status).Inc()
	m.storeQueryDuration.Observe(duration.Seconds())
}

func RecordIdentityResolution(outcome string) {
	getMetrics().identityResolutions.WithLabelValues(outcome).Inc()
}

func RecordPreferenceLoad() {
	getMetrics().preferenceLoads.Inc()
}

func RecordPreferenceSave(total int) {
	m := getMetrics()
	m.preferenceSaves.Inc()
	m.preferenceTotal.Set(float64(total))
}

func SetActiveThreads(count int) {
	getMetrics().activeThreads.Set(float64(count))
}
