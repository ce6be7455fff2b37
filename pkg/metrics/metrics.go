package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Session metrics
	SessionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gsdharness_sessions_total",
			Help: "Total number of sessions by status",
		},
		[]string{"status"},
	)

	SlotsInUse = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gsdharness_slots_in_use",
			Help: "Number of supervisor slots currently occupied",
		},
	)

	SlotsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gsdharness_slots_total",
			Help: "Total number of supervisor slots configured",
		},
	)

	SessionSpawnDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gsdharness_session_spawn_duration_seconds",
			Help:    "Time taken to spawn a session's pty and child process",
			Buckets: prometheus.DefBuckets,
		},
	)

	SessionSpawnsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gsdharness_session_spawns_failed_total",
			Help: "Total number of session spawn attempts rejected, by reason",
		},
		[]string{"reason"},
	)

	SessionsOrphanRecovered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gsdharness_sessions_orphan_recovered_total",
			Help: "Total number of sessions recovered as orphans on startup",
		},
	)

	// Output metrics
	OutputBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gsdharness_output_bytes_total",
			Help: "Total bytes of pty output captured, by stream",
		},
		[]string{"stream"},
	)

	// Worker message metrics
	WorkerMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gsdharness_worker_messages_total",
			Help: "Total number of worker messages reported, by type",
		},
		[]string{"type"},
	)

	PendingCheckpoints = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gsdharness_pending_checkpoints",
			Help: "Number of worker messages awaiting an orchestrator response",
		},
	)

	CheckpointWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gsdharness_checkpoint_wait_duration_seconds",
			Help:    "Time a worker message spent pending before it was responded to",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 3600},
		},
	)

	MessagesExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gsdharness_worker_messages_expired_total",
			Help: "Total number of pending worker messages expired by TTL",
		},
	)

	// Scheduler metrics
	PlansTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gsdharness_plans_total",
			Help: "Total number of plans by status",
		},
		[]string{"status"},
	)

	SchedulerTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gsdharness_scheduler_tick_duration_seconds",
			Help:    "Time taken to evaluate and admit plans in a single scheduler tick",
			Buckets: prometheus.DefBuckets,
		},
	)

	PlansAdmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gsdharness_plans_admitted_total",
			Help: "Total number of plans admitted for execution",
		},
	)

	PlansRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gsdharness_plans_rejected_total",
			Help: "Total number of plan admission attempts rejected, by reason",
		},
		[]string{"reason"},
	)

	ActiveFileClaimsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gsdharness_active_file_claims_total",
			Help: "Total number of active file claims by mode",
		},
		[]string{"mode"},
	)

	// MCP endpoint metrics
	MCPToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gsdharness_mcp_tool_calls_total",
			Help: "Total number of MCP tool invocations by tool and status",
		},
		[]string{"tool", "status"},
	)

	MCPToolCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gsdharness_mcp_tool_call_duration_seconds",
			Help:    "MCP tool call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	// Dashboard metrics
	DashboardClientsConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gsdharness_dashboard_clients_connected",
			Help: "Number of websocket clients currently connected to the dashboard",
		},
	)
)

func init() {
	prometheus.MustRegister(SessionsTotal)
	prometheus.MustRegister(SlotsInUse)
	prometheus.MustRegister(SlotsTotal)
	prometheus.MustRegister(SessionSpawnDuration)
	prometheus.MustRegister(SessionSpawnsFailed)
	prometheus.MustRegister(SessionsOrphanRecovered)
	prometheus.MustRegister(OutputBytesTotal)

	prometheus.MustRegister(WorkerMessagesTotal)
	prometheus.MustRegister(PendingCheckpoints)
	prometheus.MustRegister(CheckpointWaitDuration)
	prometheus.MustRegister(MessagesExpiredTotal)

	prometheus.MustRegister(PlansTotal)
	prometheus.MustRegister(SchedulerTickDuration)
	prometheus.MustRegister(PlansAdmittedTotal)
	prometheus.MustRegister(PlansRejectedTotal)
	prometheus.MustRegister(ActiveFileClaimsTotal)

	prometheus.MustRegister(MCPToolCallsTotal)
	prometheus.MustRegister(MCPToolCallDuration)

	prometheus.MustRegister(DashboardClientsConnected)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
