package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Turn metrics
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_assistant_turns_total",
		Help: "Total number of pipeline turns by flow and outcome",
	}, []string{"flow", "status"})

	turnDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voice_assistant_turn_duration_seconds",
		Help:    "End-to-end duration of pipeline turns in seconds",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"flow"})

	stageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voice_assistant_stage_latency_seconds",
		Help:    "Pipeline stage latency in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 120.0},
	}, []string{"stage", "status"})

	// Provider metrics
	providerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_assistant_provider_calls_total",
		Help: "Total number of remote provider calls by outcome",
	}, []string{"provider", "outcome"})

	providerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voice_assistant_provider_latency_seconds",
		Help:    "Remote provider call latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 120.0, 300.0},
	}, []string{"provider"})

	retryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_assistant_retry_attempts_total",
		Help: "Total number of retried provider attempts",
	}, []string{"component"})

	// Session and background work metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_assistant_active_sessions",
		Help: "Number of live dialogue sessions",
	})

	sweepRemovals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_assistant_sweep_removals_total",
		Help: "Total items removed by background sweeps",
	}, []string{"target"})

	tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_assistant_tasks_total",
		Help: "Total queued tasks by final status",
	}, []string{"status"})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_assistant_task_queue_depth",
		Help: "Number of tasks waiting for the worker",
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_assistant_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voice_assistant_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_assistant_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_assistant_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" (uploads) or "out" (synthesized)
)

// TurnMetrics tracks metrics for a single pipeline turn
type TurnMetrics struct {
	flow       string
	startTime  time.Time
	stageStart map[string]time.Time
	mu         sync.Mutex
}

// NewTurnMetrics creates a new metrics tracker for a turn of the given flow
// (audio, text, speech)
func NewTurnMetrics(flow string) *TurnMetrics {
	return &TurnMetrics{
		flow:       flow,
		startTime:  time.Now(),
		stageStart: make(map[string]time.Time),
	}
}

// StageStart records the start of a pipeline stage
func (m *TurnMetrics) StageStart(stage string) {
	m.mu.Lock()
	m.stageStart[stage] = time.Now()
	m.mu.Unlock()
}

// StageEnd records the end of a pipeline stage
func (m *TurnMetrics) StageEnd(stage string, success bool) {
	m.mu.Lock()
	start, ok := m.stageStart[stage]
	delete(m.stageStart, stage)
	m.mu.Unlock()

	if !ok {
		return
	}
	stageLatency.WithLabelValues(stage, statusLabel(success)).Observe(time.Since(start).Seconds())
}

// Finish records the turn's outcome and total duration
func (m *TurnMetrics) Finish(status string) {
	turnsTotal.WithLabelValues(m.flow, status).Inc()
	turnDuration.WithLabelValues(m.flow).Observe(time.Since(m.startTime).Seconds())
}

// RecordError records an error
func (m *TurnMetrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAudioBytes records audio bytes processed
func (m *TurnMetrics) RecordAudioBytes(direction string, bytes int64) {
	RecordAudioBytes(direction, bytes)
}

// RecordAudioBytes records audio bytes received ("in") or synthesized ("out")
func RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordProviderCall records one call to a remote provider
func RecordProviderCall(provider, outcome string, latency time.Duration) {
	providerCalls.WithLabelValues(provider, outcome).Inc()
	providerLatency.WithLabelValues(provider).Observe(latency.Seconds())
}

// RecordRetry counts one retried attempt
func RecordRetry(component string) {
	retryAttempts.WithLabelValues(component).Inc()
}

// SetActiveSessions updates the live session gauge
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

// RecordSweep counts items removed by a background sweep
func RecordSweep(target string, removed int) {
	if removed > 0 {
		sweepRemovals.WithLabelValues(target).Add(float64(removed))
	}
}

// RecordTask counts a task reaching a final status
func RecordTask(status string) {
	tasksTotal.WithLabelValues(status).Inc()
}

// SetQueueDepth updates the task queue depth gauge
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
