package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus instrumentation for a running pipeline. A nil
// *Metrics is valid and every method on it is a no-op, so callers that don't
// want metrics never have to construct one.
type Metrics struct {
	turnsTotal        *prometheus.CounterVec
	interruptsTotal   prometheus.Counter
	playbackQueueDepth prometheus.Gauge
	firstPhraseLatency prometheus.Histogram
	endToEndLatency    prometheus.Histogram
}

// NewMetrics registers the pipeline's metrics under namespace against the
// default Prometheus registerer. Call once per process.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer registers against reg instead of the default
// registerer, so tests can use a fresh prometheus.NewRegistry() and avoid
// colliding with metrics registered elsewhere in the process.
func NewMetricsWithRegisterer(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		turnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turns_total",
				Help:      "Total number of conversation turns completed, by outcome",
			},
			[]string{"outcome"}, // completed, interrupted, failed
		),
		interruptsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "interrupts_total",
				Help:      "Total number of user barge-ins that cancelled an in-flight turn",
			},
		),
		playbackQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "playback_queue_depth_frames",
				Help:      "Number of audio frames currently queued for playback",
			},
		),
		firstPhraseLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "first_phrase_latency_seconds",
				Help:      "Time from end of user speech to the first synthesized audio chunk",
				Buckets:   []float64{0.1, 0.2, 0.3, 0.5, 0.75, 1, 1.5, 2, 3, 5},
			},
		),
		endToEndLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "end_to_end_latency_seconds",
				Help:      "Time from end of user speech to the latest audio of the response sent or played",
				Buckets:   []float64{0.2, 0.5, 1, 2, 3, 5, 8, 13, 21},
			},
		),
	}
}

func (m *Metrics) RecordTurn(outcome string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordInterrupt() {
	if m == nil {
		return
	}
	m.interruptsTotal.Inc()
}

func (m *Metrics) SetPlaybackQueueDepth(frames int) {
	if m == nil {
		return
	}
	m.playbackQueueDepth.Set(float64(frames))
}

func (m *Metrics) ObserveFirstPhraseLatencySeconds(seconds float64) {
	if m == nil {
		return
	}
	m.firstPhraseLatency.Observe(seconds)
}

func (m *Metrics) ObserveEndToEndLatencySeconds(seconds float64) {
	if m == nil {
		return
	}
	m.endToEndLatency.Observe(seconds)
}
