package manager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the generation-side Prometheus collectors.
type Metrics struct {
	tokens        prometheus.Counter
	finishes      *prometheus.CounterVec
	ttft          prometheus.Histogram
	duration      prometheus.Histogram
	loadState     *prometheus.GaugeVec
	inflightGauge prometheus.Gauge
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		tokens: f.NewCounter(prometheus.CounterOpts{
			Namespace: "nanochatd",
			Subsystem: "generation",
			Name:      "tokens_total",
			Help:      "Total number of generated tokens",
		}),
		finishes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nanochatd",
			Subsystem: "generation",
			Name:      "finished_total",
			Help:      "Finished generations by terminal state",
		}, []string{"state"}),
		ttft: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nanochatd",
			Subsystem: "generation",
			Name:      "time_to_first_token_seconds",
			Help:      "Latency from start to the first emitted token",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nanochatd",
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Wall time of one generation",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		loadState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nanochatd",
			Subsystem: "model",
			Name:      "state",
			Help:      "1 for the current model load state",
		}, []string{"state"}),
		inflightGauge: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "nanochatd",
			Subsystem: "generation",
			Name:      "inflight",
			Help:      "Generations currently running",
		}),
	}
}

var defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

func (mt *Metrics) setLoadState(s State) {
	for _, v := range []State{StateLoading, StateReady, StateError} {
		val := 0.0
		if v == s {
			val = 1
		}
		mt.loadState.WithLabelValues(string(v)).Set(val)
	}
}
