package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "warmroute"

// Dispatch sources.
const (
	SourcePrediction  = "prediction"
	SourceInteraction = "interaction"
)

// Prom holds the engine's Prometheus collectors. A nil *Prom records
// nothing, so callers need not check whether export is enabled.
type Prom struct {
	dispatches   *prometheus.CounterVec
	gated        *prometheus.CounterVec
	loadErrors   *prometheus.CounterVec
	tickDuration prometheus.Histogram
	candidates   prometheus.Histogram
}

// NewProm registers the collectors with reg. A nil reg registers with the
// default registry.
func NewProm(reg prometheus.Registerer) *Prom {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Prom{
		// Labels: source (prediction, interaction)
		dispatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prefetch",
			Name:      "dispatches_total",
			Help:      "Prefetches started, by source",
		}, []string{"source"}),

		// Labels: reason (engagement, pointer, network, visibility)
		gated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prefetch",
			Name:      "gated_total",
			Help:      "Prediction cycles stopped by a gate, by reason",
		}, []string{"reason"}),

		// Labels: kind (error, panic)
		loadErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prefetch",
			Name:      "load_errors_total",
			Help:      "Route loaders that failed",
		}, []string{"kind"}),

		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "tick_duration_seconds",
			Help:      "Prediction cycle latency in seconds",
			Buckets:   []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
		}),

		candidates: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "candidates",
			Help:      "Ranked candidates per prediction cycle",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}),
	}
}

// RecordDispatch counts a started prefetch.
func (p *Prom) RecordDispatch(source string) {
	if p == nil {
		return
	}
	p.dispatches.WithLabelValues(source).Inc()
}

// RecordGated counts a cycle stopped by a gate.
func (p *Prom) RecordGated(reason string) {
	if p == nil {
		return
	}
	p.gated.WithLabelValues(reason).Inc()
}

// RecordLoadError counts a failed loader. kind is "error" or "panic".
func (p *Prom) RecordLoadError(kind string) {
	if p == nil {
		return
	}
	p.loadErrors.WithLabelValues(kind).Inc()
}

// ObserveTick records one prediction cycle.
func (p *Prom) ObserveTick(durationSec float64, candidates int) {
	if p == nil {
		return
	}
	p.tickDuration.Observe(durationSec)
	p.candidates.Observe(float64(candidates))
}
