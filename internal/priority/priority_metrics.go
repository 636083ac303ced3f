package priority

import (
	"strings"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the classification subsystem.
type Metrics struct {
	PredictionsTotal *prometheus.CounterVec
	UnmappedTotal    *prometheus.CounterVec
	EngineCallsTotal *prometheus.CounterVec
	EngineDuration   *prometheus.HistogramVec
}

// NewMetrics registers and returns classification metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PredictionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prioritizer_predictions_total",
			Help: "Total predictions by resulting tier and source.",
		}, []string{"tier", "source"}),
		UnmappedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prioritizer_unmapped_labels_total",
			Help: "Engine top labels that fell outside the candidate set.",
		}, []string{"raw_label"}),
		EngineCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prioritizer_engine_calls_total",
			Help: "Total classification engine calls by outcome.",
		}, []string{"model", "outcome"}),
		EngineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prioritizer_engine_call_duration_seconds",
			Help:    "Duration of classification engine calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms .. ~20s
		}, []string{"model"}),
	}

	reg.MustRegister(
		m.PredictionsTotal,
		m.UnmappedTotal,
		m.EngineCallsTotal,
		m.EngineDuration,
	)

	return m
}

// Hooks returns Classifier hooks that update the corresponding metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnEngineCall: func(model string, duration float64, err error) {
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			m.EngineCallsTotal.WithLabelValues(model, outcome).Inc()
			m.EngineDuration.WithLabelValues(model).Observe(duration)
		},
		OnPredict: func(e *PredictEvent) {
			m.PredictionsTotal.WithLabelValues(string(e.Tier), string(e.Source)).Inc()
			if !e.Mapped {
				m.UnmappedTotal.WithLabelValues(truncateLabel(e.RawLabel)).Inc()
			}
		},
	}
}

// maxLabelLen bounds the cardinality cost of an unexpected raw label.
const maxLabelLen = 64

// truncateLabel caps s at maxLabelLen bytes without splitting a rune.
// Prometheus rejects label values that are not valid UTF-8.
func truncateLabel(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= maxLabelLen {
		return s
	}
	n := maxLabelLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
