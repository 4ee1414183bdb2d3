package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics はゲートウェイのPrometheusメトリクス。
type Metrics struct {
	transforms        *prometheus.CounterVec
	transformDuration prometheus.Histogram
	upstreamErrors    *prometheus.CounterVec
}

// NewMetrics は reg にゲートウェイのメトリクスを登録する。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		transforms: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shopgate",
			Subsystem: "gateway",
			Name:      "token_transforms_total",
			Help:      "Number of token transformations by outcome",
		}, []string{"outcome"}),
		transformDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "shopgate",
			Subsystem: "gateway",
			Name:      "token_transform_duration_seconds",
			Help:      "Time spent verifying and minting tokens",
			Buckets:   []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025},
		}),
		upstreamErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shopgate",
			Subsystem: "gateway",
			Name:      "upstream_errors_total",
			Help:      "Number of failed proxy attempts by route prefix",
		}, []string{"route"}),
	}
}

func (m *Metrics) observeTransform(outcome Outcome, d time.Duration) {
	if m == nil {
		return
	}
	m.transforms.WithLabelValues(string(outcome)).Inc()
	m.transformDuration.Observe(d.Seconds())
}

func (m *Metrics) incUpstreamError(prefix string) {
	if m == nil {
		return
	}
	m.upstreamErrors.WithLabelValues(prefix).Inc()
}
