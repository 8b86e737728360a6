package detect

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the detection pipeline.
//
// Metrics:
//   - msgguard_messages_inspected_total
//   - msgguard_detections_total
//   - msgguard_matches_total{kind}
//   - msgguard_batch_flushes_total
//   - msgguard_batch_flush_errors_total
//   - msgguard_detections_saved_total
//   - msgguard_batch_buffered
type Metrics struct {
	MessagesInspected prometheus.Counter
	Detections        prometheus.Counter
	Matches           *prometheus.CounterVec

	Flushes     prometheus.Counter
	FlushErrors prometheus.Counter
	Saved       prometheus.Counter
	Buffered    prometheus.Gauge
}

// NewMetrics registers the pipeline metrics with reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MessagesInspected: f.NewCounter(prometheus.CounterOpts{
			Name: "msgguard_messages_inspected_total",
			Help: "Total number of messages inspected",
		}),
		Detections: f.NewCounter(prometheus.CounterOpts{
			Name: "msgguard_detections_total",
			Help: "Total number of messages with at least one match",
		}),
		Matches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "msgguard_matches_total",
			Help: "Total number of matches by strategy",
		}, []string{"kind"}), // exact | regex | fuzzy
		Flushes: f.NewCounter(prometheus.CounterOpts{
			Name: "msgguard_batch_flushes_total",
			Help: "Total number of successful batch flushes",
		}),
		FlushErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "msgguard_batch_flush_errors_total",
			Help: "Total number of failed batch flushes",
		}),
		Saved: f.NewCounter(prometheus.CounterOpts{
			Name: "msgguard_detections_saved_total",
			Help: "Total number of detections persisted",
		}),
		Buffered: f.NewGauge(prometheus.GaugeOpts{
			Name: "msgguard_batch_buffered",
			Help: "Detections waiting for the next flush",
		}),
	}
}
