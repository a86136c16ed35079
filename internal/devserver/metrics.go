package devserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics are registered per server so tests can run several in one process.
type metrics struct {
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	conversations prometheus.Counter
	validation    prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wormchat_stub_requests_total",
				Help: "Total PostWormAPI requests by status code",
			},
			[]string{"status"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wormchat_stub_request_duration_seconds",
				Help:    "PostWormAPI handling duration",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"status"},
		),
		conversations: f.NewCounter(
			prometheus.CounterOpts{
				Name: "wormchat_stub_conversations_started_total",
				Help: "Conversations created by the stub backend",
			},
		),
		validation: f.NewCounter(
			prometheus.CounterOpts{
				Name: "wormchat_stub_validation_failures_total",
				Help: "Requests rejected with 400",
			},
		),
	}
}
