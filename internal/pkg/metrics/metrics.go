package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookrelay_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hookrelay_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	// Capture
	CapturesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookrelay_captures_total",
			Help: "Inbound webhook requests by outcome",
		},
		[]string{"outcome"},
	)

	StorageErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookrelay_storage_errors_total",
			Help: "Persistence failures inside the capture pipeline",
		},
		[]string{"op"},
	)

	// Relay
	RelaysTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookrelay_relays_total",
			Help: "Outbound relay attempts by result",
		},
		[]string{"result"},
	)

	RelayDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hookrelay_relay_duration_seconds",
			Help:    "Outbound relay duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	RetentionDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hookrelay_retention_deleted_total",
			Help: "Captured requests removed by the retention job",
		},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}
