package services

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Graph API calls partitioned by method, endpoint template and status code
	graphRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adbridge_graph_requests_total",
			Help: "Total number of Graph API requests issued",
		},
		[]string{"method", "endpoint", "status"},
	)

	graphRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adbridge_graph_request_duration_seconds",
			Help:    "Graph API request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
)

// observeGraphRequest records one Graph call. Transport failures have no
// HTTP status and are labelled "error".
func observeGraphRequest(method, endpoint string, status int, err error, elapsed time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	} else if err == nil {
		label = "0"
	}

	labels := prometheus.Labels{"method": method, "endpoint": endpoint, "status": label}
	graphRequestsTotal.With(labels).Inc()
	graphRequestDuration.With(labels).Observe(elapsed.Seconds())
}
