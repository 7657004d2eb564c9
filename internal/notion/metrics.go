package notion

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ncv_notion_requests_total",
		Help: "Notion API requests by operation and outcome.",
	}, []string{"op", "outcome"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ncv_notion_request_duration_seconds",
		Help:    "Latency of Notion API requests, including rate limiter wait.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
)

func observe(op string, start time.Time, err error) {
	outcome := "ok"
	switch {
	case IsAccessDenied(err):
		outcome = "denied"
	case err != nil:
		outcome = "error"
	}
	requestsTotal.WithLabelValues(op, outcome).Inc()
	requestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
