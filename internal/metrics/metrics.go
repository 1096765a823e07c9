package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wanderwise_edge",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests handled by the edge",
		},
		[]string{"method", "code"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wanderwise_edge",
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests handled by the edge",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wanderwise_edge",
			Name:      "fetch_resolutions_total",
			Help:      "Intercepted requests by strategy and how they were resolved",
		},
		[]string{"strategy", "outcome"},
	)

	captures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wanderwise_edge",
			Name:      "captures_total",
			Help:      "On-demand captures into the current generation",
		},
		[]string{"result"},
	)

	installDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "wanderwise_edge",
			Name:      "install_duration_seconds",
			Help:      "Time spent populating a generation from the asset manifest",
			Buckets:   prometheus.DefBuckets,
		},
	)

	generationsDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wanderwise_edge",
			Name:      "generations_deleted_total",
			Help:      "Stale cache generations removed by activation",
		},
	)

	initOnce sync.Once
)

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(requestTotal, requestDuration, resolutions, captures, installDuration, generationsDeleted)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveRequest(method, code string, d time.Duration) {
	requestTotal.WithLabelValues(method, code).Inc()
	requestDuration.WithLabelValues(method).Observe(d.Seconds())
}

func IncResolution(strategy, outcome string) {
	resolutions.WithLabelValues(strategy, outcome).Inc()
}

func IncCapture(result string) {
	captures.WithLabelValues(result).Inc()
}

func ObserveInstall(d time.Duration) {
	installDuration.Observe(d.Seconds())
}

func AddGenerationsDeleted(n int) {
	generationsDeleted.Add(float64(n))
}
