package metricsx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	outboxPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "outbox_pending_envelopes",
			Help: "Envelopes waiting for dispatch.",
		},
	)
	outboxDeadLetters = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "outbox_dead_letters",
			Help: "Envelopes parked as dead letters.",
		},
	)
	outboxOldestPendingAge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "outbox_oldest_pending_age_seconds",
			Help: "Age of the oldest pending envelope in seconds.",
		},
	)
	outboxDispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_dispatches_total",
			Help: "Envelope dispatch outcomes by result.",
		},
		[]string{"result"},
	)
	outboxBatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "outbox_batch_duration_seconds",
			Help:    "Outbox batch processing latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
	influxWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "influx_write_failures_total",
			Help: "Total InfluxDB write failures.",
		},
	)
	asynqQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "asynq_queue_depth",
			Help: "Asynq queue depth by queue.",
		},
		[]string{"queue"},
	)
)

func Register() {
	prometheus.MustRegister(
		httpRequests,
		httpLatency,
		outboxPending,
		outboxDeadLetters,
		outboxOldestPendingAge,
		outboxDispatches,
		outboxBatchDuration,
		influxWriteFailures,
		asynqQueueDepth,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		status := strconv.Itoa(lrw.statusCode)
		httpRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpLatency.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
	})
}

func SetOutboxPending(n int64) {
	outboxPending.Set(float64(n))
}

func SetOutboxDeadLetters(n int64) {
	outboxDeadLetters.Set(float64(n))
}

func SetOutboxOldestPendingAge(age time.Duration) {
	outboxOldestPendingAge.Set(age.Seconds())
}

// IncOutboxDispatch counts an envelope outcome: dispatched, retried or
// dead_lettered.
func IncOutboxDispatch(result string) {
	outboxDispatches.WithLabelValues(result).Inc()
}

func ObserveOutboxBatchDuration(d time.Duration) {
	outboxBatchDuration.Observe(d.Seconds())
}

func IncInfluxWriteFailure() {
	influxWriteFailures.Inc()
}

func SetAsynqQueueDepth(queue string, depth int) {
	asynqQueueDepth.WithLabelValues(queue).Set(float64(depth))
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
