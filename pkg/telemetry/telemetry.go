// Package telemetry exposes the server's Prometheus metrics.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartscribe_messages_total",
		Help: "Messages appended to session logs, by sender.",
	}, []string{"sender"})

	ExchangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartscribe_exchanges_total",
		Help: "Assistant exchanges requested, by result.",
	}, []string{"result"})

	TranscriptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartscribe_transcripts_total",
		Help: "Transcript status transitions, by status.",
	}, []string{"status"})

	IngestQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "smartscribe_ingest_queue_depth",
		Help: "Transcription jobs currently queued.",
	})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "smartscribe_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request latency and status for every request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		httpDuration.WithLabelValues(r.Method, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}
