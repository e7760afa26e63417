package metrics

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "farmgate_"

	resultSuccess = "success"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	resolutionTotal *prometheus.CounterVec

	deadLettersTotal *prometheus.CounterVec
	deadLetterGauge  prometheus.Gauge

	publishTotal       *prometheus.CounterVec
	publishRetries     prometheus.Counter
	breakerTransitions *prometheus.CounterVec
)

// Init registers observability metrics and the DB-backed dead-letter
// backlog gauge.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total ingest requests by result",
			},
			[]string{"result"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		resolutionTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "resolution_total",
				Help: "Total successful plot resolutions by method",
			},
			[]string{"method"},
		)

		deadLettersTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "dead_letters_total",
				Help: "Total dead-letter records by error type",
			},
			[]string{"type"},
		)
		deadLetterGauge = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "dead_letter_backlog",
				Help: "Rows currently in the dead-letter table",
			},
		)

		publishTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "publish_total",
				Help: "Total broker publishes by result",
			},
			[]string{"result"},
		)
		publishRetries = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "publish_retries_total",
				Help: "Total broker publish retry attempts",
			},
		)
		breakerTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "publish_breaker_transitions_total",
				Help: "Total publish circuit breaker state transitions",
			},
			[]string{"state"},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestLatency,
			resolutionTotal,
			deadLettersTotal,
			deadLetterGauge,
			publishTotal,
			publishRetries,
			breakerTransitions,
		)

		if db != nil {
			go pollDeadLetterBacklog(db, logger)
		}
	})
}

func pollDeadLetterBacklog(db *sql.DB, logger *log.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		var count int64
		err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ingestion_errors").Scan(&count)
		cancel()
		if err != nil {
			if logger != nil {
				logger.Printf("dead letter backlog poll error: %v", err)
			}
			continue
		}
		if deadLetterGauge != nil {
			deadLetterGauge.Set(float64(count))
		}
	}
}

// ObserveIngest records ingest request duration and result.
func ObserveIngest(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncResolution increments the resolution counter for a method.
func IncResolution(method string) {
	if method == "" {
		method = "unknown"
	}
	if resolutionTotal != nil {
		resolutionTotal.WithLabelValues(method).Inc()
	}
}

// IncDeadLetter increments the dead-letter counter for an error type.
func IncDeadLetter(errorType string) {
	if errorType == "" {
		errorType = "unknown"
	}
	if deadLettersTotal != nil {
		deadLettersTotal.WithLabelValues(errorType).Inc()
	}
}

// ObservePublish increments the publish counter for a result.
func ObservePublish(result string) {
	if result == "" {
		result = resultSuccess
	}
	if publishTotal != nil {
		publishTotal.WithLabelValues(result).Inc()
	}
}

// IncPublishRetry increments the publish retry counter.
func IncPublishRetry() {
	if publishRetries != nil {
		publishRetries.Inc()
	}
}

// IncBreakerTransition increments the breaker transition counter.
func IncBreakerTransition(state string) {
	if breakerTransitions != nil {
		breakerTransitions.WithLabelValues(state).Inc()
	}
}
