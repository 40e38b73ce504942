package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Counters
	VerifyRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verify_requests_total",
			Help: "Total /verify requests by mode and verdict",
		},
		[]string{"mode", "verdict"},
	)

	IngestRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_runs_total",
			Help: "Total ingestion runs by terminal status",
		},
		[]string{"status"},
	)

	ModelBackendCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "model_backend_calls_total",
			Help: "Model gateway calls by backend and outcome",
		},
		[]string{"backend", "outcome"},
	)

	EmbeddingProviderFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedding_provider_fallback_total",
			Help: "Embedding fallback-chain transitions",
		},
		[]string{"from", "to"},
	)

	ClaimLogQueueDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claimlog_queue_dropped_total",
			Help: "ClaimLog entries dropped because the fire-and-forget queue was full",
		},
		[]string{},
	)

	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "API requests",
		},
		[]string{"endpoint", "method"},
	)

	// Gauges
	ModelBackendHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "model_backend_health",
			Help: "Per-backend health from the last sampling pass (1=ok, 0=down)",
		},
		[]string{"backend"},
	)

	APIRequestsInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "api_requests_in_flight",
			Help: "Concurrent API requests",
		},
		[]string{},
	)

	// Histograms
	VerifyLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "verify_latency_seconds",
			Help:    "Verification request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	IngestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_duration_seconds",
			Help:    "Ingestion run duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{},
	)

	VectorQueryLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vector_query_latency_seconds",
			Help:    "Vector index query duration by collection",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collection"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	APIErrorsTotal       = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "api_errors_total", Help: "API error responses by error code"}, []string{"code"})
	APIResponseSizeBytes = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "api_response_size_bytes", Help: "API response body size", Buckets: prometheus.ExponentialBuckets(64, 4, 8)}, []string{"endpoint"})
	RateLimitHitsTotal   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "rate_limit_hits_total", Help: "Requests rejected by rate limiting"}, []string{})

	// Registry for all metrics
	metricsRegistry = make(map[string]prometheus.Collector)
	registryMu      sync.RWMutex
)

// InitMetrics registers all metrics with Prometheus.
func InitMetrics() {
	registryMu.Lock()
	defer registryMu.Unlock()

	register := func(name string, c prometheus.Collector) {
		prometheus.MustRegister(c)
		metricsRegistry[name] = c
	}

	register("verify_requests_total", VerifyRequestsTotal)
	register("ingest_runs_total", IngestRunsTotal)
	register("model_backend_calls_total", ModelBackendCallsTotal)
	register("embedding_provider_fallback_total", EmbeddingProviderFallbackTotal)
	register("claimlog_queue_dropped_total", ClaimLogQueueDroppedTotal)
	register("api_requests_total", APIRequestsTotal)
	register("model_backend_health", ModelBackendHealth)
	register("api_requests_in_flight", APIRequestsInFlight)
	register("verify_latency_seconds", VerifyLatency)
	register("ingest_duration_seconds", IngestDuration)
	register("vector_query_latency_seconds", VectorQueryLatency)
	register("api_request_duration_seconds", APIRequestDuration)
	register("api_errors_total", APIErrorsTotal)
	register("api_response_size_bytes", APIResponseSizeBytes)
	register("rate_limit_hits_total", RateLimitHitsTotal)
}

// IncrementCounter increments a counter metric with labels.
func IncrementCounter(name string, labels map[string]string) {
	registryMu.RLock()
	metric, exists := metricsRegistry[name]
	registryMu.RUnlock()

	if !exists {
		return
	}

	if counterVec, ok := metric.(*prometheus.CounterVec); ok {
		counterVec.With(labels).Inc()
	}
}

// SetGauge sets a gauge metric value with labels.
func SetGauge(name string, value float64, labels map[string]string) {
	registryMu.RLock()
	metric, exists := metricsRegistry[name]
	registryMu.RUnlock()

	if !exists {
		return
	}

	if gaugeVec, ok := metric.(*prometheus.GaugeVec); ok {
		gaugeVec.With(labels).Set(value)
	}
}

// ObserveHistogram observes a histogram metric with labels.
func ObserveHistogram(name string, value float64, labels map[string]string) {
	registryMu.RLock()
	metric, exists := metricsRegistry[name]
	registryMu.RUnlock()

	if !exists {
		return
	}

	if histogramVec, ok := metric.(*prometheus.HistogramVec); ok {
		histogramVec.With(labels).Observe(value)
	}
}

// GetMetric retrieves a metric by name for external use.
func GetMetric(name string) prometheus.Collector {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return metricsRegistry[name]
}
