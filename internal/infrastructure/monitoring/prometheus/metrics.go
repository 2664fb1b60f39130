package prometheus

import (
	"strconv"
	"time"

	"github.com/turtacn/Regolith-Intelligence/pkg/types/simulant"
)

var (
	DefaultHTTPDurationBuckets  = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultLLMDurationBuckets   = []float64{.5, 1, 2, 5, 10, 30, 60, 120}
	DefaultBatchDurationBuckets = []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600}
)

// PipelineMetrics is the extraction pipeline's metric set.  Its methods
// match the observer hooks of the extraction service, the extractor layers,
// the LLM client and its cache.
type PipelineMetrics struct {
	DocumentsTotal      CounterVec
	FieldsTotal         CounterVec
	StoreWritesTotal    CounterVec
	LayerHitsTotal      CounterVec
	LayerValuesTotal    CounterVec
	BatchItemsTotal     CounterVec
	BatchDuration       HistogramVec
	LLMRequestsTotal    CounterVec
	LLMRequestDuration  HistogramVec
	CacheHitsTotal      CounterVec
	CacheMissesTotal    CounterVec
	EventsTotal         CounterVec
	ReviewQueueDepth    GaugeVec
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HealthCheckStatus   GaugeVec
}

// NewPipelineMetrics registers every metric on collector.
func NewPipelineMetrics(collector MetricsCollector) *PipelineMetrics {
	m := &PipelineMetrics{}

	m.DocumentsTotal = collector.RegisterCounter("documents_processed_total", "Documents processed", "format", "status")
	m.FieldsTotal = collector.RegisterCounter("field_dispositions_total", "Reconciled fields by disposition", "disposition")
	m.StoreWritesTotal = collector.RegisterCounter("store_writes_total", "Record store writes", "category", "status")

	m.LayerHitsTotal = collector.RegisterCounter("extraction_layer_hits_total", "Extraction layers that added values", "category", "method")
	m.LayerValuesTotal = collector.RegisterCounter("extraction_layer_values_total", "Values added per extraction layer", "category", "method")

	m.BatchItemsTotal = collector.RegisterCounter("batch_items_total", "Batch items by outcome", "batch", "result")
	m.BatchDuration = collector.RegisterHistogram("batch_duration_seconds", "Batch wall time", DefaultBatchDurationBuckets, "batch")

	m.LLMRequestsTotal = collector.RegisterCounter("llm_requests_total", "LLM requests", "operation", "status")
	m.LLMRequestDuration = collector.RegisterHistogram("llm_request_duration_seconds", "LLM request duration", DefaultLLMDurationBuckets, "operation")
	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Cache hits", "cache")
	m.CacheMissesTotal = collector.RegisterCounter("cache_misses_total", "Cache misses", "cache")

	m.EventsTotal = collector.RegisterCounter("events_published_total", "Pipeline events published", "topic", "status")
	m.ReviewQueueDepth = collector.RegisterGauge("review_queue_depth", "Pending review items", "queue")

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")
	m.HealthCheckStatus = collector.RegisterGauge("health_check_status", "Dependency health (1=up, 0=down)", "component")

	return m
}

// DocumentProcessed counts one decoded or failed document.
func (m *PipelineMetrics) DocumentProcessed(format, status string) {
	m.DocumentsTotal.WithLabelValues(format, status).Inc()
}

// FieldDisposition adds n fields to a disposition bucket.
func (m *PipelineMetrics) FieldDisposition(disposition string, n int) {
	if n > 0 {
		m.FieldsTotal.WithLabelValues(disposition).Add(float64(n))
	}
}

func (m *PipelineMetrics) StoreWrite(category, status string) {
	m.StoreWritesTotal.WithLabelValues(category, status).Inc()
}

// BatchCompleted records one finished document batch.
func (m *PipelineMetrics) BatchCompleted(name string, total, succeeded, failed int, elapsed time.Duration) {
	m.BatchItemsTotal.WithLabelValues(name, "succeeded").Add(float64(succeeded))
	m.BatchItemsTotal.WithLabelValues(name, "failed").Add(float64(failed))
	if skipped := total - succeeded - failed; skipped > 0 {
		m.BatchItemsTotal.WithLabelValues(name, "skipped").Add(float64(skipped))
	}
	m.BatchDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

// LayerHit records an extraction layer that contributed values.
func (m *PipelineMetrics) LayerHit(category string, method simulant.Method, added int) {
	m.LayerHitsTotal.WithLabelValues(category, string(method)).Inc()
	m.LayerValuesTotal.WithLabelValues(category, string(method)).Add(float64(added))
}

// LLMCall records one completion request.
func (m *PipelineMetrics) LLMCall(operation, status string, elapsed time.Duration) {
	m.LLMRequestsTotal.WithLabelValues(operation, status).Inc()
	m.LLMRequestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// CacheAccess records one LLM response cache lookup.
func (m *PipelineMetrics) CacheAccess(hit bool) {
	if hit {
		m.CacheHitsTotal.WithLabelValues("llm").Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues("llm").Inc()
	}
}

// EventPublished records a broker write; err nil means success.
func (m *PipelineMetrics) EventPublished(topic string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.EventsTotal.WithLabelValues(topic, status).Inc()
}

func (m *PipelineMetrics) SetReviewQueueDepth(queue string, n int) {
	m.ReviewQueueDepth.WithLabelValues(queue).Set(float64(n))
}

func (m *PipelineMetrics) RecordHTTPRequest(method, path string, statusCode int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

func (m *PipelineMetrics) SetHealth(component string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.HealthCheckStatus.WithLabelValues(component).Set(v)
}
