package s3

import (
	stderr "errors"
	"sync/atomic"
	"time"

	"github.com/objectfs/cachingfs/internal/circuit"
	"github.com/objectfs/cachingfs/pkg/errors"
)

// BackendMetrics is a point-in-time view of the requests a FileSystem sent to S3.
// Errors counts every failed request, NotFound included.
type BackendMetrics struct {
	Requests        int64         `json:"requests"`
	Errors          int64         `json:"errors"`
	NotFound        int64         `json:"not_found"`
	Throttles       int64         `json:"throttles"`
	Retries         int64         `json:"retries"`
	Rejected        int64         `json:"rejected"`
	BytesDownloaded int64         `json:"bytes_downloaded"`
	TotalLatency    time.Duration `json:"total_latency"`
	MaxLatency      time.Duration `json:"max_latency"`
}

// AverageLatency returns the mean request latency.
func (m BackendMetrics) AverageLatency() time.Duration {
	if m.Requests == 0 {
		return 0
	}
	return m.TotalLatency / time.Duration(m.Requests)
}

// MetricsCollector counts S3 traffic. It is safe for concurrent use.
type MetricsCollector struct {
	requests        atomic.Int64
	errors          atomic.Int64
	notFound        atomic.Int64
	throttles       atomic.Int64
	retries         atomic.Int64
	rejected        atomic.Int64
	bytesDownloaded atomic.Int64
	totalLatency    atomic.Int64
	maxLatency      atomic.Int64
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

// RecordRequest records one request that reached S3.
func (mc *MetricsCollector) RecordRequest(duration time.Duration, err error) {
	mc.requests.Add(1)
	mc.totalLatency.Add(int64(duration))
	for {
		cur := mc.maxLatency.Load()
		if int64(duration) <= cur || mc.maxLatency.CompareAndSwap(cur, int64(duration)) {
			break
		}
	}

	if err == nil {
		return
	}
	mc.errors.Add(1)
	if errors.IsNotFound(err) {
		mc.notFound.Add(1)
	}
}

// RecordRejected records a request the circuit breaker refused.
func (mc *MetricsCollector) RecordRejected(err error) {
	if stderr.Is(err, circuit.ErrOpenState) || stderr.Is(err, circuit.ErrTooManyRequests) {
		mc.rejected.Add(1)
	}
}

// RecordThrottle records a throttled request
func (mc *MetricsCollector) RecordThrottle() { mc.throttles.Add(1) }

// RecordRetry records a retry attempt
func (mc *MetricsCollector) RecordRetry() { mc.retries.Add(1) }

// RecordBytesDownloaded records downloaded bytes
func (mc *MetricsCollector) RecordBytesDownloaded(bytes int64) { mc.bytesDownloaded.Add(bytes) }

// GetMetrics returns current backend metrics
func (mc *MetricsCollector) GetMetrics() BackendMetrics {
	return BackendMetrics{
		Requests:        mc.requests.Load(),
		Errors:          mc.errors.Load(),
		NotFound:        mc.notFound.Load(),
		Throttles:       mc.throttles.Load(),
		Retries:         mc.retries.Load(),
		Rejected:        mc.rejected.Load(),
		BytesDownloaded: mc.bytesDownloaded.Load(),
		TotalLatency:    time.Duration(mc.totalLatency.Load()),
		MaxLatency:      time.Duration(mc.maxLatency.Load()),
	}
}
