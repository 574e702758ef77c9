package metrics

import (
	"context"
	stderr "errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/objectfs/cachingfs/internal/filesystem"
	"github.com/objectfs/cachingfs/pkg/errors"
)

// Collector records caching file system events into a Prometheus registry and keeps a
// per-category summary for quick inspection. It implements filesystem.Recorder.
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry
	logger   *slog.Logger

	// Prometheus metrics
	cacheRequests *prometheus.CounterVec
	negativeHits  prometheus.Counter
	innerCalls    *prometheus.CounterVec
	innerDuration *prometheus.HistogramVec
	dedupJoins    prometheus.Counter
	failOnMiss    *prometheus.CounterVec

	// Internal tracking
	categories   map[string]*CategoryMetrics
	negativeSeen int64
	dedupSeen    int64
	lastReset    time.Time

	server *http.Server
}

var _ filesystem.Recorder = (*Collector)(nil)

// Config represents metrics configuration
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	Port      int               `yaml:"port"`
	Path      string            `yaml:"path"`
	Namespace string            `yaml:"namespace"`
	Subsystem string            `yaml:"subsystem"`
	Labels    map[string]string `yaml:"labels"`
}

// CategoryMetrics summarizes one cache category (stat, read or walk)
type CategoryMetrics struct {
	Hits          int64         `json:"hits"`
	Misses        int64         `json:"misses"`
	FailOnMiss    int64         `json:"fail_on_miss"`
	InnerCalls    int64         `json:"inner_calls"`
	InnerErrors   int64         `json:"inner_errors"`
	TotalDuration time.Duration `json:"total_duration"`
	MaxDuration   time.Duration `json:"max_duration"`
}

// HitRate returns hits over lookups, or 0 before any lookup.
func (m CategoryMetrics) HitRate() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0
	}
	return float64(m.Hits) / float64(total)
}

// AvgDuration returns the mean inner call latency.
func (m CategoryMetrics) AvgDuration() time.Duration {
	if m.InnerCalls == 0 {
		return 0
	}
	return m.TotalDuration / time.Duration(m.InnerCalls)
}

// Snapshot is a point-in-time copy of a collector's summary.
type Snapshot struct {
	Categories   map[string]CategoryMetrics `json:"categories"`
	NegativeHits int64                      `json:"negative_hits"`
	DedupJoins   int64                      `json:"dedup_joins"`
	Since        time.Time                  `json:"since"`
}

// BackendStats is the subset of backend counters exported as Prometheus metrics.
type BackendStats struct {
	Requests        int64
	Errors          int64
	NotFound        int64
	Throttles       int64
	Retries         int64
	Rejected        int64
	BytesDownloaded int64
}

// NewCollector creates a new metrics collector. A nil config enables collection with
// defaults; a disabled config yields a collector whose Record methods do nothing.
func NewCollector(config *Config, logger *slog.Logger) (*Collector, error) {
	if config == nil {
		config = &Config{
			Enabled:   true,
			Port:      9090,
			Path:      "/metrics",
			Namespace: "cachingfs",
			Labels:    make(map[string]string),
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Collector{
		config:     config,
		logger:     logger.With("component", "metrics"),
		categories: make(map[string]*CategoryMetrics),
		lastReset:  time.Now(),
	}
	if !config.Enabled {
		return c, nil
	}

	c.registry = prometheus.NewRegistry()
	c.initMetrics()
	if err := c.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return c, nil
}

// Registry returns the underlying registry, nil when disabled.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordCacheHit records a lookup answered from the cache.
func (c *Collector) RecordCacheHit(category string) {
	if !c.config.Enabled {
		return
	}
	c.cacheRequests.WithLabelValues(category, "hit").Inc()
	c.update(category, func(m *CategoryMetrics) { m.Hits++ })
}

// RecordCacheMiss records a lookup that had to go to the inner file system.
func (c *Collector) RecordCacheMiss(category string) {
	if !c.config.Enabled {
		return
	}
	c.cacheRequests.WithLabelValues(category, "miss").Inc()
	c.update(category, func(m *CategoryMetrics) { m.Misses++ })
}

// RecordNegativeHit records a path answered as absent from a negative entry.
func (c *Collector) RecordNegativeHit() {
	if !c.config.Enabled {
		return
	}
	c.negativeHits.Inc()
	c.mu.Lock()
	c.negativeSeen++
	c.mu.Unlock()
}

// RecordInnerCall records one call to the inner file system.
func (c *Collector) RecordInnerCall(category string, duration time.Duration, err error) {
	if !c.config.Enabled {
		return
	}

	status := "success"
	if err != nil {
		status = classifyError(err)
	}
	c.innerCalls.WithLabelValues(category, status).Inc()
	c.innerDuration.WithLabelValues(category).Observe(duration.Seconds())

	c.update(category, func(m *CategoryMetrics) {
		m.InnerCalls++
		m.TotalDuration += duration
		m.MaxDuration = max(m.MaxDuration, duration)
		if err != nil {
			m.InnerErrors++
		}
	})
}

// RecordDedupJoin records a stat that joined an in-flight request.
func (c *Collector) RecordDedupJoin() {
	if !c.config.Enabled {
		return
	}
	c.dedupJoins.Inc()
	c.mu.Lock()
	c.dedupSeen++
	c.mu.Unlock()
}

// RecordFailOnMiss records a miss rejected because the inner file system may not be used.
func (c *Collector) RecordFailOnMiss(category string) {
	if !c.config.Enabled {
		return
	}
	c.failOnMiss.WithLabelValues(category).Inc()
	c.update(category, func(m *CategoryMetrics) { m.FailOnMiss++ })
}

// RegisterBackend exports a backend's counters under the given backend label.
func (c *Collector) RegisterBackend(name string, stats func() BackendStats) error {
	if !c.config.Enabled {
		return nil
	}

	labels := prometheus.Labels{"backend": name}
	for field, get := range map[string]func(BackendStats) int64{
		"requests":         func(s BackendStats) int64 { return s.Requests },
		"errors":           func(s BackendStats) int64 { return s.Errors },
		"not_found":        func(s BackendStats) int64 { return s.NotFound },
		"throttles":        func(s BackendStats) int64 { return s.Throttles },
		"retries":          func(s BackendStats) int64 { return s.Retries },
		"rejected":         func(s BackendStats) int64 { return s.Rejected },
		"downloaded_bytes": func(s BackendStats) int64 { return s.BytesDownloaded },
	} {
		counter := prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   "backend",
			Name:        field + "_total",
			Help:        "Backend " + field + " since start",
			ConstLabels: labels,
		}, func() float64 { return float64(get(stats())) })
		if err := c.registry.Register(counter); err != nil {
			return fmt.Errorf("failed to register backend metric %s: %w", field, err)
		}
	}
	return nil
}

func (c *Collector) update(category string, fn func(*CategoryMetrics)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.categories[category]
	if !ok {
		m = &CategoryMetrics{}
		c.categories[category] = m
	}
	fn(m)
}

// GetSnapshot returns the current summary.
func (c *Collector) GetSnapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Categories:   make(map[string]CategoryMetrics, len(c.categories)),
		NegativeHits: c.negativeSeen,
		DedupJoins:   c.dedupSeen,
		Since:        c.lastReset,
	}
	for k, v := range c.categories {
		s.Categories[k] = *v
	}
	return s
}

// ResetMetrics resets the summary. Prometheus counters are monotonic and keep counting.
func (c *Collector) ResetMetrics() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.categories = make(map[string]*CategoryMetrics)
	c.negativeSeen = 0
	c.dedupSeen = 0
	c.lastReset = time.Now()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if !c.config.Enabled {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Start serves metrics on the configured port until Stop is called.
func (c *Collector) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, c.Handler())
	mux.HandleFunc("/health", c.healthHandler)
	mux.HandleFunc("/debug/cache", c.debugCacheHandler)

	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.logger.Error("metrics server stopped", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		_ = c.Stop(context.WithoutCancel(ctx))
	}()

	return nil
}

// Stop shuts the metrics server down.
func (c *Collector) Stop(ctx context.Context) error {
	if c.server != nil {
		return c.server.Shutdown(ctx)
	}
	return nil
}

func (c *Collector) initMetrics() {
	c.cacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "cache_requests_total",
			Help:        "Cache lookups by category and result",
			ConstLabels: c.config.Labels,
		},
		[]string{"category", "result"},
	)

	c.negativeHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "negative_hits_total",
			Help:        "Paths answered as absent from negative cache entries",
			ConstLabels: c.config.Labels,
		},
	)

	c.innerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "inner_calls_total",
			Help:        "Calls to the inner file system",
			ConstLabels: c.config.Labels,
		},
		[]string{"category", "status"},
	)

	c.innerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "inner_call_duration_seconds",
			Help:        "Latency of calls to the inner file system",
			Buckets:     prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
			ConstLabels: c.config.Labels,
		},
		[]string{"category"},
	)

	c.dedupJoins = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "stat_dedup_joins_total",
			Help:        "Stats that joined an in-flight request for the same directory",
			ConstLabels: c.config.Labels,
		},
	)

	c.failOnMiss = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "fail_on_miss_total",
			Help:        "Misses rejected in fail-on-miss mode",
			ConstLabels: c.config.Labels,
		},
		[]string{"category"},
	)
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.cacheRequests,
		c.negativeHits,
		c.innerCalls,
		c.innerDuration,
		c.dedupJoins,
		c.failOnMiss,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}

	return nil
}

func classifyError(err error) string {
	switch {
	case errors.IsNotFound(err):
		return "not_found"
	case errors.IsThrottled(err):
		return "throttled"
	case stderr.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

// HTTP handlers

func (c *Collector) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy","service":"cachingfs-metrics"}`))
}

func (c *Collector) debugCacheHandler(w http.ResponseWriter, r *http.Request) {
	s := c.GetSnapshot()

	w.Header().Set("Content-Type", "text/plain")
	writef := func(format string, args ...any) { _, _ = fmt.Fprintf(w, format, args...) }

	writef("Since: %v\n", s.Since.Format(time.RFC3339))
	writef("Negative hits: %d\n", s.NegativeHits)
	writef("Dedup joins: %d\n\n", s.DedupJoins)
	WriteSummary(w, s)
}
