/*
Package metrics exports caching file system activity to Prometheus.

Collector implements filesystem.Recorder, so it can be handed straight to
filesystem.WithMetrics. Every event updates both a Prometheus series and a small
in-process summary that the CLI prints after a command:

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Port:      9090,
		Path:      "/metrics",
		Namespace: "cachingfs",
	}, logger)
	if err != nil {
		return err
	}
	cfs, err := filesystem.NewCachingFileSystem(inner, factory, filesystem.WithMetrics(collector))

# Exported Series

	<ns>_cache_requests_total{category, result}       hit or miss per stat, read, walk
	<ns>_negative_hits_total                          paths answered from negative entries
	<ns>_inner_calls_total{category, status}          calls that reached the inner file system
	<ns>_inner_call_duration_seconds{category}        their latency
	<ns>_stat_dedup_joins_total                       stats that joined an in-flight request
	<ns>_fail_on_miss_total{category}                 misses rejected in fail-on-miss mode
	<ns>_backend_*_total{backend}                     counters from RegisterBackend

Start serves the registry over HTTP together with /health and a plain-text
/debug/cache summary.
*/
package metrics
