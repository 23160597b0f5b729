// Package metrics exposes Prometheus instrumentation for the settings
// caching subsystem.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheOperations counts Redis operations by type (get, mget, set,
	// delete, delete_pattern, incr).
	CacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modetrader_cache_operations_total",
		Help: "Total Redis cache operations by type",
	}, []string{"operation"})

	// CacheHits counts settings cache hits.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modetrader_cache_hits_total",
		Help: "Total settings cache hits",
	})

	// CacheMisses counts settings cache misses.
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modetrader_cache_misses_total",
		Help: "Total settings cache misses",
	})

	// CacheFailures counts Redis I/O failures (not misses).
	CacheFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modetrader_cache_failures_total",
		Help: "Total Redis I/O failures counted against the circuit breaker",
	})

	// BreakerState is 0 while the Redis circuit breaker is closed and 1
	// while it is open.
	BreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "modetrader_cache_breaker_open",
		Help: "Redis circuit breaker state (0 = closed, 1 = open)",
	})

	// SettingsReads counts settings reads by outcome (hit, populated,
	// unavailable, not_found).
	SettingsReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modetrader_settings_reads_total",
		Help: "Settings reads by outcome",
	}, []string{"outcome"})

	// SettingsWrites counts write-through updates by outcome (ok,
	// store_error, cache_warn).
	SettingsWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modetrader_settings_writes_total",
		Help: "Write-through settings updates by outcome",
	}, []string{"outcome"})

	// AdminDefaultsReloads counts full reloads of the admin defaults
	// mirror, labeled by what triggered them (startup, hash_changed,
	// cache_miss, invalidate).
	AdminDefaultsReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modetrader_admin_defaults_reloads_total",
		Help: "Full reloads of the admin defaults cache by trigger",
	}, []string{"trigger"})
)

// Read outcome label values (bounded set).
const (
	ReadHit         = "hit"
	ReadPopulated   = "populated"
	ReadUnavailable = "unavailable"
	ReadNotFound    = "not_found"
)

// Write outcome label values (bounded set).
const (
	WriteOK         = "ok"
	WriteStoreError = "store_error"
	WriteCacheWarn  = "cache_warn"
)

// RecordCacheOperation increments the operation counter for one Redis call.
func RecordCacheOperation(op string) {
	CacheOperations.WithLabelValues(op).Inc()
}

// SetBreakerOpen records the breaker state transition on the gauge.
func SetBreakerOpen(open bool) {
	if open {
		BreakerState.Set(1)
	} else {
		BreakerState.Set(0)
	}
}
