package cache

import "errors"

var (
	// ErrCacheUnavailable is returned when the circuit breaker is open.
	// Callers must surface this as a degraded-service condition; it is
	// never translated into a direct durable-store read.
	ErrCacheUnavailable = errors.New("cache unavailable: circuit breaker open")

	// ErrCacheMiss is returned by Client.Get when the key does not exist.
	// A miss is normal control flow and never counts against the breaker.
	ErrCacheMiss = errors.New("cache miss")

	// ErrSettingNotFound is returned when a setting exists in neither the
	// cache nor its backing source. Recoverable by writing a value.
	ErrSettingNotFound = errors.New("setting not found")
)
