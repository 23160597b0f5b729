package cache

import (
	"sync"
	"time"
)

// BreakerState is the health state of the Redis backend as seen by the
// client. Two states only: the backend is either usable or it is not.
type BreakerState int

const (
	// StateClosed means the backend is healthy and operations flow through.
	StateClosed BreakerState = iota
	// StateOpen means the backend is considered down; operations fail fast
	// with ErrCacheUnavailable until a recovery probe succeeds.
	StateOpen
)

// String implements fmt.Stringer.
func (s BreakerState) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

// breakerEvent is an observation fed into the state machine.
type breakerEvent int

const (
	eventFailure breakerEvent = iota
	eventSuccess
)

// nextState is the pure transition function of the breaker. Given the
// current state, the consecutive-failure count and an event, it returns the
// next state and count. Misses are never fed in as events.
func nextState(state BreakerState, failures int, ev breakerEvent, threshold int) (BreakerState, int) {
	switch ev {
	case eventSuccess:
		return StateClosed, 0
	case eventFailure:
		failures++
		if failures >= threshold {
			return StateOpen, failures
		}
		return state, failures
	}
	return state, failures
}

// breaker tracks backend health. It is the only shared mutable state in the
// subsystem; readers take the read lock, transitions take the write lock.
type breaker struct {
	mu            sync.RWMutex
	state         BreakerState
	failures      int
	threshold     int
	probeInterval time.Duration
	lastProbe     time.Time
}

func newBreaker(threshold int, probeInterval time.Duration) *breaker {
	return &breaker{
		state:         StateOpen,
		threshold:     threshold,
		probeInterval: probeInterval,
		lastProbe:     time.Now(),
	}
}

// healthy reports whether the breaker is closed.
func (b *breaker) healthy() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state == StateClosed
}

// recordFailure feeds a genuine I/O failure into the state machine.
// Returns true when this failure opened the breaker.
func (b *breaker) recordFailure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.state
	b.state, b.failures = nextState(b.state, b.failures, eventFailure, b.threshold)
	return prev == StateClosed && b.state == StateOpen
}

// recordSuccess closes the breaker and resets the failure count.
// Returns true when this success closed a previously open breaker.
func (b *breaker) recordSuccess() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.state
	b.state, b.failures = nextState(b.state, b.failures, eventSuccess, b.threshold)
	return prev == StateOpen
}

// shouldProbe reports whether a caller observing the open breaker should
// fire a background recovery probe, and restarts the probe interval when it
// does. Concurrent callers may still race past the check and fire
// overlapping probes; they are cheap and idempotent, so no deduplication.
func (b *breaker) shouldProbe() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen || time.Since(b.lastProbe) < b.probeInterval {
		return false
	}
	b.lastProbe = time.Now()
	return true
}

// snapshot returns the current state and failure count.
func (b *breaker) snapshot() (BreakerState, int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state, b.failures
}
