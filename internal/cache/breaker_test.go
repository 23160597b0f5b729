package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestNextState_Transitions exercises the full transition table.
func TestNextState_Transitions(t *testing.T) {
	tests := []struct {
		name         string
		state        BreakerState
		failures     int
		ev           breakerEvent
		wantState    BreakerState
		wantFailures int
	}{
		{"closed_first_failure", StateClosed, 0, eventFailure, StateClosed, 1},
		{"closed_second_failure", StateClosed, 1, eventFailure, StateClosed, 2},
		{"closed_third_failure_opens", StateClosed, 2, eventFailure, StateOpen, 3},
		{"open_failure_stays_open", StateOpen, 3, eventFailure, StateOpen, 4},
		{"closed_success_resets", StateClosed, 2, eventSuccess, StateClosed, 0},
		{"open_success_closes", StateOpen, 5, eventSuccess, StateClosed, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, failures := nextState(tt.state, tt.failures, tt.ev, 3)
			assert.Equal(t, tt.wantState, state)
			assert.Equal(t, tt.wantFailures, failures)
		})
	}
}

// TestNextState_SuccessResetsProgress verifies that a success between
// failures resets the consecutive count, so intermittent failures never
// accumulate toward the threshold.
func TestNextState_SuccessResetsProgress(t *testing.T) {
	state, failures := StateClosed, 0

	state, failures = nextState(state, failures, eventFailure, 3)
	state, failures = nextState(state, failures, eventFailure, 3)
	state, failures = nextState(state, failures, eventSuccess, 3)
	state, failures = nextState(state, failures, eventFailure, 3)
	state, failures = nextState(state, failures, eventFailure, 3)

	assert.Equal(t, StateClosed, state)
	assert.Equal(t, 2, failures)
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b := newBreaker(3, time.Minute)
	b.recordSuccess()
	assert.True(t, b.healthy())

	assert.False(t, b.recordFailure())
	assert.False(t, b.recordFailure())
	assert.True(t, b.healthy(), "two failures must not open the breaker")

	opened := b.recordFailure()
	assert.True(t, opened, "third failure must report the open transition")
	assert.False(t, b.healthy())
}

func TestBreaker_SingleSuccessCloses(t *testing.T) {
	b := newBreaker(3, time.Minute)
	b.recordSuccess()
	for i := 0; i < 5; i++ {
		b.recordFailure()
	}
	assert.False(t, b.healthy())

	closed := b.recordSuccess()
	assert.True(t, closed, "success must report the close transition")
	assert.True(t, b.healthy())

	_, failures := b.snapshot()
	assert.Equal(t, 0, failures)
}

func TestBreaker_StartsOpen(t *testing.T) {
	b := newBreaker(3, time.Minute)
	assert.False(t, b.healthy(), "breaker must start open until first successful probe")
}

func TestBreaker_ShouldProbe(t *testing.T) {
	b := newBreaker(3, 50*time.Millisecond)
	b.recordSuccess()
	for i := 0; i < 3; i++ {
		b.recordFailure()
	}

	assert.False(t, b.shouldProbe(), "probe interval has not elapsed yet")

	time.Sleep(60 * time.Millisecond)
	assert.True(t, b.shouldProbe())
	assert.False(t, b.shouldProbe(), "firing a probe restarts the interval")

	time.Sleep(60 * time.Millisecond)
	assert.True(t, b.shouldProbe(), "a failed probe does not stop the next interval")

	b.recordSuccess()
	assert.False(t, b.shouldProbe(), "closed breaker never probes")
}

func TestBreakerState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
}
