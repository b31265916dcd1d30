// Package breaker implements the circuit breaker that gates execution
// attempts against a fallible downstream call (spec §4.5). Grounded on
// the consecutive-failure counter in original_source's ExecutionEngine,
// generalized into its own CLOSED/OPEN/HALF_OPEN state machine with a
// proper single-probe half-open admission.
package breaker

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// State is one of the three breaker states.
type State string

const (
	Closed   State = "CLOSED"
	Open     State = "OPEN"
	HalfOpen State = "HALF_OPEN"
)

// Breaker tracks consecutive failures and gates execution attempts.
type Breaker struct {
	mu sync.Mutex

	failureThreshold int
	openDuration     time.Duration

	state          State
	consecutiveErr int
	openUntil      time.Time
	probeInFlight  bool // true between HALF_OPEN admission and its outcome
}

// New builds a breaker with the given threshold and open duration.
// Defaults match spec §4.5: failureThreshold=5, openDuration=60s.
func New(failureThreshold int, openDuration time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if openDuration <= 0 {
		openDuration = 60 * time.Second
	}
	return &Breaker{
		failureThreshold: failureThreshold,
		openDuration:     openDuration,
		state:            Closed,
	}
}

// Allow reports whether an attempt may proceed. Exactly one probe is
// admitted per OPEN->HALF_OPEN cycle; every other attempt during OPEN is
// rejected.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		// A probe is already in flight; reject concurrent attempts.
		return !b.probeInFlight
	case Open:
		if time.Now().Before(b.openUntil) {
			return false
		}
		b.transition(HalfOpen)
		b.probeInFlight = true
		return true
	}
	return false
}

// Record reports the outcome of an attempt that Allow admitted.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		b.probeInFlight = false
		if success {
			b.transition(Closed)
			b.consecutiveErr = 0
		} else {
			b.openUntil = time.Now().Add(b.openDuration)
			b.transition(Open)
		}
	case Closed:
		if success {
			b.consecutiveErr = 0
			return
		}
		b.consecutiveErr++
		if b.consecutiveErr >= b.failureThreshold {
			b.openUntil = time.Now().Add(b.openDuration)
			b.transition(Open)
		}
	case Open:
		// Outcome reported for an attempt that should have been
		// rejected by Allow; ignore.
	}
}

// State returns the current breaker state, for metrics.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	log.Info().Str("from", string(b.state)).Str("to", string(to)).Msg("circuit breaker transition")
	b.state = to
}
