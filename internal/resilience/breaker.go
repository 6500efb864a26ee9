package resilience

import (
	"sync"
	"time"
)

// CircuitState is the per-backend failure-isolation state.
type CircuitState int

const (
	StateClosed   CircuitState = iota // healthy, calls flow
	StateOpen                         // failing, calls rejected
	StateHalfOpen                     // one probe allowed through
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// breakerCore is the pure state of the machine. All transitions go
// through the step functions below, which take time as an argument so
// they can be tested without a clock.
type breakerCore struct {
	State         CircuitState
	Failures      int
	OpenedAt      time.Time
	ProbeInFlight bool
}

// stepAllow decides whether a call may proceed, transitioning
// OPEN -> HALF_OPEN when the open timeout has elapsed. In HALF_OPEN
// exactly one probe is in flight; everything else is rejected.
func stepAllow(c breakerCore, now time.Time, openTimeout time.Duration) (breakerCore, bool) {
	switch c.State {
	case StateClosed:
		return c, true
	case StateOpen:
		if now.Sub(c.OpenedAt) >= openTimeout {
			c.State = StateHalfOpen
			c.ProbeInFlight = true
			return c, true
		}
		return c, false
	case StateHalfOpen:
		if c.ProbeInFlight {
			return c, false
		}
		c.ProbeInFlight = true
		return c, true
	}
	return c, false
}

// stepSuccess records a successful call. A successful probe closes the
// circuit; success in CLOSED resets the consecutive-failure counter.
func stepSuccess(c breakerCore) breakerCore {
	switch c.State {
	case StateHalfOpen:
		c.State = StateClosed
		c.Failures = 0
		c.ProbeInFlight = false
	case StateClosed:
		c.Failures = 0
	}
	return c
}

// stepFailure records a failed call. A failed probe reopens the
// circuit and restarts the timer; in CLOSED the circuit opens once the
// consecutive-failure counter reaches the threshold.
func stepFailure(c breakerCore, now time.Time, threshold int) breakerCore {
	switch c.State {
	case StateHalfOpen:
		c.State = StateOpen
		c.OpenedAt = now
		c.ProbeInFlight = false
	case StateClosed:
		c.Failures++
		if c.Failures >= threshold {
			c.State = StateOpen
			c.OpenedAt = now
		}
	}
	return c
}

// Breaker wraps the pure machine with a lock and transition callback.
type Breaker struct {
	mu sync.Mutex

	core             breakerCore
	failureThreshold int
	openTimeout      time.Duration
	onTransition     func(from, to CircuitState)
}

func NewBreaker(failureThreshold int, openTimeout time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if openTimeout <= 0 {
		openTimeout = 60 * time.Second
	}
	return &Breaker{
		core:             breakerCore{State: StateClosed},
		failureThreshold: failureThreshold,
		openTimeout:      openTimeout,
	}
}

// OnTransition registers a callback fired whenever the state changes.
// Must be set before the breaker is shared across goroutines.
func (b *Breaker) OnTransition(fn func(from, to CircuitState)) {
	b.onTransition = fn
}

func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.core.State
}

// Allow returns ErrCircuitOpen if the call must be rejected. An allowed
// call in HALF_OPEN is the single recovery probe; its outcome must be
// reported via RecordSuccess or RecordFailure.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	from := b.core.State
	next, ok := stepAllow(b.core, time.Now(), b.openTimeout)
	b.apply(from, next)
	if !ok {
		return ErrCircuitOpen
	}
	return nil
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	from := b.core.State
	b.apply(from, stepSuccess(b.core))
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	from := b.core.State
	b.apply(from, stepFailure(b.core, time.Now(), b.failureThreshold))
}

// apply commits the next core and fires the transition callback.
// Must be called with mu held.
func (b *Breaker) apply(from CircuitState, next breakerCore) {
	b.core = next
	if next.State != from && b.onTransition != nil {
		b.onTransition(from, next.State)
	}
}
