package resilience

import "errors"

var (
	// ErrPoolExhausted means no connection slot freed up within the
	// pool-wait timeout.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrRateLimitWaitTimeout means no rate-limit token became
	// available within the configured wait timeout.
	ErrRateLimitWaitTimeout = errors.New("rate limit wait timed out")

	// ErrCircuitOpen means the target's circuit breaker is rejecting
	// calls without invoking the adapter.
	ErrCircuitOpen = errors.New("circuit breaker open")
)
