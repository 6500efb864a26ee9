package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/devesh1104/Quinine-Testing-Environment/internal/adapter"
	"github.com/devesh1104/Quinine-Testing-Environment/internal/config"
	"github.com/devesh1104/Quinine-Testing-Environment/internal/telemetry"
)

// Client makes every call to one backend safe under partial failure
// and under load: connection pool slot, token-bucket rate limit,
// circuit breaker, and a retry policy for transient failures. One
// Client per configured backend; different backends share nothing.
type Client struct {
	name        string
	ad          adapter.Adapter
	pool        *Pool
	limiter     *rate.Limiter
	rateWait    time.Duration
	breaker     *Breaker
	retry       RetryPolicy
	callTimeout time.Duration
	sink        telemetry.Sink
}

func NewClient(cfg config.BackendConfig, ad adapter.Adapter, sink telemetry.Sink) *Client {
	if sink == nil {
		sink = telemetry.Nop{}
	}
	c := &Client{
		name:        cfg.Name,
		ad:          ad,
		pool:        NewPool(cfg.PoolSize, time.Duration(cfg.PoolWaitSec)*time.Second),
		limiter:     rate.NewLimiter(rate.Limit(float64(cfg.RateLimitRPM)/60.0), cfg.RateLimitRPM),
		rateWait:    time.Duration(cfg.RateWaitSec) * time.Second,
		breaker:     NewBreaker(cfg.CircuitBreaker.FailureThreshold, time.Duration(cfg.CircuitBreaker.TimeoutSec)*time.Second),
		retry:       DefaultRetryPolicy(cfg.MaxRetries),
		callTimeout: time.Duration(cfg.TimeoutSec) * time.Second,
		sink:        sink,
	}
	c.breaker.OnTransition(func(from, to CircuitState) {
		slog.Info("circuit breaker transition", "backend", c.name, "from", from.String(), "to", to.String())
		c.sink.RecordBreakerTransition(context.Background(), c.name, from.String(), to.String())
	})
	return c
}

func (c *Client) Name() string { return c.name }

// BreakerState exposes the circuit state for health reporting.
func (c *Client) BreakerState() CircuitState { return c.breaker.State() }

// Generate runs the full guarded call path: pool slot, rate token,
// breaker check, adapter invocation with per-call timeout, retries
// with backoff and jitter for transient failures, one breaker outcome.
//
// ctx governs the waits before the adapter boundary; cancellation after
// the adapter call started lets the call finish or time out naturally.
func (c *Client) Generate(ctx context.Context, req adapter.Request) (adapter.GenerationResult, error) {
	start := time.Now()
	if err := c.pool.Acquire(ctx); err != nil {
		c.sink.RecordCall(ctx, c.name, "pool_exhausted", 0, time.Since(start))
		return adapter.GenerationResult{}, fmt.Errorf("backend %s: %w", c.name, err)
	}
	defer c.pool.Release()

	if err := c.waitForToken(ctx); err != nil {
		c.sink.RecordCall(ctx, c.name, "rate_limited", 0, time.Since(start))
		return adapter.GenerationResult{}, err
	}

	if err := c.breaker.Allow(); err != nil {
		c.sink.RecordCall(ctx, c.name, "circuit_open", 0, time.Since(start))
		return adapter.GenerationResult{}, fmt.Errorf("backend %s: %w", c.name, err)
	}

	res, attempts, err := c.invokeWithRetries(ctx, req)
	latency := time.Since(start)
	if err != nil {
		c.breaker.RecordFailure()
		c.sink.RecordCall(ctx, c.name, "failure", attempts, latency)
		return adapter.GenerationResult{}, err
	}
	c.breaker.RecordSuccess()
	c.sink.RecordCall(ctx, c.name, "success", attempts, latency)
	return res, nil
}

func (c *Client) invokeWithRetries(ctx context.Context, req adapter.Request) (adapter.GenerationResult, int, error) {
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, c.retry.Delay(attempt-1)); err != nil {
				return adapter.GenerationResult{}, attempts, lastErr
			}
		}
		attempts++
		res, err := c.invokeOnce(ctx, req)
		if err == nil {
			return res, attempts, nil
		}
		lastErr = err
		if !adapter.IsTransient(err) {
			break
		}
		slog.Debug("transient backend failure, retrying",
			"backend", c.name, "attempt", attempts, "error", err)
	}
	return adapter.GenerationResult{}, attempts, lastErr
}

// invokeOnce crosses the adapter boundary. The call context carries the
// per-call timeout but is detached from session cancellation, so an
// in-flight call completes or times out on its own.
func (c *Client) invokeOnce(ctx context.Context, req adapter.Request) (adapter.GenerationResult, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.callTimeout)
	defer cancel()
	res, err := c.ad.Generate(callCtx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, adapter.ErrTimeout) {
			err = fmt.Errorf("backend %s after %s: %w", c.name, c.callTimeout, adapter.ErrTimeout)
		}
		return adapter.GenerationResult{}, err
	}
	return res, nil
}

// GenerateStream routes a streaming request through the same guards.
// The pool slot is held until the returned channel is drained or ctx
// is cancelled; a caller that stops reading must cancel ctx or the
// slot stays occupied. There is no retry, streams are not restartable.
func (c *Client) GenerateStream(ctx context.Context, req adapter.Request) (<-chan string, error) {
	start := time.Now()
	if err := c.pool.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("backend %s: %w", c.name, err)
	}
	if err := c.waitForToken(ctx); err != nil {
		c.pool.Release()
		return nil, err
	}
	if err := c.breaker.Allow(); err != nil {
		c.pool.Release()
		return nil, fmt.Errorf("backend %s: %w", c.name, err)
	}

	stream, err := c.ad.GenerateStream(ctx, req)
	if err != nil {
		c.pool.Release()
		if errors.Is(err, adapter.ErrStreamingUnsupported) {
			// Not a backend failure; leave the breaker alone.
			return nil, err
		}
		c.breaker.RecordFailure()
		c.sink.RecordCall(ctx, c.name, "failure", 1, time.Since(start))
		return nil, err
	}
	c.breaker.RecordSuccess()

	out := make(chan string)
	go func() {
		defer close(out)
		defer c.pool.Release()
		defer func() {
			c.sink.RecordCall(ctx, c.name, "stream_complete", 1, time.Since(start))
		}()
		for chunk := range stream {
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// HealthCheck probes the adapter through the pool so a saturated
// backend reports unhealthy instead of piling on.
func (c *Client) HealthCheck(ctx context.Context) bool {
	if err := c.pool.Acquire(ctx); err != nil {
		return false
	}
	defer c.pool.Release()
	return c.ad.HealthCheck(ctx)
}

func (c *Client) Close() error {
	return c.ad.Close()
}

func (c *Client) waitForToken(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, c.rateWait)
	defer cancel()
	if err := c.limiter.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("backend %s after %s: %w", c.name, c.rateWait, ErrRateLimitWaitTimeout)
	}
	return nil
}
