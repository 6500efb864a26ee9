package resilience

import (
	"context"
	"fmt"
	"time"
)

// Pool is a fixed-size set of connection slots. Acquire suspends the
// caller until a slot frees up, the wait timeout elapses, or the
// context is cancelled.
type Pool struct {
	slots       chan struct{}
	waitTimeout time.Duration
}

func NewPool(size int, waitTimeout time.Duration) *Pool {
	if size <= 0 {
		size = 1
	}
	if waitTimeout <= 0 {
		waitTimeout = 60 * time.Second
	}
	slots := make(chan struct{}, size)
	for i := 0; i < size; i++ {
		slots <- struct{}{}
	}
	return &Pool{slots: slots, waitTimeout: waitTimeout}
}

func (p *Pool) Acquire(ctx context.Context) error {
	select {
	case <-p.slots:
		return nil
	default:
	}
	timer := time.NewTimer(p.waitTimeout)
	defer timer.Stop()
	select {
	case <-p.slots:
		return nil
	case <-timer.C:
		return fmt.Errorf("no slot free after %s: %w", p.waitTimeout, ErrPoolExhausted)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) Release() {
	select {
	case p.slots <- struct{}{}:
	default:
		// Release without a matching Acquire; dropping keeps capacity honest.
	}
}

// Free reports the number of currently free slots.
func (p *Pool) Free() int {
	return len(p.slots)
}
