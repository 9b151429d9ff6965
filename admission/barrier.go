// Package admission admits source connections and holds the consumer back
// until the expected number of sources is connected.
package admission

import (
	"context"
	"log"
	"sync"
)

// A Barrier is a one-shot gate that releases its waiters after a fixed
// number of count downs. It never resets.
type Barrier struct {
	lock      sync.Mutex
	remaining int
	released  chan struct{}
	shutdown  chan struct{}
}

// NewBarrier creates a barrier that releases after count count downs.
func NewBarrier(count int) *Barrier {
	if count < 1 {
		log.Panicf("barrier count must be positive, got %d", count)
	}

	return &Barrier{
		remaining: count,
		released:  make(chan struct{}),
		shutdown:  make(chan struct{}),
	}
}

// CountDown records one event. It returns true only for the call that
// releases the barrier. Calls after the release or after a shutdown have no
// effect.
func (b *Barrier) CountDown() bool {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.remaining == 0 || isClosed(b.shutdown) {
		return false
	}

	b.remaining--
	if b.remaining > 0 {
		return false
	}

	close(b.released)

	return true
}

// Remaining returns how many count downs are still needed.
func (b *Barrier) Remaining() int {
	b.lock.Lock()
	defer b.lock.Unlock()

	return b.remaining
}

// Released returns a channel that is closed when the barrier releases.
func (b *Barrier) Released() <-chan struct{} {
	return b.released
}

// Wait blocks until the barrier releases. It returns ErrShutdown if the
// barrier is shut down first, or the context error.
func (b *Barrier) Wait(ctx context.Context) error {
	if isClosed(b.released) {
		return nil
	}

	select {
	case <-b.released:
		return nil
	case <-b.shutdown:
		return ErrShutdown
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown wakes up all waiters with ErrShutdown. It does nothing once the
// barrier has released.
func (b *Barrier) Shutdown() {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.remaining == 0 || isClosed(b.shutdown) {
		return
	}

	close(b.shutdown)
}

func isClosed(c chan struct{}) bool {
	select {
	case <-c:
		return true
	default:
		return false
	}
}
