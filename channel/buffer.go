package channel

import (
	"context"
	"log"
	"sync"

	"github.com/JeffersonLab/SRO-RTDP-sub001/hooking"
	"github.com/JeffersonLab/SRO-RTDP-sub001/naming"
)

// HookPosBufPush marks when a record is pushed into the buffer.
var HookPosBufPush = &hooking.HookPos{Name: "Buffer Push"}

// HookPosBufPop marks when a record is popped from the buffer.
var HookPosBufPop = &hooking.HookPos{Name: "Buffer Pop"}

// A Buffer is a fixed-capacity FIFO handing records from one producer
// goroutine to one consumer goroutine. A full buffer blocks the producer;
// records are never overwritten.
type Buffer interface {
	naming.Named
	hooking.Hookable

	// Push blocks until there is room for the record, the context is done,
	// or the buffer is closed.
	Push(ctx context.Context, r *Record) error

	// TryPush pushes the record only if there is room.
	TryPush(r *Record) bool

	// Pop blocks until a record is available. After Close, the records
	// already in the buffer are still returned before ErrClosed.
	Pop(ctx context.Context) (*Record, error)

	// TryPop pops a record only if one is available.
	TryPop() (*Record, bool)

	Capacity() int
	Size() int

	// FillLevel returns how full the buffer is, in percent.
	FillLevel() int

	// Close stops accepting records and wakes up blocked callers.
	Close()
	Closed() bool
}

// NewBuffer creates a buffer holding up to capacity records.
func NewBuffer(name string, capacity int) Buffer {
	naming.MustBeValid(name)

	if capacity <= 0 {
		log.Panicf("buffer %s must have a positive capacity", name)
	}

	return &bufferImpl{
		name:     name,
		elements: make(chan *Record, capacity),
		done:     make(chan struct{}),
	}
}

type bufferImpl struct {
	hooking.HookableBase

	name      string
	elements  chan *Record
	done      chan struct{}
	closeOnce sync.Once
}

// Name returns the name of the buffer.
func (b *bufferImpl) Name() string {
	return b.name
}

func (b *bufferImpl) Push(ctx context.Context, r *Record) error {
	if b.Closed() {
		return ErrClosed
	}

	select {
	case b.elements <- r:
		b.invoke(HookPosBufPush, r)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return ErrClosed
	}
}

func (b *bufferImpl) TryPush(r *Record) bool {
	if b.Closed() {
		return false
	}

	select {
	case b.elements <- r:
		b.invoke(HookPosBufPush, r)
		return true
	default:
		return false
	}
}

func (b *bufferImpl) Pop(ctx context.Context) (*Record, error) {
	select {
	case r := <-b.elements:
		b.invoke(HookPosBufPop, r)
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.done:
		if r, ok := b.TryPop(); ok {
			return r, nil
		}

		return nil, ErrClosed
	}
}

func (b *bufferImpl) TryPop() (*Record, bool) {
	select {
	case r := <-b.elements:
		b.invoke(HookPosBufPop, r)
		return r, true
	default:
		return nil, false
	}
}

func (b *bufferImpl) invoke(pos *hooking.HookPos, r *Record) {
	if b.NumHooks() == 0 {
		return
	}

	b.InvokeHook(hooking.HookCtx{
		Domain: b,
		Pos:    pos,
		Item:   r,
	})
}

func (b *bufferImpl) Capacity() int {
	return cap(b.elements)
}

func (b *bufferImpl) Size() int {
	return len(b.elements)
}

func (b *bufferImpl) FillLevel() int {
	return len(b.elements) * 100 / cap(b.elements)
}

func (b *bufferImpl) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
	})
}

func (b *bufferImpl) Closed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}
