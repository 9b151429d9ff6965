// Package channel implements the per-source stream channels of the
// aggregator: bounded exchange buffers, the channels that own them, and the
// pump that moves framed records from a connection into a channel.
package channel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/JeffersonLab/SRO-RTDP-sub001/evio"
	"github.com/JeffersonLab/SRO-RTDP-sub001/naming"
)

// A Channel carries the records of one source. Its identity, stream index,
// direction and buffer layout are fixed when it is built.
type Channel interface {
	naming.Named

	// ID returns the identity of the source, e.g. its CODA id.
	ID() int

	// StreamIndex returns the index the channel was admitted with.
	StreamIndex() int

	IsInput() bool

	// RecordID returns the id of the last record delivered.
	RecordID() uint64

	// SetRecordID overrides the id of the last record delivered. Only the
	// producer of the channel may call it.
	SetRecordID(id uint64)

	InputBuffer() Buffer
	OutputBufferCount() int
	OutputBuffers() []Buffer

	// InputLevel returns the fill level of the inbound buffer in percent.
	InputLevel() int

	// OutputLevels returns the fill level of each outbound buffer in
	// percent.
	OutputLevels() []int

	// Deliver assigns the record its id and pushes it into the inbound
	// buffer.
	Deliver(ctx context.Context, r *Record) error

	// Receive pops the next inbound record. Record ids must not decrease;
	// a record that breaks the order closes the channel with a
	// *SequenceError.
	Receive(ctx context.Context) (*Record, error)

	// Close closes all the buffers of the channel.
	Close()

	// CloseWithError closes the channel and records why. A channel already
	// closed keeps its first outcome.
	CloseWithError(err error)

	// Err returns the error the channel was closed with, if any.
	Err() error
}

type channelImpl struct {
	naming.NamedBase

	id          int
	streamIndex int
	input       bool

	recordID atomic.Uint64

	inbound  Buffer
	outbound []Buffer

	received   bool
	lastRecord uint64

	errLock sync.Mutex
	err     error
}

func (c *channelImpl) ID() int {
	return c.id
}

func (c *channelImpl) StreamIndex() int {
	return c.streamIndex
}

func (c *channelImpl) IsInput() bool {
	return c.input
}

func (c *channelImpl) RecordID() uint64 {
	return c.recordID.Load()
}

func (c *channelImpl) SetRecordID(id uint64) {
	c.recordID.Store(id)
}

func (c *channelImpl) InputBuffer() Buffer {
	return c.inbound
}

func (c *channelImpl) OutputBufferCount() int {
	return len(c.outbound)
}

func (c *channelImpl) OutputBuffers() []Buffer {
	return c.outbound
}

func (c *channelImpl) InputLevel() int {
	return c.inbound.FillLevel()
}

func (c *channelImpl) OutputLevels() []int {
	levels := make([]int, len(c.outbound))
	for i, b := range c.outbound {
		levels[i] = b.FillLevel()
	}

	return levels
}

func (c *channelImpl) Deliver(ctx context.Context, r *Record) error {
	if n, ok := evio.PeekBlockNumber(r.Payload); ok {
		r.RecordID = uint64(n)
	} else {
		r.RecordID = c.RecordID() + 1
	}

	c.SetRecordID(r.RecordID)

	err := c.inbound.Push(ctx, r)
	if errors.Is(err, ErrClosed) {
		if cause := c.Err(); cause != nil {
			return cause
		}
	}

	return err
}

func (c *channelImpl) Receive(ctx context.Context) (*Record, error) {
	r, err := c.inbound.Pop(ctx)
	if err != nil {
		if errors.Is(err, ErrClosed) {
			if cause := c.Err(); cause != nil {
				return nil, cause
			}
		}

		return nil, err
	}

	if c.received && r.RecordID < c.lastRecord {
		seqErr := &SequenceError{
			Channel:  c.Name(),
			Previous: c.lastRecord,
			Got:      r.RecordID,
		}
		c.CloseWithError(seqErr)

		return nil, seqErr
	}

	c.received = true
	c.lastRecord = r.RecordID

	return r, nil
}

func (c *channelImpl) Close() {
	c.inbound.Close()
	for _, b := range c.outbound {
		b.Close()
	}
}

func (c *channelImpl) CloseWithError(err error) {
	c.errLock.Lock()
	if c.err == nil && !c.inbound.Closed() {
		c.err = err
	}
	c.errLock.Unlock()

	c.Close()
}

func (c *channelImpl) Err() error {
	c.errLock.Lock()
	defer c.errLock.Unlock()

	return c.err
}
