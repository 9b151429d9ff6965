package channel

import (
	"log"

	"github.com/JeffersonLab/SRO-RTDP-sub001/naming"
)

// Builder can build channels.
type Builder struct {
	id             int
	streamIndex    int
	input          bool
	inputCapacity  int
	outputCount    int
	outputCapacity int
}

// MakeBuilder creates a builder for an input channel with one outbound
// buffer and default capacities.
func MakeBuilder() Builder {
	return Builder{
		input:          true,
		inputCapacity:  64,
		outputCount:    1,
		outputCapacity: 64,
	}
}

// WithID sets the identity of the source.
func (b Builder) WithID(id int) Builder {
	b.id = id
	return b
}

// WithStreamIndex sets the index the channel was admitted with.
func (b Builder) WithStreamIndex(i int) Builder {
	b.streamIndex = i
	return b
}

// WithInputCapacity sets the capacity of the inbound buffer.
func (b Builder) WithInputCapacity(n int) Builder {
	b.inputCapacity = n
	return b
}

// WithOutputBuffers sets the number and the capacity of outbound buffers.
func (b Builder) WithOutputBuffers(count, capacity int) Builder {
	b.outputCount = count
	b.outputCapacity = capacity

	return b
}

// AsOutput makes the channel an output channel.
func (b Builder) AsOutput() Builder {
	b.input = false
	return b
}

// Build creates a channel with the given name.
func (b Builder) Build(name string) Channel {
	if b.outputCount < 0 {
		log.Panicf("channel %s cannot have %d output buffers", name, b.outputCount)
	}

	c := &channelImpl{
		NamedBase:   naming.MakeNamedBase(name),
		id:          b.id,
		streamIndex: b.streamIndex,
		input:       b.input,
		inbound:     NewBuffer(naming.Build(name, "InBuf"), b.inputCapacity),
	}

	for i := 0; i < b.outputCount; i++ {
		c.outbound = append(c.outbound,
			NewBuffer(naming.BuildWithIndex(name, "OutBuf", i), b.outputCapacity))
	}

	return c
}
