package channel

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a closed buffer or channel.
var ErrClosed = errors.New("channel: closed")

// SequenceError reports a record whose id is lower than the id of a record
// received before it on the same channel.
type SequenceError struct {
	Channel  string
	Previous uint64
	Got      uint64
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("channel %s: record id %d arrived after %d",
		e.Channel, e.Got, e.Previous)
}

// FrameError reports a malformed frame on a stream.
type FrameError struct {
	Reason string
	Err    error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return "channel: bad frame: " + e.Reason + ": " + e.Err.Error()
	}

	return "channel: bad frame: " + e.Reason
}

func (e *FrameError) Unwrap() error {
	return e.Err
}
