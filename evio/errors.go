package evio

import "fmt"

// FormatError reports malformed or truncated event data.
type FormatError struct {
	// Offset is the byte offset in the stream of the block or node that
	// failed to decode.
	Offset int64
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("evio: format error at byte %d: %s", e.Offset, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// IndexError reports a child access outside of [0, Count).
type IndexError struct {
	Index int
	Count int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("evio: child index %d out of range [0,%d)",
		e.Index, e.Count)
}
