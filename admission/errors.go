package admission

import (
	"errors"
	"fmt"
	"time"
)

// ErrShutdown is returned to barrier waiters when admission is torn down
// before all sources are connected.
var ErrShutdown = errors.New("admission: shut down before all sources connected")

// ErrDatagramOverflow ends the stream of a datagram source that sends faster
// than its channel is consumed.
var ErrDatagramOverflow = errors.New("admission: datagram queue overflow")

// HandshakeError reports a connection refused during admission.
type HandshakeError struct {
	Remote string
	Reason string
	Err    error
}

func (e *HandshakeError) Error() string {
	msg := "admission: handshake from " + e.Remote + " refused: " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// LivenessError reports that not all sources connected in time.
type LivenessError struct {
	Expected int
	Admitted int
	Waited   time.Duration
}

func (e *LivenessError) Error() string {
	return fmt.Sprintf(
		"admission: only %d of %d sources connected after %s",
		e.Admitted, e.Expected, e.Waited)
}
