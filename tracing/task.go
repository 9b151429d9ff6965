// Package tracing measures how long records stay in channel buffers.
//
// A record entering a buffer starts a task and leaving it ends the task.
// Tracers receive both ends and decide what to keep.
package tracing

import "time"

// Kinds of task produced by the buffer tracer.
const (
	KindBufferResidence = "buffer_residence"
)

// A Task is one record's stay in one place.
type Task struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	What      string    `json:"what"`
	Where     string    `json:"where"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Detail    any       `json:"-"`
}

// Duration returns how long the task lasted. Unfinished tasks last zero.
func (t Task) Duration() time.Duration {
	if t.EndTime.IsZero() || t.EndTime.Before(t.StartTime) {
		return 0
	}

	return t.EndTime.Sub(t.StartTime)
}

// TaskFilter is a function that can filter interesting tasks. If this function
// returns true, the task is considered useful.
type TaskFilter func(t Task) bool

// A Tracer can collect task traces. Tracers are called from the goroutines
// that move records and must be safe for concurrent use.
type Tracer interface {
	StartTask(task Task)
	EndTask(task Task)
}

// Clock tells the current time.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time {
	return time.Now()
}

// WallClock returns a clock reading the system time.
func WallClock() Clock {
	return wallClock{}
}
