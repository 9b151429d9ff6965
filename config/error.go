package config

import "fmt"

// Error is a fatal configuration problem.
type Error struct {
	Option string
	Value  interface{}
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s %v %s", e.Option, e.Value, e.Reason)
}
