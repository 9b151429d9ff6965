// Package rocscan recovers the set of source (ROC) identifiers that
// contributed to a recorded run by walking its built events.
package rocscan

import (
	"errors"

	"github.com/JeffersonLab/SRO-RTDP-sub001/evio"
)

// Config holds the thresholds used to classify events and to decide when the
// scan has converged. The defaults are empirical values carried over from
// the tools used on real runs.
type Config struct {
	// Events smaller than this many bytes are treated as control or
	// otherwise uninteresting events.
	MinEventBytes int

	// Events with fewer children are skipped.
	MinChildren int

	// Inclusive window of trigger bank tags that mark a built physics event.
	TriggerTagMin uint16
	TriggerTagMax uint16

	// Number of leading trigger bank segments holding common data.
	CommonSegments int

	// Segment tags above this value are treated as noise.
	NoiseCeiling int

	// The scan stops after this many consecutive events without a new id.
	// Zero disables early stop.
	ConvergenceWindow int

	// The scan stops after this many events. Zero means no limit.
	MaxEvents int
}

// DefaultConfig returns the thresholds used on production runs.
func DefaultConfig() Config {
	return Config{
		MinEventBytes:     1000,
		MinChildren:       2,
		TriggerTagMin:     evio.TagBuiltTrigger,
		TriggerTagMax:     evio.TagBuiltTriggerTSRunRSD,
		CommonSegments:    2,
		NoiseCeiling:      1000,
		ConvergenceWindow: 1000,
	}
}

// Validate checks that the thresholds are consistent.
func (c Config) Validate() error {
	switch {
	case c.MinEventBytes < 0:
		return errors.New("rocscan: min event bytes must not be negative")
	case c.MinChildren < 1:
		return errors.New("rocscan: events must need at least one child")
	case c.TriggerTagMin > c.TriggerTagMax:
		return errors.New("rocscan: trigger tag window is empty")
	case c.CommonSegments < 0:
		return errors.New("rocscan: common segment count must not be negative")
	case c.NoiseCeiling < 0:
		return errors.New("rocscan: noise ceiling must not be negative")
	case c.ConvergenceWindow < 0:
		return errors.New("rocscan: convergence window must not be negative")
	case c.MaxEvents < 0:
		return errors.New("rocscan: max events must not be negative")
	}

	return nil
}
