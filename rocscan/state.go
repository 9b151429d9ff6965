package rocscan

import (
	"github.com/JeffersonLab/SRO-RTDP-sub001/evio"
)

// Outcome classifies one event.
type Outcome int

// Outcomes of a step.
const (
	// OutcomeSkipped marks a control or small event.
	OutcomeSkipped Outcome = iota

	// OutcomeRejected marks an event whose first child is not a built
	// trigger bank.
	OutcomeRejected

	// OutcomeAccepted marks a physics event whose trigger bank was read.
	OutcomeAccepted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeRejected:
		return "rejected"
	default:
		return "accepted"
	}
}

// StepResult describes what one step saw.
type StepResult struct {
	Outcome Outcome

	// EventIDs are the non-noise ids listed by the event's trigger bank.
	EventIDs []int

	// NewIDs are the ids the event added to the set.
	NewIDs []int
}

// State is the running accumulation of a scan. The zero value is an empty
// scan.
type State struct {
	IDs IDSet

	// SinceLastNew counts consecutive events that added no id.
	SinceLastNew int

	// Events counts the events stepped over.
	Events int

	// Converged is set once SinceLastNew reaches the convergence window.
	Converged bool

	// Limited is set when the event limit stops the scan before it
	// converges.
	Limited bool
}

// Done tells whether the scan should stop.
func (s State) Done(cfg Config) bool {
	if s.Converged {
		return true
	}

	return cfg.MaxEvents > 0 && s.Events >= cfg.MaxEvents
}

// Step classifies one event and returns the updated state. The returned state
// shares its id set with s, which only ever grows.
func Step(cfg Config, s State, event evio.Tree) (State, StepResult, error) {
	if s.IDs == nil {
		s.IDs = NewIDSet()
	}

	result, err := classify(cfg, event)
	if err != nil {
		return s, result, err
	}

	for _, id := range result.EventIDs {
		if s.IDs.Add(id) {
			result.NewIDs = append(result.NewIDs, id)
		}
	}

	s.Events++
	if len(result.NewIDs) > 0 {
		s.SinceLastNew = 0
	} else {
		s.SinceLastNew++
	}

	if cfg.ConvergenceWindow > 0 && s.SinceLastNew >= cfg.ConvergenceWindow {
		s.Converged = true
	}

	if !s.Converged && cfg.MaxEvents > 0 && s.Events >= cfg.MaxEvents {
		s.Limited = true
	}

	return s, result, nil
}

func classify(cfg Config, event evio.Tree) (StepResult, error) {
	header := event.Header()
	if header.TotalBytes < cfg.MinEventBytes ||
		event.ChildCount() < cfg.MinChildren {
		return StepResult{Outcome: OutcomeSkipped}, nil
	}

	trigger, err := event.ChildAt(0)
	if err != nil {
		return StepResult{}, err
	}

	th := trigger.Header()
	if th.Kind() != evio.KindSegment ||
		th.Tag < cfg.TriggerTagMin || th.Tag > cfg.TriggerTagMax {
		return StepResult{Outcome: OutcomeRejected}, nil
	}

	numSegments := trigger.ChildCount()
	if numSegments < cfg.CommonSegments {
		return StepResult{Outcome: OutcomeRejected}, nil
	}

	result := StepResult{Outcome: OutcomeAccepted}
	for i := cfg.CommonSegments; i < numSegments; i++ {
		segment, err := trigger.ChildAt(i)
		if err != nil {
			return StepResult{}, err
		}

		id := int(segment.Header().Tag)
		if id > cfg.NoiseCeiling {
			continue
		}

		result.EventIDs = append(result.EventIDs, id)
	}

	return result, nil
}
