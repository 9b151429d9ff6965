package rocscan

import (
	"iter"

	"github.com/JeffersonLab/SRO-RTDP-sub001/evio"
	"github.com/JeffersonLab/SRO-RTDP-sub001/hooking"
)

var (
	// HookPosEventSkipped marks an event too small or with too few children.
	// The hook item is the event.
	HookPosEventSkipped = &hooking.HookPos{Name: "Scan Event Skipped"}

	// HookPosTriggerRejected marks an event whose first child is not a built
	// trigger bank. The hook item is the event.
	HookPosTriggerRejected = &hooking.HookPos{Name: "Scan Trigger Rejected"}

	// HookPosEventAccepted marks a physics event that was read. The item is
	// the event and the detail is the StepResult.
	HookPosEventAccepted = &hooking.HookPos{Name: "Scan Event Accepted"}

	// HookPosSourceFound marks a source id seen for the first time. The item
	// is the id and the detail is the state after the step.
	HookPosSourceFound = &hooking.HookPos{Name: "Scan Source Found"}

	// HookPosConverged marks the stop caused by the convergence window. The
	// item is the final state.
	HookPosConverged = &hooking.HookPos{Name: "Scan Converged"}
)

// Scanner walks a sequence of events and collects source ids.
type Scanner struct {
	hooking.HookableBase

	cfg Config
}

// NewScanner creates a scanner. It panics if the config is invalid.
func NewScanner(cfg Config) *Scanner {
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	return &Scanner{cfg: cfg}
}

// Config returns the thresholds the scanner uses.
func (s *Scanner) Config() Config {
	return s.cfg
}

// Scan returns the source ids found in the events. If the sequence yields an
// error, the ids collected so far are discarded and an empty set is returned
// with the error.
func (s *Scanner) Scan(events iter.Seq2[evio.Tree, error]) (IDSet, error) {
	state, err := s.Run(events)
	return state.IDs, err
}

// Run is like Scan but returns the whole final state.
func (s *Scanner) Run(events iter.Seq2[evio.Tree, error]) (State, error) {
	state := State{IDs: NewIDSet()}

	if state.Done(s.cfg) {
		return state, nil
	}

	for event, err := range events {
		if err != nil {
			return State{IDs: NewIDSet(), Events: state.Events}, err
		}

		var result StepResult

		state, result, err = Step(s.cfg, state, event)
		if err != nil {
			return State{IDs: NewIDSet(), Events: state.Events}, err
		}

		s.notify(event, state, result)

		if state.Converged {
			s.InvokeHook(hooking.HookCtx{
				Domain: s,
				Pos:    HookPosConverged,
				Item:   state,
			})
		}

		if state.Done(s.cfg) {
			break
		}
	}

	return state, nil
}

func (s *Scanner) notify(event evio.Tree, state State, result StepResult) {
	if s.NumHooks() == 0 {
		return
	}

	switch result.Outcome {
	case OutcomeSkipped:
		s.InvokeHook(hooking.HookCtx{
			Domain: s,
			Pos:    HookPosEventSkipped,
			Item:   event,
		})
	case OutcomeRejected:
		s.InvokeHook(hooking.HookCtx{
			Domain: s,
			Pos:    HookPosTriggerRejected,
			Item:   event,
		})
	default:
		s.InvokeHook(hooking.HookCtx{
			Domain: s,
			Pos:    HookPosEventAccepted,
			Item:   event,
			Detail: result,
		})
	}

	for _, id := range result.NewIDs {
		s.InvokeHook(hooking.HookCtx{
			Domain: s,
			Pos:    HookPosSourceFound,
			Item:   id,
			Detail: state,
		})
	}
}
