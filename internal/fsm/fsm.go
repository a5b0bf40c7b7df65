// Package fsm defines capture lifecycle phases and their legal transitions.
package fsm

import "fmt"

type Phase string

type Event string

const (
	PhaseIdle      Phase = "idle"
	PhaseStarting  Phase = "starting"
	PhaseListening Phase = "listening"
	PhaseRetrying  Phase = "retrying"
	PhaseStopped   Phase = "stopped"
	PhaseFailed    Phase = "failed"
)

const (
	// EventStart opens a session from a resting phase.
	EventStart Event = "start"
	// EventEngineStart is the engine confirming audio capture began.
	EventEngineStart Event = "engine_start"
	// EventRetry schedules a backoff reconnect after an engine network error.
	EventRetry Event = "retry"
	// EventRestart reopens a session after a retry timer or a settle delay.
	EventRestart Event = "restart"
	// EventEnd is a session ending without a reason to restart.
	EventEnd  Event = "end"
	EventStop Event = "stop"
	EventFail Event = "fail"
)

// Transition returns the phase reached by applying event to current.
//
// Stop and fail are accepted from every phase. A rejected transition returns
// current unchanged together with an error.
func Transition(current Phase, event Event) (Phase, error) {
	if !known(current) {
		return current, fmt.Errorf("unknown phase %q", current)
	}

	switch event {
	case EventStop:
		return PhaseStopped, nil
	case EventFail:
		return PhaseFailed, nil
	}

	switch current {
	case PhaseIdle, PhaseStopped, PhaseFailed:
		switch event {
		case EventStart:
			return PhaseStarting, nil
		}
	case PhaseStarting:
		switch event {
		case EventEngineStart:
			return PhaseListening, nil
		case EventRetry:
			return PhaseRetrying, nil
		case EventRestart:
			return PhaseStarting, nil
		case EventEnd:
			return PhaseStopped, nil
		}
	case PhaseListening:
		switch event {
		case EventRetry:
			return PhaseRetrying, nil
		case EventRestart:
			return PhaseStarting, nil
		case EventEnd:
			return PhaseStopped, nil
		}
	case PhaseRetrying:
		switch event {
		case EventRestart:
			return PhaseStarting, nil
		}
	}

	return current, invalidTransition(current, event)
}

// Active reports whether phase holds or is about to hold a capture session.
func Active(phase Phase) bool {
	switch phase {
	case PhaseStarting, PhaseListening, PhaseRetrying:
		return true
	default:
		return false
	}
}

func known(phase Phase) bool {
	switch phase {
	case PhaseIdle, PhaseStarting, PhaseListening, PhaseRetrying, PhaseStopped, PhaseFailed:
		return true
	default:
		return false
	}
}

func invalidTransition(phase Phase, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", phase, event)
}
