package agent

// Phase is a state of the run state machine.
type Phase string

const (
	PhasePlanning   Phase = "PLANNING"
	PhaseActing     Phase = "ACTING"
	PhaseEvaluating Phase = "EVALUATING"
	PhaseContinue   Phase = "CONTINUE"
	PhaseSucceeded  Phase = "SUCCEEDED"
	PhaseNeedsUser  Phase = "NEEDS_USER"
	PhaseExhausted  Phase = "EXHAUSTED"
	PhaseFailed     Phase = "FAILED"
)

// Terminal reports whether the run has ended.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseSucceeded, PhaseNeedsUser, PhaseExhausted, PhaseFailed:
		return true
	}
	return false
}

// Event drives a transition.
type Event int

const (
	// EventToolCalls: the worker asked for tools.
	EventToolCalls Event = iota
	// EventAnswer: the worker produced an answer.
	EventAnswer
	// EventToolsDone: the tool batch finished.
	EventToolsDone
	// EventMet: the evaluator accepted the answer.
	EventMet
	// EventNeedsUser: the evaluator wants user input.
	EventNeedsUser
	// EventRejected: the evaluator wants another attempt.
	EventRejected
	// EventNext: leave CONTINUE for the next worker turn.
	EventNext
	// EventCeiling: the iteration budget is spent.
	EventCeiling
	// EventFatal: an unrecoverable error.
	EventFatal
)

var eventNames = [...]string{
	EventToolCalls: "tool_calls",
	EventAnswer:    "answer",
	EventToolsDone: "tools_done",
	EventMet:       "met",
	EventNeedsUser: "needs_user",
	EventRejected:  "rejected",
	EventNext:      "next",
	EventCeiling:   "ceiling",
	EventFatal:     "fatal",
}

func (e Event) String() string {
	if int(e) >= 0 && int(e) < len(eventNames) {
		return eventNames[e]
	}
	return "unknown"
}

// VerdictEvent converts an evaluator verdict to an event. A verdict that
// claims both success and a need for user input resolves to NeedsUser.
func VerdictEvent(met, needsUser bool) Event {
	switch {
	case needsUser:
		return EventNeedsUser
	case met:
		return EventMet
	default:
		return EventRejected
	}
}

// Next returns the phase that follows p on e. Terminal phases never
// change, and an event that does not apply to p leaves p unchanged.
func Next(p Phase, e Event) Phase {
	if p.Terminal() {
		return p
	}
	switch e {
	case EventFatal:
		return PhaseFailed
	case EventCeiling:
		return PhaseExhausted
	}

	switch p {
	case PhasePlanning:
		switch e {
		case EventToolCalls:
			return PhaseActing
		case EventAnswer:
			return PhaseEvaluating
		}
	case PhaseActing:
		if e == EventToolsDone {
			return PhasePlanning
		}
	case PhaseEvaluating:
		switch e {
		case EventMet:
			return PhaseSucceeded
		case EventNeedsUser:
			return PhaseNeedsUser
		case EventRejected:
			return PhaseContinue
		}
	case PhaseContinue:
		if e == EventNext {
			return PhasePlanning
		}
	}
	return p
}
