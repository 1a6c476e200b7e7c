package pool

import "github.com/parleybot/parley/pkg/harness"

// RunBuffer accumulates the ordered events of the current run so a
// late-attaching observer can replay what happened. It is non-empty only
// while a run is in flight and is discarded once the run completes.
type RunBuffer struct {
	events []harness.Event
}

// Apply folds one event into the buffer.
func (b *RunBuffer) Apply(ev harness.Event) {
	switch ev.Kind {
	case harness.EventUserMessage:
		// A user message always restarts the buffer, even when the previous
		// run never reported agent_end.
		b.events = []harness.Event{ev}
	case harness.EventAgentStart:
		if len(b.events) == 0 {
			b.events = []harness.Event{ev}
		} else {
			b.events = append(b.events, ev)
		}
	case harness.EventAgentEnd:
		// The run is over; reads after this point see an idle session.
		b.events = nil
	case harness.EventMessageEnd,
		harness.EventAskQuestion,
		harness.EventToolApprovalRequired,
		harness.EventToolEnd,
		harness.EventPlanApprovalRequired,
		harness.EventPlanApproved:
		if len(b.events) > 0 {
			b.events = append(b.events, ev)
		}
	}
}

// Len returns the number of buffered events.
func (b RunBuffer) Len() int {
	return len(b.events)
}

// Events returns a defensive copy of the buffered run.
func (b RunBuffer) Events() []harness.Event {
	if len(b.events) == 0 {
		return nil
	}
	out := make([]harness.Event, len(b.events))
	for i, ev := range b.events {
		out[i] = ev.Copy()
	}
	return out
}
