package pool

import "github.com/parleybot/parley/pkg/harness"

// PendingState tracks the session's unresolved interactions: at most one
// outstanding question, tool approval, and plan approval. A new occurrence
// of a kind overwrites the previous one, which is taken as resolved or
// superseded.
//
// It is a pure fold over the session's event stream; Apply handles every
// event kind so a new kind has to be placed here deliberately.
type PendingState struct {
	Question     *harness.Event
	ToolApproval *harness.Event
	PlanApproval *harness.Event
}

// Apply folds one event into the state, in arrival order.
func (p *PendingState) Apply(ev harness.Event) {
	switch ev.Kind {
	case harness.EventAskQuestion:
		p.Question = &ev
	case harness.EventToolApprovalRequired:
		p.ToolApproval = &ev
	case harness.EventToolEnd:
		if p.ToolApproval != nil && p.ToolApproval.ToolCallID == ev.ToolCallID {
			p.ToolApproval = nil
		}
	case harness.EventPlanApprovalRequired:
		p.PlanApproval = &ev
	case harness.EventPlanApproved:
		p.PlanApproval = nil
	case harness.EventAgentEnd:
		p.Question = nil
		p.ToolApproval = nil
		p.PlanApproval = nil
	case harness.EventUserMessage, harness.EventAgentStart, harness.EventMessageEnd:
		// no pending-state effect
	}
}

// Empty reports whether no interaction is outstanding.
func (p PendingState) Empty() bool {
	return p.Question == nil && p.ToolApproval == nil && p.PlanApproval == nil
}

// Copy returns a defensive copy; callers cannot reach the tracked events.
func (p PendingState) Copy() PendingState {
	out := PendingState{}
	if p.Question != nil {
		ev := p.Question.Copy()
		out.Question = &ev
	}
	if p.ToolApproval != nil {
		ev := p.ToolApproval.Copy()
		out.ToolApproval = &ev
	}
	if p.PlanApproval != nil {
		ev := p.PlanApproval.Copy()
		out.PlanApproval = &ev
	}
	return out
}
