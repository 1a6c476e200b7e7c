package harness

import "time"

// EventKind discriminates the runtime event union. The set is closed: the
// pending-state and run-buffer reducers in pkg/pool switch exhaustively over
// it, so adding a kind means updating both reducers.
type EventKind string

const (
	EventUserMessage          EventKind = "user_message"
	EventAgentStart           EventKind = "agent_start"
	EventAgentEnd             EventKind = "agent_end"
	EventMessageEnd           EventKind = "message_end"
	EventAskQuestion          EventKind = "ask_question"
	EventToolApprovalRequired EventKind = "tool_approval_required"
	EventToolEnd              EventKind = "tool_end"
	EventPlanApprovalRequired EventKind = "plan_approval_required"
	EventPlanApproved         EventKind = "plan_approved"
)

// QuestionChoice is one selectable answer offered by an ask_question event.
type QuestionChoice struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// ContentPart is one piece of final assistant output carried by message_end.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Event is a single occurrence emitted by a session runtime. Events are
// value objects: once emitted they are never mutated, and they are totally
// ordered within one session, unordered across sessions.
//
// Only the fields relevant to the Kind are populated.
type Event struct {
	Kind      EventKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`

	// user_message
	Content string   `json:"content,omitempty"`
	Media   []string `json:"media,omitempty"`

	// message_end
	Parts []ContentPart `json:"parts,omitempty"`

	// ask_question
	QuestionID string           `json:"question_id,omitempty"`
	Question   string           `json:"question,omitempty"`
	Choices    []QuestionChoice `json:"choices,omitempty"`

	// tool_approval_required / tool_end
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Tool       string         `json:"tool,omitempty"`
	Args       map[string]any `json:"args,omitempty"`

	// plan_approval_required / plan_approved
	PlanID string `json:"plan_id,omitempty"`
	Title  string `json:"title,omitempty"`
	Plan   string `json:"plan,omitempty"`
}

// NewUserMessage builds the synthesized event the pool feeds through the
// pipeline before handing a message to the runtime.
func NewUserMessage(content string, media []string) Event {
	return Event{
		Kind:      EventUserMessage,
		Timestamp: time.Now(),
		Content:   content,
		Media:     media,
	}
}

// Copy returns a deep enough copy that callers holding the result cannot
// reach back into the original's slices or maps.
func (e Event) Copy() Event {
	out := e
	if e.Media != nil {
		out.Media = append([]string(nil), e.Media...)
	}
	if e.Parts != nil {
		out.Parts = append([]ContentPart(nil), e.Parts...)
	}
	if e.Choices != nil {
		out.Choices = append([]QuestionChoice(nil), e.Choices...)
	}
	if e.Args != nil {
		args := make(map[string]any, len(e.Args))
		for k, v := range e.Args {
			args[k] = v
		}
		out.Args = args
	}
	return out
}
