package gateway

import (
	"github.com/parleybot/parley/pkg/harness"
)

// EventMessage is the frame broadcast to clients for every pool event.
type EventMessage struct {
	Type      string        `json:"type"` // always "event"
	ThreadID  string        `json:"thread_id"`
	Event     harness.Event `json:"event"`
	Seq       int64         `json:"seq"`
	Timestamp int64         `json:"timestamp"`
}

// CommandMessage is an inbound client frame.
type CommandMessage struct {
	Type   string `json:"type"` // always "command"
	ID     string `json:"id,omitempty"`
	Action string `json:"action"`

	ThreadID string `json:"thread_id,omitempty"`
	Text     string `json:"text,omitempty"`

	QuestionID string `json:"question_id,omitempty"`
	Answer     string `json:"answer,omitempty"`

	Decision string `json:"decision,omitempty"`
	PlanID   string `json:"plan_id,omitempty"`
}

// ResultMessage is the reply to a command.
type ResultMessage struct {
	Type  string `json:"type"` // always "result"
	ID    string `json:"id,omitempty"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// Command actions understood by the server.
const (
	ActionSend        = "send"
	ActionAnswer      = "answer_question"
	ActionApproveTool = "approve_tool"
	ActionApprovePlan = "approve_plan"
	ActionStatus      = "status"
	ActionList        = "list"
)
