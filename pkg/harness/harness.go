package harness

import "context"

// Harness is the opaque session runtime bound to one conversation thread.
// The pool consumes it purely through this contract; implementations live
// here (ModelHarness) or outside the module entirely.
//
// Subscribe callbacks are invoked sequentially per harness, in emission
// order. SendMessage settles no earlier than the agent_end event of the run
// it triggered.
type Harness interface {
	// Init prepares the runtime (workspace, background timers). Must be
	// called before any other method.
	Init(ctx context.Context) error

	// SwitchThread binds the runtime to an existing conversation thread.
	SwitchThread(ctx context.Context, threadID string) error

	// CreateThread creates a fresh conversation thread and binds to it.
	CreateThread(ctx context.Context, title string) (string, error)

	// SendMessage feeds user input into the bound thread and blocks until
	// the resulting run completes.
	SendMessage(ctx context.Context, content string, media []string) error

	// Subscribe registers an event callback. The returned cancel func is
	// safe to call more than once.
	Subscribe(fn func(Event)) (cancel func())

	// IsRunning reports whether a run is currently in flight.
	IsRunning() bool

	RespondToQuestion(questionID, answer string) error
	RespondToToolApproval(decision Decision) error
	RespondToPlanApproval(planID string, response Decision) error

	// StopHeartbeats stops any periodic background activity owned by the
	// runtime. Idempotent.
	StopHeartbeats()

	// DestroyWorkspace releases any sandboxed execution resource.
	DestroyWorkspace() error
}

// Decision is the answer to a tool or plan approval request.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDeny    Decision = "deny"
)

// Factory constructs harness instances for the pool.
type Factory func() Harness
