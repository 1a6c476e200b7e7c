package harness

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const askUserTool = "ask_user"

// ModelOptions configures a ModelHarness.
type ModelOptions struct {
	Provider    ChatProvider
	Model       string
	System      string
	Temperature float64
	MaxTokens   int

	// Tools offered to the model on every call. The built-in ask_user tool
	// is always added.
	Tools []ToolSpec

	// GatedTools lists tool names that require approval before the run may
	// proceed.
	GatedTools []string

	// PlanMode makes the first run of every thread propose a plan and wait
	// for plan approval before answering.
	PlanMode bool

	// WorkspaceRoot is the parent directory for the scratch workspace. Empty
	// means the OS temp dir.
	WorkspaceRoot string

	HeartbeatInterval time.Duration

	Logger zerolog.Logger
}

type pendingAsk struct {
	id string
	ch chan string
}

type pendingDecision struct {
	id string
	ch chan Decision
}

// ModelHarness implements Harness directly over a ChatProvider. It keeps
// per-thread conversation history in memory; durable storage belongs to an
// external collaborator.
type ModelHarness struct {
	opts ModelOptions

	mu          sync.Mutex
	threads     map[string][]ChatMessage
	planned     map[string]bool
	threadID    string
	running     bool
	workspace   string
	subscribers map[uint64]func(Event)
	nextSub     uint64

	ask      *pendingAsk
	toolWait *pendingDecision
	planWait *pendingDecision

	hbStop chan struct{}
	hbOnce sync.Once
}

// NewModelHarness constructs an uninitialized harness.
func NewModelHarness(opts ModelOptions) *ModelHarness {
	if opts.Model == "" {
		opts.Model = "claude-3-5-sonnet-20241022"
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 4096
	}
	if opts.HeartbeatInterval == 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	return &ModelHarness{
		opts:        opts,
		threads:     make(map[string][]ChatMessage),
		planned:     make(map[string]bool),
		subscribers: make(map[uint64]func(Event)),
		hbStop:      make(chan struct{}),
	}
}

// Init creates the scratch workspace and starts the heartbeat.
func (h *ModelHarness) Init(ctx context.Context) error {
	if h.opts.Provider == nil {
		return fmt.Errorf("chat provider is required")
	}

	dir, err := os.MkdirTemp(h.opts.WorkspaceRoot, "parley-ws-")
	if err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}

	h.mu.Lock()
	h.workspace = dir
	h.mu.Unlock()

	go h.heartbeat()

	h.opts.Logger.Debug().Str("workspace", dir).Msg("Harness initialized")
	return nil
}

func (h *ModelHarness) heartbeat() {
	ticker := time.NewTicker(h.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.opts.Logger.Debug().Str("thread_id", h.ThreadID()).Msg("Harness heartbeat")
		case <-h.hbStop:
			return
		}
	}
}

// SwitchThread binds the harness to an existing thread, creating local
// history for it on first reference.
func (h *ModelHarness) SwitchThread(_ context.Context, threadID string) error {
	if threadID == "" {
		return fmt.Errorf("thread id is required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.threads[threadID]; !ok {
		h.threads[threadID] = nil
	}
	h.threadID = threadID
	return nil
}

// CreateThread allocates a new thread id and binds to it.
func (h *ModelHarness) CreateThread(_ context.Context, title string) (string, error) {
	id := uuid.NewString()
	h.mu.Lock()
	h.threads[id] = nil
	h.threadID = id
	h.mu.Unlock()
	h.opts.Logger.Info().Str("thread_id", id).Str("title", title).Msg("Thread created")
	return id, nil
}

// ThreadID returns the currently bound thread id.
func (h *ModelHarness) ThreadID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.threadID
}

// Subscribe registers an event callback.
func (h *ModelHarness) Subscribe(fn func(Event)) func() {
	h.mu.Lock()
	h.nextSub++
	id := h.nextSub
	h.subscribers[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.subscribers, id)
		h.mu.Unlock()
	}
}

func (h *ModelHarness) emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	h.mu.Lock()
	fns := make([]func(Event), 0, len(h.subscribers))
	for _, fn := range h.subscribers {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// IsRunning reports whether a run is in flight.
func (h *ModelHarness) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// SendMessage runs one request/response cycle. It blocks until the run
// completes; agent_end is emitted before it returns, even on failure.
func (h *ModelHarness) SendMessage(ctx context.Context, content string, media []string) error {
	h.mu.Lock()
	if h.threadID == "" {
		h.mu.Unlock()
		return fmt.Errorf("no thread bound")
	}
	if h.running {
		h.mu.Unlock()
		return fmt.Errorf("run already in flight")
	}
	threadID := h.threadID
	h.running = true
	h.threads[threadID] = append(h.threads[threadID], ChatMessage{Role: "user", Content: content})
	h.mu.Unlock()

	h.emit(Event{Kind: EventAgentStart})

	err := h.run(ctx, threadID)

	h.mu.Lock()
	h.running = false
	h.mu.Unlock()

	h.emit(Event{Kind: EventAgentEnd})
	return err
}

func (h *ModelHarness) run(ctx context.Context, threadID string) error {
	if h.opts.PlanMode && !h.hasPlanned(threadID) {
		approved, err := h.proposePlan(ctx, threadID)
		if err != nil || !approved {
			return err
		}
	}

	for {
		resp, err := h.opts.Provider.Chat(ctx, h.request(threadID))
		if err != nil {
			return fmt.Errorf("model call failed: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			h.append(threadID, ChatMessage{Role: "assistant", Content: resp.Content})
			h.emit(Event{
				Kind:  EventMessageEnd,
				Parts: []ContentPart{{Type: "text", Text: resp.Content}},
			})
			return nil
		}

		h.append(threadID, ChatMessage{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls})
		for _, call := range resp.ToolCalls {
			result, err := h.handleToolCall(ctx, call)
			if err != nil {
				return err
			}
			h.append(threadID, ChatMessage{Role: "tool", Content: result, ToolCallID: call.ID})
		}
	}
}

func (h *ModelHarness) handleToolCall(ctx context.Context, call ToolCall) (string, error) {
	if call.Name == askUserTool {
		return h.askUser(ctx, call)
	}

	if h.isGated(call.Name) {
		ev := Event{
			Kind:       EventToolApprovalRequired,
			ToolCallID: call.ID,
			Tool:       call.Name,
			Args:       call.Args,
		}
		decision, err := h.awaitToolDecision(ctx, call.ID, ev)
		if err != nil {
			return "", err
		}
		if decision != DecisionApprove {
			h.emit(Event{Kind: EventToolEnd, ToolCallID: call.ID})
			return "tool call denied by user", nil
		}
	}

	// Tool execution itself is delegated; the harness only reports the
	// call back to the model.
	h.emit(Event{Kind: EventToolEnd, ToolCallID: call.ID})
	return "ok", nil
}

func (h *ModelHarness) askUser(ctx context.Context, call ToolCall) (string, error) {
	question, _ := call.Args["question"].(string)
	var choices []QuestionChoice
	if raw, ok := call.Args["choices"].([]any); ok {
		for _, c := range raw {
			if m, ok := c.(map[string]any); ok {
				label, _ := m["label"].(string)
				desc, _ := m["description"].(string)
				choices = append(choices, QuestionChoice{Label: label, Description: desc})
			}
		}
	}

	wait := &pendingAsk{id: uuid.NewString(), ch: make(chan string, 1)}
	h.mu.Lock()
	h.ask = wait
	h.mu.Unlock()

	h.emit(Event{
		Kind:       EventAskQuestion,
		QuestionID: wait.id,
		Question:   question,
		Choices:    choices,
	})

	select {
	case answer := <-wait.ch:
		return answer, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (h *ModelHarness) awaitToolDecision(ctx context.Context, toolCallID string, ev Event) (Decision, error) {
	wait := &pendingDecision{id: toolCallID, ch: make(chan Decision, 1)}
	h.mu.Lock()
	h.toolWait = wait
	h.mu.Unlock()

	h.emit(ev)

	select {
	case d := <-wait.ch:
		return d, nil
	case <-ctx.Done():
		return DecisionDeny, ctx.Err()
	}
}

func (h *ModelHarness) proposePlan(ctx context.Context, threadID string) (bool, error) {
	req := h.request(threadID)
	req.System = "Propose a short step-by-step plan for the user's request. Do not execute anything yet."
	resp, err := h.opts.Provider.Chat(ctx, req)
	if err != nil {
		return false, fmt.Errorf("plan call failed: %w", err)
	}

	wait := &pendingDecision{id: uuid.NewString(), ch: make(chan Decision, 1)}
	h.mu.Lock()
	h.planWait = wait
	h.mu.Unlock()

	h.emit(Event{
		Kind:   EventPlanApprovalRequired,
		PlanID: wait.id,
		Title:  "Proposed plan",
		Plan:   resp.Content,
	})

	select {
	case d := <-wait.ch:
		if d != DecisionApprove {
			return false, nil
		}
	case <-ctx.Done():
		return false, ctx.Err()
	}

	h.emit(Event{Kind: EventPlanApproved, PlanID: wait.id})
	h.mu.Lock()
	h.planned[threadID] = true
	h.mu.Unlock()
	return true, nil
}

// RespondToQuestion answers the outstanding ask_question.
func (h *ModelHarness) RespondToQuestion(questionID, answer string) error {
	h.mu.Lock()
	wait := h.ask
	h.ask = nil
	h.mu.Unlock()

	if wait == nil || wait.id != questionID {
		return fmt.Errorf("no pending question %q", questionID)
	}
	wait.ch <- answer
	return nil
}

// RespondToToolApproval resolves the outstanding tool approval.
func (h *ModelHarness) RespondToToolApproval(decision Decision) error {
	h.mu.Lock()
	wait := h.toolWait
	h.toolWait = nil
	h.mu.Unlock()

	if wait == nil {
		return fmt.Errorf("no pending tool approval")
	}
	wait.ch <- decision
	return nil
}

// RespondToPlanApproval resolves the outstanding plan approval.
func (h *ModelHarness) RespondToPlanApproval(planID string, response Decision) error {
	h.mu.Lock()
	wait := h.planWait
	h.planWait = nil
	h.mu.Unlock()

	if wait == nil || wait.id != planID {
		return fmt.Errorf("no pending plan approval %q", planID)
	}
	wait.ch <- response
	return nil
}

// StopHeartbeats stops the background heartbeat goroutine. Idempotent.
func (h *ModelHarness) StopHeartbeats() {
	h.hbOnce.Do(func() { close(h.hbStop) })
}

// DestroyWorkspace removes the scratch workspace. Idempotent.
func (h *ModelHarness) DestroyWorkspace() error {
	h.mu.Lock()
	dir := h.workspace
	h.workspace = ""
	h.mu.Unlock()

	if dir == "" {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove workspace: %w", err)
	}
	return nil
}

func (h *ModelHarness) hasPlanned(threadID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.planned[threadID]
}

func (h *ModelHarness) isGated(tool string) bool {
	for _, name := range h.opts.GatedTools {
		if name == tool {
			return true
		}
	}
	return false
}

func (h *ModelHarness) append(threadID string, msg ChatMessage) {
	h.mu.Lock()
	h.threads[threadID] = append(h.threads[threadID], msg)
	h.mu.Unlock()
}

func (h *ModelHarness) request(threadID string) ChatRequest {
	h.mu.Lock()
	history := append([]ChatMessage(nil), h.threads[threadID]...)
	h.mu.Unlock()

	tools := append([]ToolSpec(nil), h.opts.Tools...)
	tools = append(tools, ToolSpec{
		Name:        askUserTool,
		Description: "Ask the user a clarifying question, optionally with labeled choices.",
		Schema: map[string]any{
			"properties": map[string]any{
				"question": map[string]any{"type": "string"},
				"choices": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"label":       map[string]any{"type": "string"},
							"description": map[string]any{"type": "string"},
						},
					},
				},
			},
			"required": []string{"question"},
		},
	})

	return ChatRequest{
		Model:       h.opts.Model,
		System:      h.opts.System,
		Messages:    history,
		Tools:       tools,
		Temperature: h.opts.Temperature,
		MaxTokens:   h.opts.MaxTokens,
	}
}
