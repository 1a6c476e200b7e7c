package harness

import (
	"context"
	"fmt"
)

// ChatProvider abstracts the model API behind ModelHarness.
type ChatProvider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Name() string
}

// ChatMessage is one turn of provider-side conversation history.
type ChatMessage struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolSpec declares a tool offered to the model.
type ToolSpec struct {
	Name        string
	Description string
	// Schema is a JSON-schema object with "properties" and optional
	// "required" keys.
	Schema map[string]any
}

// ChatRequest carries one model call.
type ChatRequest struct {
	Model        string
	System       string
	Messages     []ChatMessage
	Tools        []ToolSpec
	Temperature  float64
	MaxTokens    int
}

// ChatResponse is the model's reply.
type ChatResponse struct {
	Content   string
	ToolCalls []ToolCall
}

// NewProvider constructs a provider by name.
func NewProvider(name, apiKey string) (ChatProvider, error) {
	switch name {
	case "claude", "anthropic":
		return NewClaudeProvider(apiKey), nil
	case "openai":
		return NewOpenAIProvider(apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}
