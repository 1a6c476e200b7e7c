package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleybot/parley/pkg/harness"
)

func TestRunBuffer_UserMessageResetsEvenWhenNonEmpty(t *testing.T) {
	var b RunBuffer
	b.Apply(harness.Event{Kind: harness.EventUserMessage, Content: "one"})
	b.Apply(harness.Event{Kind: harness.EventAgentStart})
	require.Equal(t, 2, b.Len())

	b.Apply(harness.Event{Kind: harness.EventUserMessage, Content: "two"})
	events := b.Events()
	require.Len(t, events, 1)
	assert.Equal(t, harness.EventUserMessage, events[0].Kind)
	assert.Equal(t, "two", events[0].Content)
}

func TestRunBuffer_AgentStartOpensBufferWhenEmpty(t *testing.T) {
	var b RunBuffer
	b.Apply(harness.Event{Kind: harness.EventAgentStart})
	events := b.Events()
	require.Len(t, events, 1)
	assert.Equal(t, harness.EventAgentStart, events[0].Kind)
}

func TestRunBuffer_AppendsWhileRunInFlight(t *testing.T) {
	var b RunBuffer
	b.Apply(harness.Event{Kind: harness.EventUserMessage, Content: "hi"})
	b.Apply(harness.Event{Kind: harness.EventAgentStart})
	b.Apply(harness.Event{Kind: harness.EventToolApprovalRequired, ToolCallID: "t1"})
	b.Apply(harness.Event{Kind: harness.EventToolEnd, ToolCallID: "t1"})
	b.Apply(harness.Event{Kind: harness.EventMessageEnd})

	events := b.Events()
	require.Len(t, events, 5)
	assert.Equal(t, harness.EventUserMessage, events[0].Kind)
	assert.Equal(t, harness.EventMessageEnd, events[4].Kind)
}

func TestRunBuffer_AgentEndClearsBuffer(t *testing.T) {
	var b RunBuffer
	b.Apply(harness.Event{Kind: harness.EventUserMessage, Content: "hi"})
	b.Apply(harness.Event{Kind: harness.EventAgentStart})
	b.Apply(harness.Event{Kind: harness.EventAgentEnd})
	assert.Equal(t, 0, b.Len())
	assert.Nil(t, b.Events())
}

func TestRunBuffer_IgnoresEventsWhileIdle(t *testing.T) {
	var b RunBuffer
	b.Apply(harness.Event{Kind: harness.EventMessageEnd})
	b.Apply(harness.Event{Kind: harness.EventToolEnd, ToolCallID: "t1"})
	b.Apply(harness.Event{Kind: harness.EventAgentEnd})
	assert.Equal(t, 0, b.Len())
}

func TestRunBuffer_EventsReturnsDefensiveCopy(t *testing.T) {
	var b RunBuffer
	b.Apply(harness.Event{
		Kind:    harness.EventUserMessage,
		Content: "hi",
		Media:   []string{"img.png"},
	})

	events := b.Events()
	require.Len(t, events, 1)
	events[0].Media[0] = "changed.png"

	again := b.Events()
	assert.Equal(t, "img.png", again[0].Media[0])
}
