package events

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventJSONRoundTrip(t *testing.T) {
	metadata := EventMetadata{
		ID:        uuid.New(),
		SessionID: "session-1",
		Model:     "claude-sonnet",
	}

	tests := []struct {
		name  string
		event Event
		check func(t *testing.T, decoded Event)
	}{
		{
			name:  "start",
			event: NewStartEvent(metadata),
			check: func(t *testing.T, decoded Event) {
				_, ok := decoded.(*EventStart)
				require.True(t, ok)
			},
		},
		{
			name:  "content delta",
			event: NewContentDeltaEvent(metadata, "Hel", "Hel"),
			check: func(t *testing.T, decoded Event) {
				e, ok := decoded.(*EventContentDelta)
				require.True(t, ok)
				assert.Equal(t, "Hel", e.Delta)
			},
		},
		{
			name:  "tool call start",
			event: NewToolCallStartEvent(metadata, ToolCall{ID: "tool_1", Name: "search", Input: `{"q":"x"}`}),
			check: func(t *testing.T, decoded Event) {
				e, ok := decoded.(*EventToolCallStart)
				require.True(t, ok)
				assert.Equal(t, "search", e.ToolCall.Name)
			},
		},
		{
			name:  "tool call complete",
			event: NewToolCallCompleteEvent(metadata, ToolResult{ID: "tool_1", Success: true, Content: "found"}),
			check: func(t *testing.T, decoded Event) {
				e, ok := decoded.(*EventToolCallComplete)
				require.True(t, ok)
				assert.True(t, e.ToolResult.Success)
			},
		},
		{
			name:  "chat complete",
			event: NewChatCompleteEvent(metadata, "final answer", 2, 3),
			check: func(t *testing.T, decoded Event) {
				e, ok := decoded.(*EventChatComplete)
				require.True(t, ok)
				assert.Equal(t, "final answer", e.Text)
				assert.Equal(t, 2, e.Iterations)
				assert.Equal(t, 3, e.ToolCalls)
			},
		},
		{
			name:  "chat aborted",
			event: NewChatAbortedEvent(metadata, "partial", "max_iterations_exceeded"),
			check: func(t *testing.T, decoded Event) {
				e, ok := decoded.(*EventChatAborted)
				require.True(t, ok)
				assert.Equal(t, "max_iterations_exceeded", e.Reason)
			},
		},
		{
			name:  "error",
			event: NewErrorEvent(metadata, errors.New("boom")),
			check: func(t *testing.T, decoded Event) {
				e, ok := decoded.(*EventError)
				require.True(t, ok)
				assert.Equal(t, "boom", e.ErrorString)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := json.Marshal(tt.event)
			require.NoError(t, err)

			decoded, err := NewEventFromJson(payload)
			require.NoError(t, err)

			assert.Equal(t, tt.event.Type(), decoded.Type())
			assert.Equal(t, metadata.SessionID, decoded.Metadata().SessionID)
			assert.Equal(t, payload, decoded.Payload())
			tt.check(t, decoded)
		})
	}
}

func TestNewEventFromJsonRejectsGarbage(t *testing.T) {
	_, err := NewEventFromJson([]byte(`not json`))
	assert.Error(t, err)
}

func TestNewEventFromJsonUnknownType(t *testing.T) {
	_, err := NewEventFromJson([]byte(`{"type":"some_future_event"}`))
	assert.Error(t, err)
}
