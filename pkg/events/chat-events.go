package events

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type EventType string

const (
	// EventTypeStart is emitted once when a chat session begins streaming.
	EventTypeStart EventType = "chat_started"
	// EventTypeContentDelta carries a single streamed text fragment plus the
	// accumulated completion so far, for live display.
	EventTypeContentDelta EventType = "content_delta"

	// Tool execution phase events
	EventTypeToolCallStart    EventType = "tool_call_start"
	EventTypeToolCallComplete EventType = "tool_call_complete"

	// Terminal events
	EventTypeChatComplete EventType = "chat_complete"
	EventTypeChatAborted  EventType = "chat_aborted"
	EventTypeError        EventType = "error"
)

type Event interface {
	Type() EventType
	Metadata() EventMetadata
	Payload() []byte
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Metadata_ EventMetadata `json:"meta,omitempty"`

	// raw JSON payload when the event was deserialized with NewEventFromJson
	payload []byte
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) Metadata() EventMetadata {
	return e.Metadata_
}

func (e *EventImpl) Payload() []byte {
	return e.payload
}

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
	ev.Object("meta", e.Metadata_)
}

var _ Event = &EventImpl{}

type EventStart struct {
	EventImpl
}

func NewStartEvent(metadata EventMetadata) *EventStart {
	return &EventStart{
		EventImpl: EventImpl{Type_: EventTypeStart, Metadata_: metadata},
	}
}

var _ Event = &EventStart{}

type EventContentDelta struct {
	EventImpl
	Delta string `json:"delta"`
	// Completion is the full accumulated assistant text so far.
	Completion string `json:"completion"`
}

func NewContentDeltaEvent(metadata EventMetadata, delta string, completion string) *EventContentDelta {
	return &EventContentDelta{
		EventImpl:  EventImpl{Type_: EventTypeContentDelta, Metadata_: metadata},
		Delta:      delta,
		Completion: completion,
	}
}

var _ Event = &EventContentDelta{}

// ToolCall describes a tool invocation requested by the model, with its
// arguments compacted to a JSON string.
type ToolCall struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Input string `json:"input"`
}

type EventToolCallStart struct {
	EventImpl
	ToolCall ToolCall `json:"tool_call"`
}

func NewToolCallStartEvent(metadata EventMetadata, toolCall ToolCall) *EventToolCallStart {
	return &EventToolCallStart{
		EventImpl: EventImpl{Type_: EventTypeToolCallStart, Metadata_: metadata},
		ToolCall:  toolCall,
	}
}

var _ Event = &EventToolCallStart{}

// ToolResult is the caller-visible summary of one tool execution.
type ToolResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

type EventToolCallComplete struct {
	EventImpl
	ToolResult ToolResult `json:"tool_result"`
}

func NewToolCallCompleteEvent(metadata EventMetadata, toolResult ToolResult) *EventToolCallComplete {
	return &EventToolCallComplete{
		EventImpl:  EventImpl{Type_: EventTypeToolCallComplete, Metadata_: metadata},
		ToolResult: toolResult,
	}
}

var _ Event = &EventToolCallComplete{}

type EventChatComplete struct {
	EventImpl
	Text       string `json:"text"`
	Iterations int    `json:"iterations"`
	ToolCalls  int    `json:"tool_calls"`
}

func NewChatCompleteEvent(metadata EventMetadata, text string, iterations int, toolCalls int) *EventChatComplete {
	return &EventChatComplete{
		EventImpl:  EventImpl{Type_: EventTypeChatComplete, Metadata_: metadata},
		Text:       text,
		Iterations: iterations,
		ToolCalls:  toolCalls,
	}
}

var _ Event = &EventChatComplete{}

// EventChatAborted signals budget exhaustion or cancellation. Text carries
// whatever partial completion had accumulated when the session was cut off.
type EventChatAborted struct {
	EventImpl
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

func NewChatAbortedEvent(metadata EventMetadata, text string, reason string) *EventChatAborted {
	return &EventChatAborted{
		EventImpl: EventImpl{Type_: EventTypeChatAborted, Metadata_: metadata},
		Text:      text,
		Reason:    reason,
	}
}

var _ Event = &EventChatAborted{}

type EventError struct {
	EventImpl
	ErrorString string `json:"error_string"`
}

func NewErrorEvent(metadata EventMetadata, err error) *EventError {
	return &EventError{
		EventImpl:   EventImpl{Type_: EventTypeError, Metadata_: metadata},
		ErrorString: err.Error(),
	}
}

var _ Event = &EventError{}

// Usage represents token usage reported by the backend for one model call.
type Usage struct {
	InputTokens  int `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int `json:"output_tokens" yaml:"output_tokens"`
}

// EventMetadata is attached to every event so consumers can reconstruct the
// session's progress without access to internal buffers.
type EventMetadata struct {
	ID        uuid.UUID `json:"message_id" yaml:"message_id"`
	SessionID string    `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Model     string    `json:"model,omitempty" yaml:"model,omitempty"`
	// StopReason is the backend's terminal classification for the current
	// model call, when known.
	StopReason string `json:"stop_reason,omitempty" yaml:"stop_reason,omitempty"`
	Usage      *Usage `json:"usage,omitempty" yaml:"usage,omitempty"`
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("message_id", em.ID.String())
	if em.SessionID != "" {
		e.Str("session_id", em.SessionID)
	}
	if em.Model != "" {
		e.Str("model", em.Model)
	}
	if em.StopReason != "" {
		e.Str("stop_reason", em.StopReason)
	}
	if em.Usage != nil {
		e.Int("input_tokens", em.Usage.InputTokens)
		e.Int("output_tokens", em.Usage.OutputTokens)
	}
}

var _ zerolog.LogObjectMarshaler = EventMetadata{}

// NewEventFromJson decodes a serialized event back into its concrete type
// based on the "type" discriminator.
func NewEventFromJson(b []byte) (Event, error) {
	var e *EventImpl
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, err
	}
	e.payload = b

	switch e.Type_ {
	case EventTypeStart:
		return toTypedEvent[EventStart](e)
	case EventTypeContentDelta:
		return toTypedEvent[EventContentDelta](e)
	case EventTypeToolCallStart:
		return toTypedEvent[EventToolCallStart](e)
	case EventTypeToolCallComplete:
		return toTypedEvent[EventToolCallComplete](e)
	case EventTypeChatComplete:
		return toTypedEvent[EventChatComplete](e)
	case EventTypeChatAborted:
		return toTypedEvent[EventChatAborted](e)
	case EventTypeError:
		return toTypedEvent[EventError](e)
	}

	return nil, errors.Errorf("unknown event type: %s", e.Type_)
}

func toTypedEvent[T any](e *EventImpl) (*T, error) {
	var ret *T
	if err := json.Unmarshal(e.payload, &ret); err != nil {
		return nil, errors.Wrapf(err, "could not cast event to %T", ret)
	}
	if setter, ok := any(ret).(interface{ setPayload([]byte) }); ok {
		setter.setPayload(e.payload)
	}
	return ret, nil
}

func (e *EventImpl) setPayload(b []byte) {
	e.payload = b
}
