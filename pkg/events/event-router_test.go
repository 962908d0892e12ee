package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHandler collects the events it is dispatched.
type recordingHandler struct {
	mu    sync.Mutex
	types []EventType
	done  chan struct{}
	want  int
}

func newRecordingHandler(want int) *recordingHandler {
	return &recordingHandler{done: make(chan struct{}), want: want}
}

func (h *recordingHandler) record(t EventType) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.types = append(h.types, t)
	if len(h.types) == h.want {
		close(h.done)
	}
	return nil
}

func (h *recordingHandler) HandleStart(ctx context.Context, e *EventStart) error {
	return h.record(e.Type())
}

func (h *recordingHandler) HandleContentDelta(ctx context.Context, e *EventContentDelta) error {
	return h.record(e.Type())
}

func (h *recordingHandler) HandleToolCallStart(ctx context.Context, e *EventToolCallStart) error {
	return h.record(e.Type())
}

func (h *recordingHandler) HandleToolCallComplete(ctx context.Context, e *EventToolCallComplete) error {
	return h.record(e.Type())
}

func (h *recordingHandler) HandleChatComplete(ctx context.Context, e *EventChatComplete) error {
	return h.record(e.Type())
}

func (h *recordingHandler) HandleChatAborted(ctx context.Context, e *EventChatAborted) error {
	return h.record(e.Type())
}

func (h *recordingHandler) HandleError(ctx context.Context, e *EventError) error {
	return h.record(e.Type())
}

func TestEventRouterDispatchesChatEvents(t *testing.T) {
	router, err := NewEventRouter()
	require.NoError(t, err)
	defer func() {
		_ = router.Close()
	}()

	handler := newRecordingHandler(3)
	router.RegisterChatEventHandler("test-handler", "chat", handler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = router.Run(ctx)
	}()
	<-router.Running()

	sink := NewWatermillSink(router.Publisher, "chat")
	metadata := EventMetadata{ID: uuid.New(), SessionID: "session-1"}

	require.NoError(t, sink.PublishEvent(NewStartEvent(metadata)))
	require.NoError(t, sink.PublishEvent(NewContentDeltaEvent(metadata, "Hi", "Hi")))
	require.NoError(t, sink.PublishEvent(NewChatCompleteEvent(metadata, "Hi", 0, 0)))

	select {
	case <-handler.done:
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not receive all events")
	}

	handler.mu.Lock()
	defer handler.mu.Unlock()
	assert.Equal(t, []EventType{
		EventTypeStart,
		EventTypeContentDelta,
		EventTypeChatComplete,
	}, handler.types)
}
