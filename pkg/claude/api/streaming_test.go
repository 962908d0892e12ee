package api

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader yields the stream in fixed-size pieces so that records get
// split at arbitrary byte boundaries.
type chunkReader struct {
	data      string
	pos       int
	chunkSize int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	end := r.pos + r.chunkSize
	if end > len(r.data) {
		end = len(r.data)
	}
	n := copy(p, r.data[r.pos:end])
	r.pos += n
	return n, nil
}

func collectEvents(t *testing.T, body io.Reader) []StreamingEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events := make(chan StreamingEvent)
	go streamEvents(ctx, io.NopCloser(body), events)

	var collected []StreamingEvent
	for event := range events {
		collected = append(collected, event)
	}
	return collected
}

const sampleStream = `event: message_start
data: {"type":"message_start","message":{"id":"msg_01","role":"assistant","model":"claude","content":[],"usage":{"input_tokens":12,"output_tokens":0}}}

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}

event: content_block_stop
data: {"type":"content_block_stop","index":0}

event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":5}}

event: message_stop
data: {"type":"message_stop"}

data: [DONE]
`

func TestStreamEventsParsesTypedEvents(t *testing.T) {
	events := collectEvents(t, strings.NewReader(sampleStream))
	require.Len(t, events, 6)

	assert.Equal(t, MessageStartType, events[0].Type)
	require.NotNil(t, events[0].Message)
	assert.Equal(t, "msg_01", events[0].Message.ID)

	assert.Equal(t, ContentBlockStartType, events[1].Type)
	require.NotNil(t, events[1].ContentBlock)
	assert.Equal(t, "text", events[1].ContentBlock.Type)

	assert.Equal(t, ContentBlockDeltaType, events[2].Type)
	require.NotNil(t, events[2].Delta)
	assert.Equal(t, TextDeltaType, events[2].Delta.Type)
	assert.Equal(t, "Hello", events[2].Delta.Text)

	assert.Equal(t, ContentBlockStopType, events[3].Type)

	assert.Equal(t, MessageDeltaType, events[4].Type)
	require.NotNil(t, events[4].Delta)
	assert.Equal(t, "end_turn", events[4].Delta.StopReason)
	require.NotNil(t, events[4].Usage)
	assert.Equal(t, 5, events[4].Usage.OutputTokens)

	assert.Equal(t, MessageStopType, events[5].Type)
}

func TestStreamEventsReassemblesChunkSplitRecords(t *testing.T) {
	for _, chunkSize := range []int{1, 2, 3, 7, 16, 64} {
		reader := &chunkReader{data: sampleStream, chunkSize: chunkSize}
		events := collectEvents(t, reader)
		require.Lenf(t, events, 6, "chunk size %d", chunkSize)
		assert.Equal(t, MessageStartType, events[0].Type)
		assert.Equal(t, MessageStopType, events[5].Type)
	}
}

func TestStreamEventsSkipsMalformedRecords(t *testing.T) {
	stream := `data: {"type":"content_block_start","index":0,"content_block":{"type":"text"}}
data: {not json at all
data: {"type":"content_block_stop","index":0}
data: [DONE]
`
	events := collectEvents(t, strings.NewReader(stream))
	require.Len(t, events, 2)
	assert.Equal(t, ContentBlockStartType, events[0].Type)
	assert.Equal(t, ContentBlockStopType, events[1].Type)
}

func TestStreamEventsStopsAtDoneMarker(t *testing.T) {
	stream := `data: {"type":"message_stop"}
data: [DONE]
data: {"type":"content_block_start","index":0}
`
	events := collectEvents(t, strings.NewReader(stream))
	require.Len(t, events, 1)
	assert.Equal(t, MessageStopType, events[0].Type)
}

func TestStreamEventsEndsOnEOFWithoutDone(t *testing.T) {
	stream := `data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"partial"}}
`
	events := collectEvents(t, strings.NewReader(stream))
	require.Len(t, events, 1)
	assert.Equal(t, "partial", events[0].Delta.Text)
}

func TestStreamEventsIgnoresIncompleteTrailingLine(t *testing.T) {
	// last record never receives its newline, so it never parses
	stream := "data: {\"type\":\"message_stop\"}\ndata: {\"type\":\"content_block_st"
	events := collectEvents(t, strings.NewReader(stream))
	require.Len(t, events, 1)
	assert.Equal(t, MessageStopType, events[0].Type)
}

func TestStreamEventsStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pr, pw := io.Pipe()

	events := make(chan StreamingEvent)
	go streamEvents(ctx, pr, events)

	_, err := pw.Write([]byte("data: {\"type\":\"message_start\"}\n"))
	require.NoError(t, err)

	select {
	case event := <-events:
		assert.Equal(t, MessageStartType, event.Type)
	case <-time.After(time.Second):
		t.Fatal("expected an event before cancellation")
	}

	cancel()
	_ = pw.Close()

	// the goroutine may already be blocked sending a parsed event; either
	// way the channel has to close once the context is gone
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("expected the event channel to close")
		}
	}
}

func TestParseDataLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected string
		ok       bool
	}{
		{name: "data with space", line: "data: {\"a\":1}\n", expected: `{"a":1}`, ok: true},
		{name: "data without space", line: "data:{\"a\":1}\n", expected: `{"a":1}`, ok: true},
		{name: "crlf", line: "data: x\r\n", expected: "x", ok: true},
		{name: "event field", line: "event: message_start\n", ok: false},
		{name: "blank line", line: "\n", ok: false},
		{name: "comment", line: ": keepalive\n", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, ok := parseDataLine([]byte(tt.line))
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expected, string(data))
			}
		})
	}
}
