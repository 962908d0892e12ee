package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type StreamingEventType string

const (
	PingType              StreamingEventType = "ping"
	MessageStartType      StreamingEventType = "message_start"
	ContentBlockStartType StreamingEventType = "content_block_start"
	ContentBlockDeltaType StreamingEventType = "content_block_delta"
	ContentBlockStopType  StreamingEventType = "content_block_stop"
	MessageDeltaType      StreamingEventType = "message_delta"
	MessageStopType       StreamingEventType = "message_stop"
	ErrorType             StreamingEventType = "error"
)

type StreamingDeltaType string

const (
	TextDeltaType      StreamingDeltaType = "text_delta"
	InputJSONDeltaType StreamingDeltaType = "input_json_delta"
	ThinkingDeltaType  StreamingDeltaType = "thinking_delta"
	SignatureDeltaType StreamingDeltaType = "signature_delta"
)

// StreamingEvent is a single typed record from the Messages streaming API.
type StreamingEvent struct {
	Type         StreamingEventType `json:"type"`
	Message      *MessageResponse   `json:"message,omitempty"`
	Delta        *Delta             `json:"delta,omitempty"`
	Error        *ErrorDetail       `json:"error,omitempty"`
	Index        int                `json:"index,omitempty"`
	Usage        *Usage             `json:"usage,omitempty"`
	ContentBlock *ContentBlock      `json:"content_block,omitempty"`
}

func (s StreamingEvent) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", string(s.Type))

	if s.Message != nil {
		e.Str("message_id", s.Message.ID)
	}

	if s.Delta != nil {
		e.Object("delta", s.Delta)
	}

	if s.Error != nil {
		e.Object("error", s.Error)
	}

	if s.Index != 0 {
		e.Int("index", s.Index)
	}

	if s.Usage != nil {
		e.Object("usage", s.Usage)
	}

	if s.ContentBlock != nil {
		e.Object("content_block", s.ContentBlock)
	}
}

var _ zerolog.LogObjectMarshaler = StreamingEvent{}

// ContentBlock is the opening snapshot of a block inside a
// content_block_start event. Tool use blocks carry the id, name and an
// initial (possibly empty, possibly complete) input object.
type ContentBlock struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	Signature string          `json:"signature,omitempty"`
}

func (cb ContentBlock) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", cb.Type)
	if cb.ID != "" {
		e.Str("id", cb.ID)
	}
	if cb.Name != "" {
		e.Str("name", cb.Name)
	}
	if len(cb.Input) > 0 {
		e.RawJSON("input", cb.Input)
	}
	if cb.Text != "" {
		e.Str("text", cb.Text)
	}
}

// Delta carries the incremental part of a content_block_delta or
// message_delta event. PartialJSON keeps empty fragments distinct from
// absent ones, so it has no omitempty.
type Delta struct {
	Type         StreamingDeltaType `json:"type,omitempty"`
	Text         string             `json:"text,omitempty"`
	PartialJSON  string             `json:"partial_json"`
	Thinking     string             `json:"thinking,omitempty"`
	Signature    string             `json:"signature,omitempty"`
	StopReason   string             `json:"stop_reason,omitempty"`
	StopSequence string             `json:"stop_sequence,omitempty"`
}

func (d Delta) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", string(d.Type))
	if d.Text != "" {
		e.Str("text", d.Text)
	}
	e.Str("partial_json", d.PartialJSON)
	if d.StopReason != "" {
		e.Str("stop_reason", d.StopReason)
	}
	if d.StopSequence != "" {
		e.Str("stop_sequence", d.StopSequence)
	}
}

const doneMarker = "[DONE]"

var dataPrefix = []byte("data:")

// streamEvents reads the SSE body line by line and emits one typed event
// per data record. Incomplete trailing lines are buffered by the reader
// until their newline arrives, so records split across transport chunks
// reassemble before parsing. Records that fail to parse are skipped. The
// stream ends at the [DONE] marker, EOF, or context cancellation.
func streamEvents(ctx context.Context, body io.ReadCloser, events chan<- StreamingEvent) {
	defer close(events)
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(body)

	reader := bufio.NewReader(body)
	eventCount := 0
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF {
				log.Debug().Err(err).Msg("streaming read interrupted")
			}
			log.Debug().Int("total_events", eventCount).Msg("streaming reader finished")
			return
		}

		data, ok := parseDataLine(line)
		if !ok {
			// event:, id: and blank separator lines carry nothing we need
			continue
		}
		if string(bytes.TrimSpace(data)) == doneMarker {
			log.Debug().Int("total_events", eventCount).Msg("received stream terminator")
			return
		}

		var event StreamingEvent
		if parseErr := json.Unmarshal(data, &event); parseErr != nil {
			log.Debug().Err(parseErr).Str("data", string(data)).Msg("skipping malformed streaming record")
			continue
		}
		eventCount++
		log.Trace().
			Str("event_type", string(event.Type)).
			Int("event_number", eventCount).
			Object("event", event).
			Msg("parsed streaming event")

		select {
		case events <- event:
		case <-ctx.Done():
			log.Debug().Msg("context cancelled, stopping streaming")
			return
		}
	}
}

// parseDataLine extracts the payload of a "data:" SSE line. The second
// return value is false for any other field or for blank lines.
func parseDataLine(line []byte) ([]byte, bool) {
	line = bytes.TrimRight(line, "\r\n")
	if !bytes.HasPrefix(line, dataPrefix) {
		return nil, false
	}
	data := bytes.TrimPrefix(line, dataPrefix)
	// a single leading space after the colon is part of the framing
	data = bytes.TrimPrefix(data, []byte(" "))
	return data, true
}
