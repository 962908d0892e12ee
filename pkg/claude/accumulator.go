package claude

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"
)

// ToolInvocationRequest is a finalized tool call ready for dispatch. When
// the argument stream never produced a valid JSON object, Malformed is set
// and Arguments holds an empty object; dispatch then reports the failure
// back to the model instead of executing anything.
type ToolInvocationRequest struct {
	ID         string
	Name       string
	Arguments  json.RawMessage
	Malformed  bool
	ParseError string
}

// PendingToolCall buffers the argument fragments of one tool use block
// while its stream is still open. It lives for a single streaming pass and
// is discarded once finalized.
type PendingToolCall struct {
	Index int
	ID    string
	Name  string

	argBuffer strings.Builder
	resolved  json.RawMessage
	finalized bool
	request   ToolInvocationRequest
}

// ToolCallAccumulator reassembles fragmented tool call arguments from a
// single streaming response. Blocks are keyed by content block index;
// indices arrive in transmission order but are not assumed contiguous or
// zero-based. Each block is decoded independently of the others.
//
// Argument JSON arrives in arbitrary splits, so the accumulator keeps the
// raw buffer and attempts a full parse after every fragment. Successful
// speculative parses overwrite the previous resolution; failures are
// expected mid-stream and ignored. The final parse happens at OnStop.
type ToolCallAccumulator struct {
	pending map[int]*PendingToolCall
	order   []int
}

func NewToolCallAccumulator() *ToolCallAccumulator {
	return &ToolCallAccumulator{
		pending: make(map[int]*PendingToolCall),
	}
}

// OnStart registers a new pending call. A seed that is already a non-empty
// JSON object resolves the arguments immediately; some responses deliver
// the complete input at block start and never send a fragment.
func (a *ToolCallAccumulator) OnStart(index int, id, name string, seedArgs json.RawMessage) {
	if _, exists := a.pending[index]; exists {
		log.Debug().Int("index", index).Str("id", id).Msg("duplicate tool call start, ignoring")
		return
	}

	call := &PendingToolCall{
		Index: index,
		ID:    id,
		Name:  name,
	}
	if isNonEmptyObject(seedArgs) {
		call.resolved = append(json.RawMessage(nil), seedArgs...)
	}
	a.pending[index] = call
	a.order = append(a.order, index)

	log.Debug().
		Int("index", index).
		Str("id", id).
		Str("name", name).
		Bool("seeded", call.resolved != nil).
		Msg("tool call started")
}

// OnFragment appends a raw argument fragment and speculatively re-parses
// the whole buffer. An incomplete buffer between fragments is the normal
// case, so parse failures are silent.
func (a *ToolCallAccumulator) OnFragment(index int, fragment string) {
	call, exists := a.pending[index]
	if !exists {
		log.Debug().Int("index", index).Msg("argument fragment for unknown tool call, ignoring")
		return
	}
	if call.finalized {
		log.Debug().Int("index", index).Msg("argument fragment after finalization, ignoring")
		return
	}

	call.argBuffer.WriteString(fragment)

	buffered := call.argBuffer.String()
	if isObject(json.RawMessage(buffered)) {
		call.resolved = json.RawMessage(buffered)
	}
}

// OnStop finalizes the call at index. The buffer gets one last parse; if
// neither it nor an earlier resolution produced a valid object, the call
// is finalized with empty arguments and flagged malformed. Calling OnStop
// again for the same index has no further effect.
func (a *ToolCallAccumulator) OnStop(index int) {
	call, exists := a.pending[index]
	if !exists {
		log.Debug().Int("index", index).Msg("stop for unknown tool call, ignoring")
		return
	}
	if call.finalized {
		return
	}
	call.finalized = true

	request := ToolInvocationRequest{
		ID:   call.ID,
		Name: call.Name,
	}

	buffered := call.argBuffer.String()
	switch {
	case strings.TrimSpace(buffered) != "" && isObject(json.RawMessage(buffered)):
		request.Arguments = json.RawMessage(buffered)
	case call.resolved != nil:
		request.Arguments = call.resolved
	case strings.TrimSpace(buffered) == "":
		// no fragments and no seed means a tool that takes no arguments
		request.Arguments = json.RawMessage(`{}`)
	default:
		request.Arguments = json.RawMessage(`{}`)
		request.Malformed = true
		request.ParseError = "tool arguments did not form a valid JSON object"
		log.Debug().
			Int("index", index).
			Str("id", call.ID).
			Str("buffer", buffered).
			Msg("tool call finalized with malformed arguments")
	}

	call.request = request

	log.Debug().
		Int("index", index).
		Str("id", call.ID).
		Str("name", call.Name).
		Bool("malformed", request.Malformed).
		Msg("tool call finalized")
}

// FinalizedCalls returns the finalized requests in transmission order.
// Calls whose stop never arrived are skipped.
func (a *ToolCallAccumulator) FinalizedCalls() []ToolInvocationRequest {
	var requests []ToolInvocationRequest
	for _, index := range a.order {
		call := a.pending[index]
		if !call.finalized {
			log.Debug().Int("index", index).Str("id", call.ID).Msg("tool call never finalized, skipping")
			continue
		}
		requests = append(requests, call.request)
	}
	return requests
}

// isObject reports whether data parses as a JSON object.
func isObject(data json.RawMessage) bool {
	var obj map[string]interface{}
	return json.Unmarshal(data, &obj) == nil && obj != nil
}

// isNonEmptyObject reports whether data parses as an object with at least
// one key.
func isNonEmptyObject(data json.RawMessage) bool {
	var obj map[string]interface{}
	return json.Unmarshal(data, &obj) == nil && len(obj) > 0
}
