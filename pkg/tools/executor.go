package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/himanalot/auteur-sub004/pkg/events"
)

const ErrUnknownTool = "unknown_tool"

// ToolCall is a request to execute a single tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolExecutionResult is the normalized outcome of one tool call. Content
// is always a single text payload regardless of what the handler returned.
type ToolExecutionResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// Executor dispatches tool calls against a registry and normalizes their
// results. Handler panics and errors become failed results, never crashes.
type Executor struct {
	registry ToolRegistry
	timeout  time.Duration
}

type ExecutorOption func(*Executor)

// WithExecutionTimeout bounds each individual tool call. Zero disables the
// per-call timeout and leaves only the caller's context.
func WithExecutionTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = timeout
	}
}

func NewExecutor(registry ToolRegistry, options ...ExecutorOption) *Executor {
	e := &Executor{
		registry: registry,
		timeout:  60 * time.Second,
	}
	for _, option := range options {
		option(e)
	}
	return e
}

// Execute runs a single tool call. A missing handler, a handler error, a
// panic, or a timeout all come back as a failed result.
func (e *Executor) Execute(ctx context.Context, call ToolCall) ToolExecutionResult {
	start := time.Now()

	events.PublishEventToContext(ctx, events.NewToolCallStartEvent(
		events.EventMetadata{},
		events.ToolCall{ID: call.ID, Name: call.Name, Input: string(call.Arguments)},
	))

	result := e.execute(ctx, call)

	log.Debug().
		Str("tool_id", call.ID).
		Str("tool_name", call.Name).
		Bool("success", result.Success).
		Dur("duration", time.Since(start)).
		Msg("tool call executed")

	events.PublishEventToContext(ctx, events.NewToolCallCompleteEvent(
		events.EventMetadata{},
		events.ToolResult{ID: result.ID, Success: result.Success, Content: result.Content, Error: result.Error},
	))

	return result
}

func (e *Executor) execute(ctx context.Context, call ToolCall) (result ToolExecutionResult) {
	result = ToolExecutionResult{ID: call.ID}

	defer func() {
		if r := recover(); r != nil {
			log.Warn().
				Str("tool_name", call.Name).
				Interface("panic", r).
				Msg("tool handler panicked")
			result.Success = false
			result.Content = ""
			result.Error = fmt.Sprintf("tool handler panicked: %v", r)
		}
	}()

	toolDef, err := e.registry.GetTool(call.Name)
	if err != nil {
		result.Error = ErrUnknownTool
		return result
	}

	// schema validation is advisory only, the handler decides what it
	// accepts
	e.validateArguments(toolDef, call)

	execCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	value, err := toolDef.Function.Execute(execCtx, call.Arguments)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Success = true
	result.Content = normalizeContent(value)
	return result
}

// ExecuteAll runs the calls strictly sequentially, in the given order. The
// model has to observe results in the order it requested them, and serial
// execution keeps the total call accounting exact.
func (e *Executor) ExecuteAll(ctx context.Context, calls []ToolCall) []ToolExecutionResult {
	results := make([]ToolExecutionResult, 0, len(calls))
	for _, call := range calls {
		results = append(results, e.Execute(ctx, call))
	}
	return results
}

func (e *Executor) validateArguments(toolDef *ToolDefinition, call ToolCall) {
	if toolDef.InputSchema == nil || len(call.Arguments) == 0 {
		return
	}
	schemaBytes, err := json.Marshal(toolDef.InputSchema)
	if err != nil {
		return
	}
	validation, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaBytes),
		gojsonschema.NewBytesLoader(call.Arguments),
	)
	if err != nil || validation.Valid() {
		return
	}
	for _, desc := range validation.Errors() {
		log.Debug().
			Str("tool_name", call.Name).
			Str("violation", desc.String()).
			Msg("tool arguments do not match schema")
	}
}

// normalizeContent coerces a handler's return value into a single text
// payload. Strings pass through, objects serialize to compact JSON, and
// anything that fails to serialize is stringified.
func normalizeContent(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		serialized, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(serialized)
	}
}
