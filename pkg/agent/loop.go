package agent

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/himanalot/auteur-sub004/pkg/claude"
	"github.com/himanalot/auteur-sub004/pkg/claude/api"
	"github.com/himanalot/auteur-sub004/pkg/conversation"
	"github.com/himanalot/auteur-sub004/pkg/events"
	"github.com/himanalot/auteur-sub004/pkg/tools"
)

// ErrRefused marks a model refusal, a terminal condition distinct from
// transport errors. Callers can test for it with errors.Is.
var ErrRefused = errors.New("model refused to answer")

// State names the phases of the loop, for logging and tests.
type State string

const (
	StateIdle         State = "idle"
	StateRequesting   State = "requesting"
	StateStreaming    State = "streaming"
	StateToolDispatch State = "tool_dispatch"
)

// Backend is the streaming model collaborator. api.Client satisfies it.
type Backend interface {
	StreamMessage(ctx context.Context, req *api.MessageRequest) (<-chan api.StreamingEvent, error)
}

// Loop drives one conversation with the model until it completes, fails,
// or runs out of budget. Tool calls requested by the model are dispatched
// strictly sequentially and their results fed back for the next iteration.
type Loop struct {
	backend  Backend
	registry tools.ToolRegistry
	executor *tools.Executor

	systemPrompt string
	model        string
	maxTokens    int
	temperature  *float64
	topP         *float64
	stop         []string
	budget       Budget

	sinks   []events.EventSink
	onDelta func(delta string)
}

type Option func(*Loop)

func New(opts ...Option) (*Loop, error) {
	l := &Loop{
		model:     "claude-sonnet-4-5",
		maxTokens: 4096,
		budget:    DefaultBudget(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	if l.backend == nil {
		return nil, errors.New("agent loop needs a backend")
	}
	if l.registry == nil {
		l.registry = tools.NewInMemoryToolRegistry()
	}
	if l.executor == nil {
		l.executor = tools.NewExecutor(l.registry)
	}
	return l, nil
}

func WithBackend(backend Backend) Option {
	return func(l *Loop) { l.backend = backend }
}

func WithRegistry(registry tools.ToolRegistry) Option {
	return func(l *Loop) { l.registry = registry }
}

func WithExecutor(executor *tools.Executor) Option {
	return func(l *Loop) { l.executor = executor }
}

func WithSystemPrompt(prompt string) Option {
	return func(l *Loop) { l.systemPrompt = prompt }
}

func WithModel(model string) Option {
	return func(l *Loop) { l.model = model }
}

func WithMaxTokens(maxTokens int) Option {
	return func(l *Loop) { l.maxTokens = maxTokens }
}

func WithTemperature(temperature *float64) Option {
	return func(l *Loop) { l.temperature = temperature }
}

func WithTopP(topP *float64) Option {
	return func(l *Loop) { l.topP = topP }
}

func WithStopSequences(stop []string) Option {
	return func(l *Loop) { l.stop = stop }
}

func WithBudget(budget Budget) Option {
	return func(l *Loop) { l.budget = budget }
}

func WithEventSinks(sinks ...events.EventSink) Option {
	return func(l *Loop) { l.sinks = append(l.sinks, sinks...) }
}

// WithDeltaHandler registers a callback invoked synchronously for every
// streamed text fragment, for live display.
func WithDeltaHandler(handler func(delta string)) Option {
	return func(l *Loop) { l.onDelta = handler }
}

// Run starts a fresh session from a single user message.
func (l *Loop) Run(ctx context.Context, userMessage string) (*Session, error) {
	builder := conversation.NewBuilder()
	if err := builder.AppendUserText(userMessage); err != nil {
		return nil, err
	}
	return l.run(ctx, builder)
}

// RunConversation continues from prior history. The last turn must be a
// user turn.
func (l *Loop) RunConversation(ctx context.Context, conv conversation.Conversation) (*Session, error) {
	builder, err := conversation.NewBuilderFromConversation(conv)
	if err != nil {
		return nil, err
	}
	if len(builder.PendingToolUses()) > 0 {
		return nil, conversation.ErrPendingToolUses
	}
	return l.run(ctx, builder)
}

func (l *Loop) run(ctx context.Context, builder *conversation.Builder) (*Session, error) {
	if len(l.sinks) > 0 {
		ctx = events.WithEventSinks(ctx, l.sinks...)
	}

	session := NewSession(l.budget)
	defer func() {
		if session.Conversation == nil {
			session.Conversation = builder.Conversation()
		}
	}()

	state := StateIdle
	transition := func(next State) {
		log.Debug().
			Str("session_id", session.ID).
			Str("from", string(state)).
			Str("to", string(next)).
			Msg("agent: state transition")
		state = next
	}

	apiTools, err := tools.APITools(l.registry)
	if err != nil {
		return nil, err
	}

	events.PublishEventToContext(ctx, events.NewStartEvent(l.metadata(session, "")))

	for {
		transition(StateRequesting)

		req, err := claude.BuildRequestPayload(builder.Conversation(), l.systemPrompt, apiTools, l.model, l.maxTokens)
		if err != nil {
			return l.fail(ctx, session, err)
		}
		req.Temperature = l.temperature
		req.TopP = l.topP
		req.StopSequences = l.stop

		stream, err := l.backend.StreamMessage(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return l.abort(ctx, session, builder, AbortReasonCancelled), nil
			}
			return l.fail(ctx, session, err)
		}

		transition(StateStreaming)
		resp := l.consumeStream(ctx, session, stream)
		session.addUsage(resp.usage)
		session.FinalText = resp.text

		if ctx.Err() != nil {
			return l.abort(ctx, session, builder, AbortReasonCancelled), nil
		}
		if resp.err != nil {
			return l.fail(ctx, session, resp.err)
		}
		if resp.stopReason == api.StopReasonRefusal {
			return l.fail(ctx, session, errors.Wrap(ErrRefused, resp.stopReason))
		}

		toolUses := make([]*conversation.ToolUseBlock, 0, len(resp.calls))
		for _, call := range resp.calls {
			toolUses = append(toolUses, &conversation.ToolUseBlock{ID: call.ID, Name: call.Name, Input: call.Arguments})
		}
		if err := builder.AppendAssistantTurn(resp.text, resp.reasoning, toolUses); err != nil {
			return l.fail(ctx, session, err)
		}

		if len(resp.calls) == 0 {
			session.Conversation = builder.Conversation()
			if session.clipped {
				return l.abort(ctx, session, builder, AbortReasonToolCallsClipped), nil
			}
			return l.complete(ctx, session), nil
		}

		transition(StateToolDispatch)
		results, totalExceeded := l.dispatchTools(ctx, session, resp.calls)
		if err := builder.AppendToolResults(results); err != nil {
			return l.fail(ctx, session, err)
		}

		if ctx.Err() != nil {
			return l.abort(ctx, session, builder, AbortReasonCancelled), nil
		}
		if totalExceeded {
			return l.abort(ctx, session, builder, AbortReasonMaxTotalToolCalls), nil
		}

		session.IterationCount++
		if session.IterationCount >= session.Budget.MaxIterations {
			return l.abort(ctx, session, builder, AbortReasonMaxIterations), nil
		}
	}
}

// dispatchTools executes the finalized calls strictly sequentially, in the
// order the model requested them. Calls past the per-iteration cap or the
// total budget are not executed; they still get a failed result so every
// tool_use block is answered 1:1. The second return value reports that the
// total budget is now exhausted.
func (l *Loop) dispatchTools(ctx context.Context, session *Session, calls []claude.ToolInvocationRequest) ([]*conversation.ToolResultBlock, bool) {
	allowed := len(calls)
	if allowed > session.Budget.MaxToolCallsPerIteration {
		allowed = session.Budget.MaxToolCallsPerIteration
		session.clipped = true
		log.Warn().
			Str("session_id", session.ID).
			Int("requested", len(calls)).
			Int("allowed", allowed).
			Msg("agent: per-iteration tool call limit reached, dropping the rest")
	}

	totalExceeded := false
	if remaining := session.Budget.MaxTotalToolCalls - session.TotalToolCalls; allowed > remaining {
		allowed = remaining
		totalExceeded = true
		log.Warn().
			Str("session_id", session.ID).
			Int("max_total_tool_calls", session.Budget.MaxTotalToolCalls).
			Msg("agent: total tool call budget exhausted")
	}

	results := make([]*conversation.ToolResultBlock, 0, len(calls))
	for i, call := range calls {
		switch {
		case i >= allowed:
			results = append(results, &conversation.ToolResultBlock{
				ToolID:  call.ID,
				Content: "tool call dropped: budget exceeded",
				IsError: true,
			})
		case call.Malformed:
			results = append(results, &conversation.ToolResultBlock{
				ToolID:  call.ID,
				Content: call.ParseError,
				IsError: true,
			})
		default:
			session.TotalToolCalls++
			result := l.executor.Execute(ctx, tools.ToolCall{ID: call.ID, Name: call.Name, Arguments: call.Arguments})
			block := &conversation.ToolResultBlock{ToolID: result.ID, Content: result.Content, IsError: !result.Success}
			if !result.Success && result.Error != "" {
				block.Content = result.Error
			}
			results = append(results, block)
		}
	}
	return results, totalExceeded
}

// streamedResponse is everything one model call produced.
type streamedResponse struct {
	text       string
	reasoning  []*conversation.ReasoningBlock
	calls      []claude.ToolInvocationRequest
	stopReason string
	usage      events.Usage
	err        error
}

type thinkingState struct {
	text      strings.Builder
	signature strings.Builder
}

// consumeStream drains one streaming response. Text deltas are forwarded
// to the caller as they arrive and accumulated into the running buffer;
// tool argument events feed the accumulator; thinking blocks collect their
// text and signature per index.
func (l *Loop) consumeStream(ctx context.Context, session *Session, stream <-chan api.StreamingEvent) streamedResponse {
	accumulator := claude.NewToolCallAccumulator()
	thinking := map[int]*thinkingState{}
	var thinkingOrder []int
	var textBuf strings.Builder

	resp := streamedResponse{}

	for event := range stream {
		switch event.Type {
		case api.ContentBlockStartType:
			if event.ContentBlock == nil {
				continue
			}
			switch event.ContentBlock.Type {
			case "tool_use":
				accumulator.OnStart(event.Index, event.ContentBlock.ID, event.ContentBlock.Name, event.ContentBlock.Input)
			case "thinking":
				state := &thinkingState{}
				state.text.WriteString(event.ContentBlock.Thinking)
				state.signature.WriteString(event.ContentBlock.Signature)
				thinking[event.Index] = state
				thinkingOrder = append(thinkingOrder, event.Index)
			case "text":
				if event.ContentBlock.Text != "" {
					textBuf.WriteString(event.ContentBlock.Text)
				}
			}

		case api.ContentBlockDeltaType:
			if event.Delta == nil {
				continue
			}
			switch event.Delta.Type {
			case api.TextDeltaType:
				textBuf.WriteString(event.Delta.Text)
				if l.onDelta != nil {
					l.onDelta(event.Delta.Text)
				}
				events.PublishEventToContext(ctx, events.NewContentDeltaEvent(
					l.metadata(session, ""), event.Delta.Text, textBuf.String(),
				))
			case api.InputJSONDeltaType:
				accumulator.OnFragment(event.Index, event.Delta.PartialJSON)
			case api.ThinkingDeltaType:
				if state, ok := thinking[event.Index]; ok {
					state.text.WriteString(event.Delta.Thinking)
				}
			case api.SignatureDeltaType:
				if state, ok := thinking[event.Index]; ok {
					state.signature.WriteString(event.Delta.Signature)
				}
			}

		case api.ContentBlockStopType:
			accumulator.OnStop(event.Index)

		case api.MessageDeltaType:
			if event.Delta != nil && event.Delta.StopReason != "" {
				resp.stopReason = event.Delta.StopReason
			}
			if event.Usage != nil {
				resp.usage.InputTokens += event.Usage.InputTokens
				resp.usage.OutputTokens += event.Usage.OutputTokens
			}

		case api.MessageStartType:
			if event.Message != nil {
				resp.usage.InputTokens += event.Message.Usage.InputTokens
				resp.usage.OutputTokens += event.Message.Usage.OutputTokens
			}

		case api.ErrorType:
			if event.Error != nil {
				resp.err = errors.Errorf("%s: %s", event.Error.Type, event.Error.Message)
			} else {
				resp.err = errors.New("backend reported an unspecified error")
			}
		}
	}

	resp.text = textBuf.String()
	resp.calls = accumulator.FinalizedCalls()
	for _, index := range thinkingOrder {
		state := thinking[index]
		resp.reasoning = append(resp.reasoning, &conversation.ReasoningBlock{
			Text:      state.text.String(),
			Signature: state.signature.String(),
		})
	}

	log.Debug().
		Str("session_id", session.ID).
		Str("stop_reason", resp.stopReason).
		Int("tool_calls", len(resp.calls)).
		Int("text_len", len(resp.text)).
		Msg("agent: stream consumed")

	return resp
}

func (l *Loop) metadata(session *Session, stopReason string) events.EventMetadata {
	return events.EventMetadata{
		ID:         uuid.New(),
		SessionID:  session.ID,
		Model:      l.model,
		StopReason: stopReason,
	}
}

func (l *Loop) complete(ctx context.Context, session *Session) *Session {
	session.Status = StatusCompleted
	events.PublishEventToContext(ctx, events.NewChatCompleteEvent(
		l.metadata(session, api.StopReasonEndTurn),
		session.FinalText, session.IterationCount, session.TotalToolCalls,
	))
	log.Info().
		Str("session_id", session.ID).
		Int("iterations", session.IterationCount).
		Int("tool_calls", session.TotalToolCalls).
		Msg("agent: session completed")
	return session
}

func (l *Loop) abort(ctx context.Context, session *Session, builder *conversation.Builder, reason string) *Session {
	session.Status = StatusAborted
	session.AbortReason = reason
	session.Conversation = builder.Conversation()
	events.PublishEventToContext(ctx, events.NewChatAbortedEvent(
		l.metadata(session, ""), session.FinalText, reason,
	))
	log.Warn().
		Str("session_id", session.ID).
		Str("reason", reason).
		Int("iterations", session.IterationCount).
		Int("tool_calls", session.TotalToolCalls).
		Msg("agent: session aborted")
	return session
}

func (l *Loop) fail(ctx context.Context, session *Session, err error) (*Session, error) {
	session.Status = StatusFailed
	session.Err = err
	events.PublishEventToContext(ctx, events.NewErrorEvent(l.metadata(session, ""), err))
	log.Error().
		Str("session_id", session.ID).
		Err(err).
		Msg("agent: session failed")
	return session, err
}
