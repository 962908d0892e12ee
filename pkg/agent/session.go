package agent

import (
	"github.com/google/uuid"

	"github.com/himanalot/auteur-sub004/pkg/conversation"
	"github.com/himanalot/auteur-sub004/pkg/events"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	// StatusFailed covers transport errors and model refusals, both of
	// which are surfaced to the caller rather than recovered locally.
	StatusFailed Status = "failed"
	// StatusAborted covers budget exhaustion and cancellation. The session
	// still carries whatever partial answer had accumulated.
	StatusAborted Status = "aborted"
)

// Abort reasons recorded on the session, machine-distinguishable so callers
// can decide whether to retry with a larger budget.
const (
	AbortReasonMaxIterations     = "max_iterations_exceeded"
	AbortReasonMaxTotalToolCalls = "max_total_tool_calls_exceeded"
	AbortReasonToolCallsClipped  = "tool_calls_per_iteration_clipped"
	AbortReasonCancelled         = "cancelled"
)

// Budget bounds a single session. Zero values fall back to the defaults.
type Budget struct {
	MaxIterations            int `json:"max_iterations" yaml:"max_iterations"`
	MaxToolCallsPerIteration int `json:"max_tool_calls_per_iteration" yaml:"max_tool_calls_per_iteration"`
	MaxTotalToolCalls        int `json:"max_total_tool_calls" yaml:"max_total_tool_calls"`
}

func DefaultBudget() Budget {
	return Budget{
		MaxIterations:            10,
		MaxToolCallsPerIteration: 8,
		MaxTotalToolCalls:        24,
	}
}

func (b Budget) withDefaults() Budget {
	defaults := DefaultBudget()
	if b.MaxIterations <= 0 {
		b.MaxIterations = defaults.MaxIterations
	}
	if b.MaxToolCallsPerIteration <= 0 {
		b.MaxToolCallsPerIteration = defaults.MaxToolCallsPerIteration
	}
	if b.MaxTotalToolCalls <= 0 {
		b.MaxTotalToolCalls = defaults.MaxTotalToolCalls
	}
	return b
}

// Session holds the full state of one agent run. It is mutated only by the
// loop that owns it; sessions never share state with each other.
type Session struct {
	ID           string
	Conversation conversation.Conversation

	IterationCount int
	TotalToolCalls int
	Budget         Budget

	Status      Status
	FinalText   string
	AbortReason string
	Err         error

	Usage events.Usage

	// clipped records that a per-iteration tool call cap was hit at some
	// point, which downgrades an otherwise complete run to Aborted
	clipped bool
}

func NewSession(budget Budget) *Session {
	return &Session{
		ID:     uuid.New().String(),
		Budget: budget.withDefaults(),
		Status: StatusRunning,
	}
}

// Terminal reports whether the session reached a terminal state.
func (s *Session) Terminal() bool {
	return s.Status != StatusRunning
}

func (s *Session) addUsage(u events.Usage) {
	s.Usage.InputTokens += u.InputTokens
	s.Usage.OutputTokens += u.OutputTokens
}
