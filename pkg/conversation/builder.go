package conversation

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrNoPendingToolUses is returned when tool results are appended without a
// preceding assistant turn that requested tools.
var ErrNoPendingToolUses = errors.New("no pending tool_use turn to attach results to")

// ErrPendingToolUses is returned when a new turn is appended while the last
// assistant turn still awaits tool results.
var ErrPendingToolUses = errors.New("previous tool_use turn still awaits tool results")

// Builder assembles a Conversation while enforcing the tool_use/tool_result
// ordering invariant. Turns are immutable once appended.
type Builder struct {
	turns Conversation

	// ids of tool_use blocks in the last assistant turn, in request order,
	// still awaiting a matching tool_result turn
	pending []string
}

func NewBuilder() *Builder {
	return &Builder{}
}

// NewBuilderFromConversation seeds a builder with prior history, picking up
// an unanswered tool_use turn at the tail if there is one.
func NewBuilderFromConversation(c Conversation) (*Builder, error) {
	b := &Builder{turns: append(Conversation{}, c...)}
	if len(c) > 0 {
		last := c[len(c)-1]
		if last.Role == RoleAssistant {
			for _, use := range last.ToolUses() {
				b.pending = append(b.pending, use.ID)
			}
		}
	}
	if len(b.turns) > 0 {
		if err := b.turns[:len(b.turns)-1].Validate(); err != nil {
			return nil, errors.Wrap(err, "prior conversation is inconsistent")
		}
	}
	return b, nil
}

// AppendUserText appends a plain user turn.
func (b *Builder) AppendUserText(text string) error {
	if len(b.pending) > 0 {
		return ErrPendingToolUses
	}
	b.turns = append(b.turns, NewUserTurn(text))
	return nil
}

// AppendAssistantTurn builds an assistant turn with reasoning blocks first,
// then the text (only if non-empty after trimming), then one tool_use block
// per requested invocation, in request order. Reasoning blocks without a
// signature are dropped since the backend's signature is the only thing that
// makes them safe to replay.
func (b *Builder) AppendAssistantTurn(text string, reasoning []*ReasoningBlock, toolUses []*ToolUseBlock) error {
	if len(b.pending) > 0 {
		return ErrPendingToolUses
	}

	var blocks []ContentBlock
	for _, r := range reasoning {
		if !r.Replayable() {
			log.Debug().Msg("dropping unsigned reasoning block")
			continue
		}
		blocks = append(blocks, r)
	}
	if strings.TrimSpace(text) != "" {
		blocks = append(blocks, &TextBlock{Text: text})
	}
	for _, use := range toolUses {
		blocks = append(blocks, use)
		b.pending = append(b.pending, use.ID)
	}

	b.turns = append(b.turns, &Turn{Role: RoleAssistant, Blocks: blocks})
	return nil
}

// AppendToolResults appends a single user turn carrying one tool_result block
// per pending tool_use, in the order the tools were invoked. It fails if no
// tool_use turn is awaiting results or if the results do not answer the
// pending ids 1:1.
func (b *Builder) AppendToolResults(results []*ToolResultBlock) error {
	if len(b.pending) == 0 {
		return ErrNoPendingToolUses
	}
	if len(results) != len(b.pending) {
		return errors.Errorf("got %d tool results for %d pending tool uses", len(results), len(b.pending))
	}
	blocks := make([]ContentBlock, 0, len(results))
	for i, r := range results {
		if r.ToolID != b.pending[i] {
			return errors.Errorf("tool result %d references %s, expected %s", i, r.ToolID, b.pending[i])
		}
		blocks = append(blocks, r)
	}

	b.turns = append(b.turns, &Turn{Role: RoleUser, Blocks: blocks})
	b.pending = nil
	return nil
}

// PendingToolUses returns the ids of tool_use blocks awaiting results.
func (b *Builder) PendingToolUses() []string {
	return append([]string{}, b.pending...)
}

// Conversation returns the assembled conversation.
func (b *Builder) Conversation() Conversation {
	return append(Conversation{}, b.turns...)
}
