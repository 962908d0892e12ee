package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type BlockType string

const (
	BlockTypeText       BlockType = "text"
	BlockTypeToolUse    BlockType = "tool_use"
	BlockTypeToolResult BlockType = "tool_result"
	BlockTypeReasoning  BlockType = "reasoning"
)

// ContentBlock is one semantically distinct unit within a single turn.
type ContentBlock interface {
	BlockType() BlockType
	String() string
}

type TextBlock struct {
	Text string `json:"text" yaml:"text"`
}

func (t *TextBlock) BlockType() BlockType {
	return BlockTypeText
}

func (t *TextBlock) String() string {
	return t.Text
}

var _ ContentBlock = (*TextBlock)(nil)

// ToolUseBlock records a tool invocation requested by the model.
type ToolUseBlock struct {
	ID    string          `json:"id" yaml:"id"`
	Name  string          `json:"name" yaml:"name"`
	Input json.RawMessage `json:"input" yaml:"input"`
}

func (t *ToolUseBlock) BlockType() BlockType {
	return BlockTypeToolUse
}

func (t *ToolUseBlock) String() string {
	return fmt.Sprintf("ToolUseBlock{ID: %s, Name: %s, Input: %s}", t.ID, t.Name, t.Input)
}

var _ ContentBlock = (*ToolUseBlock)(nil)

// ToolResultBlock carries the normalized output of one tool execution back to
// the model. ToolID references the ToolUseBlock it answers.
type ToolResultBlock struct {
	ToolID  string `json:"tool_id" yaml:"tool_id"`
	Content string `json:"content" yaml:"content"`
	IsError bool   `json:"is_error,omitempty" yaml:"is_error,omitempty"`
}

func (t *ToolResultBlock) BlockType() BlockType {
	return BlockTypeToolResult
}

func (t *ToolResultBlock) String() string {
	return fmt.Sprintf("ToolResultBlock{ToolID: %s, IsError: %v, Content: %s}", t.ToolID, t.IsError, t.Content)
}

var _ ContentBlock = (*ToolResultBlock)(nil)

// ReasoningBlock holds model thinking text together with the backend's opaque
// signature. The signature is an external contract of the backend: we never
// verify it locally, and a block without one must not be replayed.
type ReasoningBlock struct {
	Text      string `json:"text" yaml:"text"`
	Signature string `json:"signature,omitempty" yaml:"signature,omitempty"`
}

func (r *ReasoningBlock) BlockType() BlockType {
	return BlockTypeReasoning
}

func (r *ReasoningBlock) String() string {
	return fmt.Sprintf("ReasoningBlock{Text: %s}", r.Text)
}

// Replayable reports whether the block may be sent back to the model.
func (r *ReasoningBlock) Replayable() bool {
	return r.Signature != ""
}

var _ ContentBlock = (*ReasoningBlock)(nil)

// Turn is a single contribution to the dialogue. It is immutable once
// appended to a Conversation.
type Turn struct {
	Role   Role           `json:"role" yaml:"role"`
	Blocks []ContentBlock `json:"blocks" yaml:"blocks"`
}

// Text concatenates the text blocks of the turn.
func (t *Turn) Text() string {
	var sb strings.Builder
	for _, b := range t.Blocks {
		if tb, ok := b.(*TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	return sb.String()
}

// ToolUses returns the tool_use blocks of the turn, in order.
func (t *Turn) ToolUses() []*ToolUseBlock {
	var out []*ToolUseBlock
	for _, b := range t.Blocks {
		if tu, ok := b.(*ToolUseBlock); ok {
			out = append(out, tu)
		}
	}
	return out
}

// Conversation is the ordered list of turns exchanged so far.
type Conversation []*Turn

// Validate checks the tool_use / tool_result pairing invariant: every turn
// containing tool_use blocks must be followed by exactly one user turn whose
// tool_result blocks answer those ids 1:1, in order.
func (c Conversation) Validate() error {
	for i, t := range c {
		uses := t.ToolUses()
		if len(uses) == 0 {
			continue
		}
		if t.Role != RoleAssistant {
			return fmt.Errorf("turn %d: tool_use blocks on non-assistant turn", i)
		}
		if i+1 >= len(c) {
			return fmt.Errorf("turn %d: tool_use blocks without a following tool_result turn", i)
		}
		next := c[i+1]
		if next.Role != RoleUser {
			return fmt.Errorf("turn %d: tool results must be carried by a user turn", i+1)
		}
		var results []*ToolResultBlock
		for _, b := range next.Blocks {
			tr, ok := b.(*ToolResultBlock)
			if !ok {
				return fmt.Errorf("turn %d: unexpected %s block in tool result turn", i+1, b.BlockType())
			}
			results = append(results, tr)
		}
		if len(results) != len(uses) {
			return fmt.Errorf("turn %d: %d tool results for %d tool uses", i+1, len(results), len(uses))
		}
		for j, use := range uses {
			if results[j].ToolID != use.ID {
				return fmt.Errorf("turn %d: tool result %d references %s, expected %s", i+1, j, results[j].ToolID, use.ID)
			}
		}
	}
	return nil
}

// NewUserTurn builds a user turn holding a single text block.
func NewUserTurn(text string) *Turn {
	return &Turn{
		Role:   RoleUser,
		Blocks: []ContentBlock{&TextBlock{Text: text}},
	}
}
