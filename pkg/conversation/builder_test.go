package conversation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderSimpleExchange(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AppendUserText("hello"))
	require.NoError(t, b.AppendAssistantTurn("hi there", nil, nil))

	conv := b.Conversation()
	require.Len(t, conv, 2)
	assert.Equal(t, RoleUser, conv[0].Role)
	assert.Equal(t, RoleAssistant, conv[1].Role)
	assert.Equal(t, "hi there", conv[1].Text())
	require.NoError(t, conv.Validate())
}

func TestBuilderToolRoundTrip(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AppendUserText("search for me"))
	require.NoError(t, b.AppendAssistantTurn("checking", nil, []*ToolUseBlock{
		{ID: "tool_a", Name: "search", Input: json.RawMessage(`{"q":"x"}`)},
		{ID: "tool_b", Name: "search", Input: json.RawMessage(`{"q":"y"}`)},
	}))

	assert.Equal(t, []string{"tool_a", "tool_b"}, b.PendingToolUses())

	require.NoError(t, b.AppendToolResults([]*ToolResultBlock{
		{ToolID: "tool_a", Content: "result a"},
		{ToolID: "tool_b", Content: "result b", IsError: true},
	}))

	assert.Empty(t, b.PendingToolUses())
	require.NoError(t, b.Conversation().Validate())
}

func TestBuilderRejectsResultsWithoutPendingUses(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AppendUserText("hello"))

	err := b.AppendToolResults([]*ToolResultBlock{{ToolID: "tool_a"}})
	assert.ErrorIs(t, err, ErrNoPendingToolUses)
}

func TestBuilderRejectsMismatchedResults(t *testing.T) {
	newPending := func() *Builder {
		b := NewBuilder()
		require.NoError(t, b.AppendUserText("go"))
		require.NoError(t, b.AppendAssistantTurn("", nil, []*ToolUseBlock{
			{ID: "tool_a", Name: "search", Input: json.RawMessage(`{}`)},
			{ID: "tool_b", Name: "search", Input: json.RawMessage(`{}`)},
		}))
		return b
	}

	// wrong count
	err := newPending().AppendToolResults([]*ToolResultBlock{{ToolID: "tool_a"}})
	assert.Error(t, err)

	// wrong order
	err = newPending().AppendToolResults([]*ToolResultBlock{
		{ToolID: "tool_b"},
		{ToolID: "tool_a"},
	})
	assert.Error(t, err)
}

func TestBuilderRejectsNewTurnsWhileToolsPending(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AppendUserText("go"))
	require.NoError(t, b.AppendAssistantTurn("", nil, []*ToolUseBlock{
		{ID: "tool_a", Name: "search", Input: json.RawMessage(`{}`)},
	}))

	assert.ErrorIs(t, b.AppendUserText("impatient"), ErrPendingToolUses)
	assert.ErrorIs(t, b.AppendAssistantTurn("more", nil, nil), ErrPendingToolUses)
}

func TestBuilderDropsUnsignedReasoning(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AppendUserText("think about it"))
	require.NoError(t, b.AppendAssistantTurn("answer", []*ReasoningBlock{
		{Text: "signed", Signature: "sig"},
		{Text: "unsigned"},
	}, nil))

	conv := b.Conversation()
	blocks := conv[1].Blocks
	require.Len(t, blocks, 2)
	reasoning, ok := blocks[0].(*ReasoningBlock)
	require.True(t, ok)
	assert.Equal(t, "signed", reasoning.Text)
	_, ok = blocks[1].(*TextBlock)
	assert.True(t, ok)
}

func TestBuilderSkipsBlankText(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AppendUserText("go"))
	require.NoError(t, b.AppendAssistantTurn("   \n\t", nil, []*ToolUseBlock{
		{ID: "tool_a", Name: "search", Input: json.RawMessage(`{}`)},
	}))

	conv := b.Conversation()
	require.Len(t, conv[1].Blocks, 1)
	assert.Equal(t, BlockTypeToolUse, conv[1].Blocks[0].BlockType())
}

func TestNewBuilderFromConversationPicksUpPendingUses(t *testing.T) {
	prior := Conversation{
		NewUserTurn("go"),
		{
			Role: RoleAssistant,
			Blocks: []ContentBlock{
				&ToolUseBlock{ID: "tool_a", Name: "search", Input: json.RawMessage(`{}`)},
			},
		},
	}

	b, err := NewBuilderFromConversation(prior)
	require.NoError(t, err)
	assert.Equal(t, []string{"tool_a"}, b.PendingToolUses())

	require.NoError(t, b.AppendToolResults([]*ToolResultBlock{{ToolID: "tool_a", Content: "found it"}}))
	require.NoError(t, b.Conversation().Validate())
}

func TestValidateCatchesBrokenPairing(t *testing.T) {
	broken := Conversation{
		NewUserTurn("go"),
		{
			Role: RoleAssistant,
			Blocks: []ContentBlock{
				&ToolUseBlock{ID: "tool_a", Name: "search", Input: json.RawMessage(`{}`)},
			},
		},
		{
			Role: RoleUser,
			Blocks: []ContentBlock{
				&ToolResultBlock{ToolID: "tool_wrong", Content: "?"},
			},
		},
	}
	assert.Error(t, broken.Validate())
}
