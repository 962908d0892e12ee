package claude

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulatorSeedResolvesImmediately(t *testing.T) {
	acc := NewToolCallAccumulator()
	acc.OnStart(0, "tool_1", "search", json.RawMessage(`{"query":"layers"}`))
	acc.OnStop(0)

	calls := acc.FinalizedCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "tool_1", calls[0].ID)
	assert.Equal(t, "search", calls[0].Name)
	assert.False(t, calls[0].Malformed)
	assert.JSONEq(t, `{"query":"layers"}`, string(calls[0].Arguments))
}

func TestAccumulatorFragmentedReconstruction(t *testing.T) {
	original := `{"query":"wiggle expression","limit":5,"filters":{"category":"expressions","tags":["animation","script"]}}`

	for n := 1; n <= len(original); n++ {
		t.Run(fmt.Sprintf("fragments_%d", n), func(t *testing.T) {
			acc := NewToolCallAccumulator()
			acc.OnStart(0, "tool_1", "search", nil)

			size := (len(original) + n - 1) / n
			for start := 0; start < len(original); start += size {
				end := start + size
				if end > len(original) {
					end = len(original)
				}
				acc.OnFragment(0, original[start:end])
			}
			acc.OnStop(0)

			calls := acc.FinalizedCalls()
			require.Len(t, calls, 1)
			assert.False(t, calls[0].Malformed)
			assert.JSONEq(t, original, string(calls[0].Arguments))
		})
	}
}

func TestAccumulatorFragmentsOverrideSeed(t *testing.T) {
	acc := NewToolCallAccumulator()
	acc.OnStart(0, "tool_1", "search", json.RawMessage(`{"query":"old"}`))
	acc.OnFragment(0, `{"query":`)
	acc.OnFragment(0, `"new"}`)
	acc.OnStop(0)

	calls := acc.FinalizedCalls()
	require.Len(t, calls, 1)
	assert.JSONEq(t, `{"query":"new"}`, string(calls[0].Arguments))
}

func TestAccumulatorEmptyArgumentsAreNotMalformed(t *testing.T) {
	acc := NewToolCallAccumulator()
	acc.OnStart(0, "tool_1", "list_projects", nil)
	acc.OnStop(0)

	calls := acc.FinalizedCalls()
	require.Len(t, calls, 1)
	assert.False(t, calls[0].Malformed)
	assert.JSONEq(t, `{}`, string(calls[0].Arguments))
}

func TestAccumulatorMalformedArguments(t *testing.T) {
	acc := NewToolCallAccumulator()
	acc.OnStart(0, "tool_1", "search", nil)
	acc.OnFragment(0, `{"query": "unterminated`)
	acc.OnStop(0)

	calls := acc.FinalizedCalls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].Malformed)
	assert.NotEmpty(t, calls[0].ParseError)
	assert.JSONEq(t, `{}`, string(calls[0].Arguments))
}

func TestAccumulatorIdempotentStop(t *testing.T) {
	acc := NewToolCallAccumulator()
	acc.OnStart(0, "tool_1", "search", nil)
	acc.OnFragment(0, `{"query":"x"}`)
	acc.OnStop(0)
	first := acc.FinalizedCalls()

	acc.OnStop(0)
	second := acc.FinalizedCalls()

	require.Len(t, second, 1)
	assert.Equal(t, first, second)
}

func TestAccumulatorFragmentsAfterStopAreIgnored(t *testing.T) {
	acc := NewToolCallAccumulator()
	acc.OnStart(0, "tool_1", "search", nil)
	acc.OnFragment(0, `{"query":"x"}`)
	acc.OnStop(0)
	acc.OnFragment(0, `{"query":"y"}`)
	acc.OnStop(0)

	calls := acc.FinalizedCalls()
	require.Len(t, calls, 1)
	assert.JSONEq(t, `{"query":"x"}`, string(calls[0].Arguments))
}

func TestAccumulatorNonContiguousIndices(t *testing.T) {
	acc := NewToolCallAccumulator()
	acc.OnStart(2, "tool_a", "search", nil)
	acc.OnStart(7, "tool_b", "run_script", nil)
	acc.OnFragment(7, `{"script":"b"}`)
	acc.OnFragment(2, `{"query":"a"}`)
	acc.OnStop(7)
	acc.OnStop(2)

	calls := acc.FinalizedCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "tool_a", calls[0].ID)
	assert.Equal(t, "tool_b", calls[1].ID)
	assert.JSONEq(t, `{"query":"a"}`, string(calls[0].Arguments))
	assert.JSONEq(t, `{"script":"b"}`, string(calls[1].Arguments))
}

func TestAccumulatorUnknownIndexIgnored(t *testing.T) {
	acc := NewToolCallAccumulator()
	acc.OnFragment(4, `{"query":"x"}`)
	acc.OnStop(4)
	assert.Empty(t, acc.FinalizedCalls())
}

func TestAccumulatorUnstoppedCallSkipped(t *testing.T) {
	acc := NewToolCallAccumulator()
	acc.OnStart(0, "tool_a", "search", nil)
	acc.OnFragment(0, `{"query":"a"}`)
	acc.OnStop(0)
	acc.OnStart(1, "tool_b", "search", nil)
	acc.OnFragment(1, `{"query":"b"}`)

	calls := acc.FinalizedCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "tool_a", calls[0].ID)
}
