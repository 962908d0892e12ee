package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchInput struct {
	Query string `json:"query" jsonschema:"description=What to search for"`
	Limit int    `json:"limit,omitempty"`
}

func TestNewToolFromFuncSchema(t *testing.T) {
	tool, err := NewToolFromFunc("search", "searches the docs", func(input searchInput) (string, error) {
		return input.Query, nil
	})
	require.NoError(t, err)

	assert.Equal(t, "search", tool.Name)
	require.NotNil(t, tool.InputSchema)

	apiTool, err := tool.APITool()
	require.NoError(t, err)

	var schema map[string]interface{}
	require.NoError(t, json.Unmarshal(apiTool.InputSchema, &schema))
	assert.Equal(t, "object", schema["type"])
	properties, ok := schema["properties"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, properties, "query")
	assert.Contains(t, properties, "limit")
}

func TestNewToolFromFuncContextSignature(t *testing.T) {
	tool, err := NewToolFromFunc("search", "searches the docs", func(ctx context.Context, input searchInput) (string, error) {
		return input.Query, nil
	})
	require.NoError(t, err)

	result, err := tool.Function.Execute(context.Background(), json.RawMessage(`{"query":"masks"}`))
	require.NoError(t, err)
	assert.Equal(t, "masks", result)
}

func TestNewToolFromFuncRejectsBadSignatures(t *testing.T) {
	_, err := NewToolFromFunc("bad", "", "not a function")
	assert.Error(t, err)

	_, err = NewToolFromFunc("bad", "", func(input searchInput) string { return "" })
	assert.Error(t, err)

	_, err = NewToolFromFunc("bad", "", func(a, b searchInput) (string, error) { return "", nil })
	assert.Error(t, err)
}

func TestRegistryOrderAndClone(t *testing.T) {
	registry := NewInMemoryToolRegistry()

	for _, name := range []string{"gamma", "alpha", "beta"} {
		tool, err := NewToolFromFunc(name, "", func(input searchInput) (string, error) { return "", nil })
		require.NoError(t, err)
		require.NoError(t, registry.RegisterTool(name, *tool))
	}

	names := func(defs []ToolDefinition) []string {
		var out []string
		for _, d := range defs {
			out = append(out, d.Name)
		}
		return out
	}

	assert.Equal(t, []string{"gamma", "alpha", "beta"}, names(registry.ListTools()))
	assert.Equal(t, 3, registry.Count())
	assert.True(t, registry.HasTool("alpha"))

	cloned := registry.Clone()
	require.NoError(t, registry.UnregisterTool("alpha"))
	assert.Equal(t, []string{"gamma", "beta"}, names(registry.ListTools()))
	assert.Equal(t, []string{"gamma", "alpha", "beta"}, names(cloned.ListTools()))
}
