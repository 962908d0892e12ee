package toolkit

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/himanalot/auteur-sub004/pkg/tools"
)

// ScriptRunner executes ExtendScript inside the After Effects host and
// returns whatever the script evaluated to, as text.
type ScriptRunner interface {
	Run(ctx context.Context, script string) (string, error)
}

// RunScriptInput are the arguments of the run_ae_script tool.
type RunScriptInput struct {
	Script      string `json:"script" jsonschema:"description=The ExtendScript source to execute in After Effects"`
	Description string `json:"description,omitempty" jsonschema:"description=One line describing what the script does"`
}

// NewRunScriptTool builds the run_ae_script tool on top of a ScriptRunner.
func NewRunScriptTool(runner ScriptRunner) (*tools.ToolDefinition, error) {
	return tools.NewToolFromFunc(
		"run_ae_script",
		"Execute ExtendScript in the running After Effects instance and return its result. Use for inspecting or modifying the open project.",
		func(ctx context.Context, input RunScriptInput) (string, error) {
			log.Debug().
				Str("description", input.Description).
				Int("script_len", len(input.Script)).
				Msg("running ExtendScript")
			return runner.Run(ctx, input.Script)
		},
	)
}

// RegisterDefaultTools registers the standard toolkit on a registry.
func RegisterDefaultTools(registry tools.ToolRegistry, searcher DocSearcher, runner ScriptRunner) error {
	searchTool, err := NewSearchDocsTool(searcher)
	if err != nil {
		return err
	}
	if err := registry.RegisterTool(searchTool.Name, *searchTool); err != nil {
		return err
	}

	scriptTool, err := NewRunScriptTool(runner)
	if err != nil {
		return err
	}
	return registry.RegisterTool(scriptTool.Name, *scriptTool)
}
