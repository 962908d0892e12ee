package prompt

import (
	_ "embed"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
)

//go:embed templates/system.tmpl
var systemTemplate string

// ToolSummary is what the system prompt tells the model about a tool.
type ToolSummary struct {
	Name        string
	Description string
}

// SystemPromptData parameterizes the system prompt template.
type SystemPromptData struct {
	AssistantName  string
	AEVersion      string
	Tools          []ToolSummary
	ProjectContext string
}

// RenderSystemPrompt renders the built-in system prompt template.
func RenderSystemPrompt(data SystemPromptData) (string, error) {
	return Render(systemTemplate, data)
}

// Render executes a template with the sprig function map.
func Render(tmpl string, data interface{}) (string, error) {
	t, err := template.New("prompt").Funcs(sprig.FuncMap()).Parse(tmpl)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse prompt template")
	}

	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", errors.Wrap(err, "failed to render prompt template")
	}
	return sb.String(), nil
}
