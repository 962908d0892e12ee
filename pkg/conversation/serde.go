package conversation

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// blockYAML is the flattened wire form of a ContentBlock for transcripts.
type blockYAML struct {
	Kind      BlockType `yaml:"kind"`
	Text      string    `yaml:"text,omitempty"`
	ID        string    `yaml:"id,omitempty"`
	Name      string    `yaml:"name,omitempty"`
	Input     string    `yaml:"input,omitempty"`
	ToolID    string    `yaml:"tool_id,omitempty"`
	Content   string    `yaml:"content,omitempty"`
	IsError   bool      `yaml:"is_error,omitempty"`
	Signature string    `yaml:"signature,omitempty"`
}

type turnYAML struct {
	Role   Role        `yaml:"role"`
	Blocks []blockYAML `yaml:"blocks"`
}

func (t *Turn) MarshalYAML() (interface{}, error) {
	out := turnYAML{Role: t.Role}
	for _, b := range t.Blocks {
		switch block := b.(type) {
		case *TextBlock:
			out.Blocks = append(out.Blocks, blockYAML{Kind: BlockTypeText, Text: block.Text})
		case *ToolUseBlock:
			out.Blocks = append(out.Blocks, blockYAML{Kind: BlockTypeToolUse, ID: block.ID, Name: block.Name, Input: string(block.Input)})
		case *ToolResultBlock:
			out.Blocks = append(out.Blocks, blockYAML{Kind: BlockTypeToolResult, ToolID: block.ToolID, Content: block.Content, IsError: block.IsError})
		case *ReasoningBlock:
			out.Blocks = append(out.Blocks, blockYAML{Kind: BlockTypeReasoning, Text: block.Text, Signature: block.Signature})
		default:
			return nil, errors.Errorf("unknown block type: %s", b.BlockType())
		}
	}
	return out, nil
}

func (t *Turn) UnmarshalYAML(value *yaml.Node) error {
	var raw turnYAML
	if err := value.Decode(&raw); err != nil {
		return err
	}
	t.Role = raw.Role
	t.Blocks = nil
	for _, b := range raw.Blocks {
		switch b.Kind {
		case BlockTypeText:
			t.Blocks = append(t.Blocks, &TextBlock{Text: b.Text})
		case BlockTypeToolUse:
			t.Blocks = append(t.Blocks, &ToolUseBlock{ID: b.ID, Name: b.Name, Input: json.RawMessage(b.Input)})
		case BlockTypeToolResult:
			t.Blocks = append(t.Blocks, &ToolResultBlock{ToolID: b.ToolID, Content: b.Content, IsError: b.IsError})
		case BlockTypeReasoning:
			t.Blocks = append(t.Blocks, &ReasoningBlock{Text: b.Text, Signature: b.Signature})
		default:
			return errors.Errorf("unknown block kind: %s", b.Kind)
		}
	}
	return nil
}

// SaveTranscript writes the conversation to path as YAML.
func SaveTranscript(path string, c Conversation) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal conversation")
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return errors.Wrapf(err, "write transcript %s", path)
	}
	return nil
}

// LoadTranscript reads a YAML conversation written by SaveTranscript.
func LoadTranscript(path string) (Conversation, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read transcript %s", path)
	}
	var c Conversation
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, errors.Wrap(err, "unmarshal conversation")
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "loaded transcript is inconsistent")
	}
	return c, nil
}
