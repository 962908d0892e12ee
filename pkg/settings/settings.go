package settings

import (
	"os"
	"time"

	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/himanalot/auteur-sub004/pkg/agent"
)

// ChatSettings configures the model side of a session.
type ChatSettings struct {
	Model             string   `yaml:"model,omitempty"`
	MaxResponseTokens int      `yaml:"max_response_tokens,omitempty"`
	Temperature       *float64 `yaml:"temperature,omitempty"`
	TopP              *float64 `yaml:"top_p,omitempty"`
	Stop              []string `yaml:"stop,omitempty"`
}

func NewChatSettings() *ChatSettings {
	return &ChatSettings{
		Model:             "claude-sonnet-4-5",
		MaxResponseTokens: 4096,
		Stop:              []string{},
	}
}

func (s *ChatSettings) Clone() *ChatSettings {
	return clone.Clone(s).(*ChatSettings)
}

// ClientSettings configures the HTTP client talking to the backend.
type ClientSettings struct {
	APIKey     string         `yaml:"api_key,omitempty"`
	BaseURL    string         `yaml:"base_url,omitempty"`
	APIVersion string         `yaml:"api_version,omitempty"`
	Timeout    *time.Duration `yaml:"timeout,omitempty"`
}

func NewClientSettings() *ClientSettings {
	return &ClientSettings{}
}

func (cs *ClientSettings) Clone() *ClientSettings {
	return clone.Clone(cs).(*ClientSettings)
}

// UnmarshalYAML converts a plain integer timeout (seconds) into a Duration.
func (cs *ClientSettings) UnmarshalYAML(value *yaml.Node) error {
	type Alias ClientSettings
	aux := &struct {
		Timeout *int `yaml:"timeout,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(cs),
	}
	if err := value.Decode(aux); err != nil {
		return err
	}
	if aux.Timeout != nil {
		t := time.Duration(*aux.Timeout) * time.Second
		cs.Timeout = &t
	}
	return nil
}

// AgentSettings configures the loop itself.
type AgentSettings struct {
	Budget              agent.Budget  `yaml:"budget,omitempty"`
	ToolTimeout         time.Duration `yaml:"tool_timeout,omitempty"`
	SystemPromptFile    string        `yaml:"system_prompt_file,omitempty"`
	TranscriptDirectory string        `yaml:"transcript_directory,omitempty"`
}

func NewAgentSettings() *AgentSettings {
	return &AgentSettings{
		Budget:      agent.DefaultBudget(),
		ToolTimeout: 60 * time.Second,
	}
}

func (as *AgentSettings) Clone() *AgentSettings {
	return clone.Clone(as).(*AgentSettings)
}

// Settings bundles everything needed to run a session.
type Settings struct {
	Chat   *ChatSettings   `yaml:"chat,omitempty"`
	Client *ClientSettings `yaml:"client,omitempty"`
	Agent  *AgentSettings  `yaml:"agent,omitempty"`
}

func NewSettings() *Settings {
	return &Settings{
		Chat:   NewChatSettings(),
		Client: NewClientSettings(),
		Agent:  NewAgentSettings(),
	}
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

// LoadFromFile reads settings from a YAML file, filling gaps with defaults.
func LoadFromFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read settings file %s", path)
	}

	s := NewSettings()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, errors.Wrapf(err, "failed to parse settings file %s", path)
	}
	if s.Chat == nil {
		s.Chat = NewChatSettings()
	}
	if s.Client == nil {
		s.Client = NewClientSettings()
	}
	if s.Agent == nil {
		s.Agent = NewAgentSettings()
	}
	return s, nil
}
