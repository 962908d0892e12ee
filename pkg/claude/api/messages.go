package api

import "encoding/json"

// MessageRequest represents the Messages API request payload.
type MessageRequest struct {
	Model         string    `json:"model"`
	Messages      []Message `json:"messages"`
	MaxTokens     int       `json:"max_tokens"`
	StopSequences []string  `json:"stop_sequences,omitempty"`
	Stream        bool      `json:"stream"`
	System        string    `json:"system,omitempty"`
	Temperature   *float64  `json:"temperature,omitempty"`
	Thinking      *Thinking `json:"thinking,omitempty"`
	Tools         []Tool    `json:"tools,omitempty"`
	TopP          *float64  `json:"top_p,omitempty"`
}

// Tool represents a tool the model can request.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Thinking enables extended thinking with the given token budget.
type Thinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

// Message is a single message in the conversation, with its content
// always expressed as a block list.
type Message struct {
	Role    string    `json:"role"`
	Content []Content `json:"content"`
}

// Content is a single content block of any type. Exactly the fields for
// the block's type are set; everything else stays at its zero value and
// is omitted on the wire.
type Content struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`

	// thinking
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`
}

func NewTextContent(text string) Content {
	return Content{Type: "text", Text: text}
}

func NewToolUseContent(toolID, toolName string, toolInput json.RawMessage) Content {
	return Content{Type: "tool_use", ID: toolID, Name: toolName, Input: toolInput}
}

func NewToolResultContent(toolUseID, content string, isError bool) Content {
	return Content{Type: "tool_result", ToolUseID: toolUseID, Content: content, IsError: isError}
}

func NewThinkingContent(thinking, signature string) Content {
	return Content{Type: "thinking", Thinking: thinking, Signature: signature}
}

// MessageResponse represents the Messages API response payload. In a
// streaming exchange it arrives inside the message_start event with its
// content still empty.
type MessageResponse struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Role         string    `json:"role"`
	Content      []Content `json:"content"`
	Model        string    `json:"model"`
	StopReason   string    `json:"stop_reason,omitempty"`
	StopSequence string    `json:"stop_sequence,omitempty"`
	Usage        Usage     `json:"usage"`
}

// Stop reasons reported in message_delta events.
const (
	StopReasonEndTurn      = "end_turn"
	StopReasonToolUse      = "tool_use"
	StopReasonMaxTokens    = "max_tokens"
	StopReasonStopSequence = "stop_sequence"
	StopReasonRefusal      = "refusal"
)
