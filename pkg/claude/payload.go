package claude

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/himanalot/auteur-sub004/pkg/claude/api"
	"github.com/himanalot/auteur-sub004/pkg/conversation"
)

// BuildRequestPayload serializes a conversation plus system prompt and tool
// definitions into a Messages API request. Reasoning blocks without a
// signature are dropped before serialization; the signature is the only
// thing that makes replayed thinking acceptable to the backend.
func BuildRequestPayload(
	conv conversation.Conversation,
	systemPrompt string,
	tools []api.Tool,
	model string,
	maxTokens int,
) (*api.MessageRequest, error) {
	if len(conv) == 0 {
		return nil, errors.New("cannot build a request from an empty conversation")
	}

	messages := make([]api.Message, 0, len(conv))
	for i, turn := range conv {
		message, err := turnToMessage(turn)
		if err != nil {
			return nil, errors.Wrapf(err, "turn %d", i)
		}
		messages = append(messages, message)
	}

	return &api.MessageRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: maxTokens,
		System:    systemPrompt,
		Tools:     tools,
	}, nil
}

func turnToMessage(turn *conversation.Turn) (api.Message, error) {
	content := make([]api.Content, 0, len(turn.Blocks))
	for _, block := range turn.Blocks {
		switch b := block.(type) {
		case *conversation.TextBlock:
			content = append(content, api.NewTextContent(b.Text))
		case *conversation.ToolUseBlock:
			content = append(content, api.NewToolUseContent(b.ID, b.Name, b.Input))
		case *conversation.ToolResultBlock:
			content = append(content, api.NewToolResultContent(b.ToolID, b.Content, b.IsError))
		case *conversation.ReasoningBlock:
			if !b.Replayable() {
				log.Debug().Msg("dropping unsigned reasoning block from request payload")
				continue
			}
			content = append(content, api.NewThinkingContent(b.Text, b.Signature))
		default:
			return api.Message{}, errors.Errorf("unsupported content block type %s", block.BlockType())
		}
	}

	return api.Message{
		Role:    string(turn.Role),
		Content: content,
	}, nil
}
