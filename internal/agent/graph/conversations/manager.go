package conversations

import (
	"context"
	"strings"

	"github.com/oceanchat-core/server/internal/agent/model"

	"github.com/cloudwego/eino/schema"
)

// MessagesManager persists turns and builds LLM context windows from the
// conversation history.
type MessagesManager struct {
	conversationRepo model.ConversationRepository
	plannerMaxTurns  int
}

func NewMessagesManager(conversationRepo model.ConversationRepository, config model.ConversationConfig) *MessagesManager {
	return &MessagesManager{
		conversationRepo: conversationRepo,
		plannerMaxTurns:  config.Planner.MaxTurns,
	}
}

// ProcessPlannerMessage records the user utterance and returns the planner's
// analysis context: the recent conversation window plus the current message.
func (cm *MessagesManager) ProcessPlannerMessage(ctx context.Context, conversationID string, query string) (string, error) {
	userMsg := schema.UserMessage(query)
	if err := cm.conversationRepo.AddMessage(ctx, conversationID, userMsg); err != nil {
		return "", err
	}

	history, err := cm.conversationRepo.LoadHistory(ctx, conversationID)
	if err != nil {
		return "", err
	}

	conversationContext := cm.buildPlannerContext(history.Messages)

	var fullContext strings.Builder
	fullContext.WriteString(conversationContext)
	fullContext.WriteString("\n<current_message_to_analyze>\n")
	fullContext.WriteString("UserMessage(" + query + ")\n")
	fullContext.WriteString("</current_message_to_analyze>")

	return fullContext.String(), nil
}

func (cm *MessagesManager) buildPlannerContext(messages []*schema.Message) string {
	recentMessages := trimTail(messages, cm.plannerMaxTurns)

	var contextBuilder strings.Builder
	contextBuilder.WriteString("<conversation_context>\n")

	for _, msg := range recentMessages {
		if msg == nil || msg.Content == "" {
			continue
		}
		switch msg.Role {
		case schema.User:
			contextBuilder.WriteString("UserMessage(" + msg.Content + ")\n")
		case schema.Assistant:
			contextBuilder.WriteString("AssistantMessage(" + msg.Content + ")\n")
		}
	}

	contextBuilder.WriteString("</conversation_context>")
	return contextBuilder.String()
}

// BuildResponseContext assembles the composer's message list: the system
// prompt followed by the persisted history. The current turn's user message
// is already part of the history at this point.
func (cm *MessagesManager) BuildResponseContext(ctx context.Context, conversationID string, systemPrompt string) ([]*schema.Message, error) {
	history, err := cm.conversationRepo.LoadHistory(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
	}

	messages = append(messages, history.Messages...)

	return messages, nil
}

func (cm *MessagesManager) SaveResponse(ctx context.Context, conversationID string, content string) error {
	assistantMsg := schema.AssistantMessage(content, nil)
	return cm.conversationRepo.AddMessage(ctx, conversationID, assistantMsg)
}

func trimTail(messages []*schema.Message, maxTurns int) []*schema.Message {
	if maxTurns <= 0 || len(messages) <= maxTurns {
		result := make([]*schema.Message, len(messages))
		copy(result, messages)
		return result
	}
	source := messages[len(messages)-maxTurns:]
	result := make([]*schema.Message, len(source))
	copy(result, source)
	return result
}
