package conversations

import (
	"context"
	"fmt"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanchat-core/server/internal/agent/model"
)

type memConversationRepo struct {
	messages map[string][]*schema.Message
}

func newMemConversationRepo() *memConversationRepo {
	return &memConversationRepo{messages: map[string][]*schema.Message{}}
}

func (m *memConversationRepo) AddMessage(_ context.Context, conversationID string, message *schema.Message) error {
	m.messages[conversationID] = append(m.messages[conversationID], message)
	return nil
}

func (m *memConversationRepo) LoadHistory(_ context.Context, conversationID string) (*model.ConversationHistory, error) {
	return &model.ConversationHistory{
		ConversationID: conversationID,
		Messages:       m.messages[conversationID],
	}, nil
}

func (m *memConversationRepo) ClearHistory(_ context.Context, conversationID string) error {
	delete(m.messages, conversationID)
	return nil
}

func (m *memConversationRepo) GetMessageCount(_ context.Context, conversationID string) (int, error) {
	return len(m.messages[conversationID]), nil
}

func newTestManager(maxTurns int) (*MessagesManager, *memConversationRepo) {
	repo := newMemConversationRepo()
	cfg := model.ConversationConfig{}
	cfg.Planner.MaxTurns = maxTurns
	return NewMessagesManager(repo, cfg), repo
}

func TestProcessPlannerMessageRecordsAndWraps(t *testing.T) {
	mm, repo := newTestManager(6)
	ctx := t.Context()

	out, err := mm.ProcessPlannerMessage(ctx, "conv-1", "show me CTD data")
	require.NoError(t, err)

	assert.Contains(t, out, "<conversation_context>")
	assert.Contains(t, out, "<current_message_to_analyze>")
	assert.Contains(t, out, "UserMessage(show me CTD data)")

	// The utterance was persisted before context assembly.
	require.Len(t, repo.messages["conv-1"], 1)
	assert.Equal(t, schema.User, repo.messages["conv-1"][0].Role)
}

func TestProcessPlannerMessageWindowsHistory(t *testing.T) {
	mm, repo := newTestManager(2)
	ctx := t.Context()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.AddMessage(ctx, "conv-2", schema.UserMessage(fmt.Sprintf("old message %d", i))))
	}

	out, err := mm.ProcessPlannerMessage(ctx, "conv-2", "newest")
	require.NoError(t, err)

	// Only the last two turns make the planner window.
	assert.NotContains(t, out, "old message 0")
	assert.NotContains(t, out, "old message 3")
	assert.Contains(t, out, "old message 4")
	assert.Contains(t, out, "UserMessage(newest)")
}

func TestBuildResponseContextPrependsSystemPrompt(t *testing.T) {
	mm, repo := newTestManager(6)
	ctx := t.Context()

	require.NoError(t, repo.AddMessage(ctx, "conv-3", schema.UserMessage("hello")))
	require.NoError(t, mm.SaveResponse(ctx, "conv-3", "hi there"))

	messages, err := mm.BuildResponseContext(ctx, "conv-3", "system prompt text")
	require.NoError(t, err)

	require.Len(t, messages, 3)
	assert.Equal(t, schema.System, messages[0].Role)
	assert.Equal(t, "system prompt text", messages[0].Content)
	assert.Equal(t, schema.Assistant, messages[2].Role)
}

func TestTrimTail(t *testing.T) {
	msgs := []*schema.Message{
		schema.UserMessage("a"),
		schema.UserMessage("b"),
		schema.UserMessage("c"),
	}

	assert.Len(t, trimTail(msgs, 5), 3)
	assert.Len(t, trimTail(msgs, 0), 3)

	trimmed := trimTail(msgs, 2)
	require.Len(t, trimmed, 2)
	assert.Equal(t, "b", trimmed[0].Content)
}
