package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/oceanchat-core/server/internal/agent/model"
)

//go:embed template/response_prompt.txt
var composerSystemPrompt string

// RenderResponseSystem renders the response-composer system prompt and
// triggers prompt callbacks. retrievedContext is the joined ranked snippet
// text for this turn (may be empty).
func RenderResponseSystem(ctx context.Context, config model.ResponsePromptConfig, retrievedContext string) (string, error) {
	if retrievedContext == "" {
		retrievedContext = "(none)"
	}
	maxRows := config.MaxTableRows
	if maxRows <= 0 {
		maxRows = 20
	}

	// Render via Eino prompt component (Go template) to both format and emit callbacks
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(composerSystemPrompt),
	)
	vars := map[string]any{
		"ObservatoryName":  config.ObservatoryName,
		"MaxTableRows":     maxRows,
		"RetrievedContext": retrievedContext,
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("response prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("response prompt render: empty result")
	}
	return msgs[0].Content, nil
}
