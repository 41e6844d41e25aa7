package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/oceanchat-core/server/internal/agent/model"
)

//go:embed template/planner_prompt.txt
var plannerSystemPrompt string

//go:embed template/synthesizer_prompt.txt
var synthesizerSystemPrompt string

// RenderPlannerSystem renders the planner system prompt via the Eino prompt
// component (which also emits prompt callbacks). The tool catalog and stored
// parameter snapshot are substituted as plain tokens so JSON-ish braces in
// the template never collide with a formatter.
func RenderPlannerSystem(ctx context.Context, now time.Time, catalog []*schema.ToolInfo, store *model.ParameterStore) (string, error) {
	content := strings.NewReplacer(
		"{TD}", "<||>",
		"{RD}", "##",
		"{CD}", "<|COMPLETE|>",
		"{current_date}", now.UTC().Format("2006-01-02"),
		"{tool_catalog}", FormatToolCatalog(catalog),
		"{stored_params}", FormatStoredParams(store),
	).Replace(plannerSystemPrompt)

	return renderThroughPromptComponent(ctx, "planner", content)
}

// RenderSynthesizerSystem renders the guardrail prompt for the tool-call
// synthesizer model.
func RenderSynthesizerSystem(ctx context.Context, plannerAnalysis, retrievedContext string, store *model.ParameterStore) (string, error) {
	if retrievedContext == "" {
		retrievedContext = "(none)"
	}
	content := strings.NewReplacer(
		"{planner_analysis}", plannerAnalysis,
		"{retrieved_context}", retrievedContext,
		"{stored_params}", FormatStoredParams(store),
	).Replace(synthesizerSystemPrompt)

	return renderThroughPromptComponent(ctx, "synthesizer", content)
}

// renderThroughPromptComponent wraps a pre-substituted prompt in the Eino
// prompt component using a messages placeholder, to emit prompt callbacks.
func renderThroughPromptComponent(ctx context.Context, name, content string) (string, error) {
	tpl := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("system_messages", false),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"system_messages": []*schema.Message{schema.SystemMessage(content)},
	})
	if err != nil {
		return "", fmt.Errorf("%s prompt callbacks: %w", name, err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("%s prompt callbacks: empty result", name)
	}
	return msgs[0].Content, nil
}

// FormatToolCatalog renders the registered tools one per line with their
// parameter names, so the planner can only reference what exists.
func FormatToolCatalog(catalog []*schema.ToolInfo) string {
	var b strings.Builder
	for _, info := range catalog {
		if info == nil {
			continue
		}
		b.WriteString("- " + info.Name)
		if params, err := info.ParamsOneOf.ToOpenAPIV3(); err == nil && params != nil && len(params.Properties) > 0 {
			names := make([]string, 0, len(params.Properties))
			for name := range params.Properties {
				names = append(names, name)
			}
			sort.Strings(names)
			b.WriteString("(" + strings.Join(names, ", ") + ")")
		}
		b.WriteString(": " + info.Desc + "\n")
	}
	if b.Len() == 0 {
		return "(no tools registered)"
	}
	return b.String()
}

// FormatStoredParams renders the non-empty store fields one per line.
func FormatStoredParams(store *model.ParameterStore) string {
	if store.IsEmpty() {
		return "(none yet)"
	}
	known := store.Known()
	var b strings.Builder
	for _, f := range model.CanonicalFields {
		if v, ok := known[f]; ok {
			b.WriteString("- " + f + " = " + v + "\n")
		}
	}
	return b.String()
}
