package nodes

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/oceanchat-core/server/internal/agent/model"
	logx "github.com/oceanchat-core/server/pkg/logger"
)

// Keys under which the final message's Extra carries the structured turn
// outcome back to the runner.
const (
	ExtraTurnStatus     = "turn_status"
	ExtraToolResults    = "tool_results"
	ExtraObtainedParams = "obtained_params"
)

// applyUsageCost computes the LLM cost of one model invocation, attaches it
// to the message Extra and accumulates the running total in state.
func applyUsageCost(state *model.AppState, out *schema.Message, modelName, nodeName string) {
	if !model.CostEnabled() || out == nil || out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return
	}

	pricing := model.ResolvePricing(modelName)
	inC, outC, totalC := model.ComputeCost(out.ResponseMeta.Usage, pricing)
	if out.Extra == nil {
		out.Extra = map[string]any{}
	}
	out.Extra["usage_cost"] = map[string]any{
		"currency":          "USD",
		"model":             modelName,
		"prompt_tokens":     out.ResponseMeta.Usage.PromptTokens,
		"completion_tokens": out.ResponseMeta.Usage.CompletionTokens,
		"total_tokens":      out.ResponseMeta.Usage.TotalTokens,
		"input_cost":        inC,
		"output_cost":       outC,
		"total_cost":        totalC,
	}
	logx.Debug().
		Str("conversation_id", state.ConversationID).
		Str("node", nodeName).
		Str("model", modelName).
		Int("prompt_tokens", out.ResponseMeta.Usage.PromptTokens).
		Int("completion_tokens", out.ResponseMeta.Usage.CompletionTokens).
		Int("total_tokens", out.ResponseMeta.Usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")

	state.TotalCostUSD += totalC
	out.Extra["usage_cost_total_usd"] = state.TotalCostUSD
}

// ensureToolCallIDs fills in tool_call IDs when the provider omits them.
// Gemini frequently returns calls without IDs; downstream tool messages need
// one to pair with.
func ensureToolCallIDs(state *model.AppState, out *schema.Message) {
	if out == nil {
		return
	}
	for i := range out.ToolCalls {
		if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
			state.ToolCallIDSeq++
			out.ToolCalls[i].ID = fmt.Sprintf("call_%d", state.ToolCallIDSeq)
		}
	}
}

// foldStatus collapses the per-tool statuses of one turn into a single turn
// status. The first result that must be surfaced to the user directly wins;
// when every tool succeeded normally the turn stays a regular message.
func foldStatus(results []model.ToolExecutionResult) model.TurnStatus {
	for _, r := range results {
		if r.Status.IsFinalToUser() {
			return r.Status
		}
	}
	return model.StatusRegularMessage
}

// statusMessage picks the user-facing text for a directly returned status:
// the response of the result that set the folded status.
func statusMessage(status model.TurnStatus, results []model.ToolExecutionResult) string {
	for _, r := range results {
		if r.Status == status && strings.TrimSpace(r.Response) != "" {
			return r.Response
		}
	}
	return "The request could not be completed. Please try again or rephrase."
}

// formatPlanAnalysis renders the planner decision for the synthesizer prompt.
func formatPlanAnalysis(plan *model.PlanningResult) string {
	if plan == nil {
		return "(no planner analysis)"
	}

	var b strings.Builder
	if plan.Reasoning != "" {
		b.WriteString("Reasoning: " + plan.Reasoning + "\n")
	}

	if len(plan.ToolsNeeded) == 0 {
		b.WriteString("Tools needed: none\n")
	} else {
		b.WriteString("Tools needed:\n")
		for _, t := range plan.ToolsNeeded {
			b.WriteString(fmt.Sprintf("  - %s (calls: %d)\n", t.Name, t.CallCount))
		}
	}

	writeKVSection(&b, "Inputs provided", plan.InputsProvided)
	writeKVSection(&b, "Inputs missing", plan.InputsMissing)

	return strings.TrimRight(b.String(), "\n")
}

func writeKVSection(b *strings.Builder, title string, kv map[string]string) {
	if len(kv) == 0 {
		return
	}
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteString(title + ":\n")
	for _, k := range keys {
		b.WriteString("  - " + k + ": " + kv[k] + "\n")
	}
}
