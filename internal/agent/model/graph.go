package model

import (
	"github.com/cloudwego/eino/schema"
)

// AppState stores per-invocation state for the Eino Graph.
// Concurrency model:
//   - This struct is registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen only inside Eino state handlers:
//     WithStatePreHandler, WithStatePostHandler, or compose.ProcessState.
//   - Eino serializes access to state within these handlers, so no additional
//     mutex/atomic is required as long as you never touch it outside handlers.
//   - Each conversation's ParameterStore is scoped to that conversation and
//     passed explicitly through state and the repositories, never shared.
type AppState struct {
	ConversationID string
	TurnID         string
	Utterance      string

	// History holds this turn's working message window for the response
	// model: synthesizer output with tool calls, then tool result messages.
	History []*schema.Message

	// Plan is set by the plan-parser post-handler and read downstream.
	Plan *PlanningResult

	// Params is the store snapshot loaded at turn start; tools operate on the
	// persisted copy, this one feeds prompts.
	Params *ParameterStore

	// Sources keeps the retrieved context snippets gathered so far so they
	// can be logged even when the turn fails.
	Sources []string

	// Status is the folded turn status after tool execution; empty means the
	// composer should run.
	Status TurnStatus

	// Results collects decoded tool execution results in call order.
	Results []ToolExecutionResult

	// ObtainedParams is the latest store snapshot echoed by a tool result.
	ObtainedParams map[string]string

	ToolCallIDSeq int // local sequence to synthesize tool_call_id when provider omits

	// Accumulated total LLM cost (USD) across model invocations for this turn.
	TotalCostUSD float64
}

// QueryInput represents the input for processing one user turn.
type QueryInput struct {
	ConversationID string `json:"conversation_id"`
	Query          string `json:"query"`
}
