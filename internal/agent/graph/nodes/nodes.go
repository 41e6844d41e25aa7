package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/oceanchat-core/server/internal/agent/graph/conversations"
	"github.com/oceanchat-core/server/internal/agent/graph/parsers"
	"github.com/oceanchat-core/server/internal/agent/graph/prompts"
	"github.com/oceanchat-core/server/internal/agent/graph/tools"
	"github.com/oceanchat-core/server/internal/agent/model"
	"github.com/oceanchat-core/server/internal/retrieval"
	logx "github.com/oceanchat-core/server/pkg/logger"
)

// Node names used when wiring the graph.
const (
	NodePlannerContext    = "PlannerContext"
	NodePlannerChatModel  = "PlannerChatModel"
	NodePlanParser        = "PlanParser"
	NodeClarifier         = "Clarifier"
	NodeSynthAssembler    = "SynthesizerAssembler"
	NodeSynthChatModel    = "SynthesizerChatModel"
	NodeToolExecutor      = "ToolExecutor"
	NodeNoToolsBridge     = "NoToolsBridge"
	NodeDirectReturn      = "DirectReturn"
	NodeResponseAssembler = "ResponseAssembler"
	NodeResponseChatModel = "ResponseChatModel"
)

// NewPlannerContextPreHandler seeds the state for a fresh turn.
func NewPlannerContextPreHandler() func(context.Context, model.QueryInput, *model.AppState) (model.QueryInput, error) {
	return func(ctx context.Context, in model.QueryInput, s *model.AppState) (model.QueryInput, error) {
		if s.ConversationID == "" {
			s.ConversationID = in.ConversationID
		}
		s.TurnID = uuid.NewString()
		s.Utterance = in.Query
		s.History = nil
		s.Plan = nil
		s.Sources = nil
		s.Status = ""
		s.Results = nil
		s.ObtainedParams = nil
		s.ToolCallIDSeq = 0
		s.TotalCostUSD = 0
		return in, nil
	}
}

// NewPlannerContextNode records the utterance, loads the stored parameters
// and produces the planner's message pair: the system prompt with the tool
// catalog, and the conversation window to analyze.
func NewPlannerContextNode(
	mm *conversations.MessagesManager,
	paramsRepo model.ParameterStoreRepository,
	catalog []*schema.ToolInfo,
) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.QueryInput) ([]*schema.Message, error) {
		conversationCtx, err := mm.ProcessPlannerMessage(ctx, input.ConversationID, input.Query)
		if err != nil {
			return nil, fmt.Errorf("error getting conversation context: %w", err)
		}

		store, err := paramsRepo.Load(ctx, input.ConversationID)
		if err != nil {
			logx.Error().Err(err).Str("conversation_id", input.ConversationID).
				Msg("parameter store load failed; planning with empty store")
			store = model.NewParameterStore()
		}

		if err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			state.Params = store
			return nil
		}); err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		systemPrompt, err := prompts.RenderPlannerSystem(ctx, time.Now().UTC(), catalog, store)
		if err != nil {
			return nil, fmt.Errorf("render planner system prompt: %w", err)
		}

		return []*schema.Message{
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(conversationCtx),
		}, nil
	})
}

// NewPlannerChatModelPostHandler accounts usage cost of the planning call.
func NewPlannerChatModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		applyUsageCost(state, out, modelName, NodePlannerChatModel)
		return out, nil
	}
}

// NewPlanParserNode parses the planner's delimited output into a structured
// planning result. A parse failure fails the turn; the runner reports it as
// a planning error.
func NewPlanParserNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, resp *schema.Message) (model.PlanningResult, error) {
		result, err := parsers.ParsePlan(resp.Content)
		if err != nil {
			logx.Error().Err(err).Msg("Error parsing planner response")
			return model.PlanningResult{}, err
		}
		if result == nil {
			logx.Error().Msg("Plan parsing returned nil result")
			return model.PlanningResult{}, fmt.Errorf("plan parsing returned nil result")
		}
		return *result, nil
	})
}

// NewPlanParserPostHandler stores the plan in state for downstream nodes.
func NewPlanParserPostHandler() func(context.Context, model.PlanningResult, *model.AppState) (model.PlanningResult, error) {
	return func(ctx context.Context, out model.PlanningResult, state *model.AppState) (model.PlanningResult, error) {
		state.Plan = &out

		toolNames := make([]string, 0, len(out.ToolsNeeded))
		for _, t := range out.ToolsNeeded {
			toolNames = append(toolNames, t.Name)
		}
		logx.Debug().
			Str("conversation_id", state.ConversationID).
			Str("turn_id", state.TurnID).
			Strs("tools_needed", toolNames).
			Int("inputs_provided", len(out.InputsProvided)).
			Int("inputs_missing", len(out.InputsMissing)).
			Int("inputs_uncertain", len(out.InputsUncertain)).
			Msg("Plan parsed")

		return out, nil
	}
}

// NewClarificationCondition routes to the clarifier when the planner flagged
// any input as ambiguous; the turn then asks instead of guessing.
func NewClarificationCondition() func(context.Context, model.PlanningResult) (string, error) {
	return func(ctx context.Context, input model.PlanningResult) (string, error) {
		if input.NeedsClarification() {
			logx.Debug().Int("uncertain_count", len(input.InputsUncertain)).
				Msg("Routing to Clarifier - ambiguous inputs detected")
			return NodeClarifier, nil
		}
		return NodeSynthAssembler, nil
	}
}

// NewClarifierNode turns the planner's uncertain inputs into one
// clarification question. No tool runs this turn, so it counts as a regular
// conversational exchange; the answer arrives as the next user message and
// the planner re-resolves from there.
func NewClarifierNode(mm *conversations.MessagesManager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, plan model.PlanningResult) (*schema.Message, error) {
		var conversationID string
		var known map[string]string
		if err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			conversationID = state.ConversationID
			if state.Params != nil {
				known = state.Params.Known()
			}
			state.Status = model.StatusRegularMessage
			return nil
		}); err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		question := clarificationQuestion(plan.InputsUncertain)

		if err := mm.SaveResponse(ctx, conversationID, question); err != nil {
			logx.Error().Err(err).Str("conversation_id", conversationID).
				Msg("Error saving clarification question")
		}

		return clarifierOutput(question, known), nil
	})
}

// clarifierOutput wraps the clarification question as the turn's final
// assistant message, tagged REGULAR_MESSAGE because no tool ran.
func clarifierOutput(question string, known map[string]string) *schema.Message {
	out := schema.AssistantMessage(question, nil)
	out.Extra = map[string]any{
		ExtraTurnStatus: string(model.StatusRegularMessage),
	}
	if len(known) > 0 {
		out.Extra[ExtraObtainedParams] = known
	}
	return out
}

func clarificationQuestion(uncertain map[string]string) string {
	var b strings.Builder
	b.WriteString("Before I proceed, I need to clarify a few things:\n")
	writeKVSection(&b, "Ambiguous inputs", uncertain)
	b.WriteString("Could you be more specific?")
	return b.String()
}

// NewSynthAssemblerNode retrieves domain context for the utterance and
// builds the synthesizer's message pair.
func NewSynthAssemblerNode(retriever retrieval.Retriever, topK int) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, plan model.PlanningResult) ([]*schema.Message, error) {
		var utterance string
		var store *model.ParameterStore
		if err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			utterance = state.Utterance
			store = state.Params
			return nil
		}); err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		var sources []string
		if retriever != nil {
			snippets, err := retriever.Retrieve(ctx, utterance, topK)
			if err != nil {
				logx.Warn().Err(err).Msg("Context retrieval failed; continuing without")
			}
			for _, s := range snippets {
				sources = append(sources, s.Text)
			}
		}

		if err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			state.Sources = sources
			return nil
		}); err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		systemPrompt, err := prompts.RenderSynthesizerSystem(ctx,
			formatPlanAnalysis(&plan),
			strings.Join(sources, "\n\n"),
			store,
		)
		if err != nil {
			return nil, fmt.Errorf("render synthesizer system prompt: %w", err)
		}

		return []*schema.Message{
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(utterance),
		}, nil
	})
}

// NewSynthChatModelPostHandler normalizes and sanitizes the synthesizer's
// tool calls, then appends the message to the turn's working history.
func NewSynthChatModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		applyUsageCost(state, out, modelName, NodeSynthChatModel)

		if out != nil && len(out.ToolCalls) > 0 {
			ensureToolCallIDs(state, out)
			out.ToolCalls = SanitizeToolCalls(out.ToolCalls, state.Utterance, state.Params)
		}

		state.History = append(state.History, out)

		if out != nil && len(out.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(out.ToolCalls)).Msg("Calling tools")
		} else {
			logx.Debug().Msg("No tool calls - composing answer directly")
		}

		return out, nil
	}
}

// NewToolRoutingCondition routes to the tool executor when the sanitized
// synthesizer output still carries tool calls.
func NewToolRoutingCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, input *schema.Message) (string, error) {
		if input != nil && len(input.ToolCalls) > 0 {
			return NodeToolExecutor, nil
		}
		return NodeNoToolsBridge, nil
	}
}

// NewNoToolsBridgeNode adapts the tool-free path to the executor's output
// shape so both branches feed the same downstream nodes.
func NewNoToolsBridgeNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *schema.Message) ([]*schema.Message, error) {
		return []*schema.Message{}, nil
	})
}

// NewToolExecutorPreHandler logs the dispatch.
func NewToolExecutorPreHandler() func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, in *schema.Message, state *model.AppState) (*schema.Message, error) {
		logx.Debug().
			Int("tool_count", len(in.ToolCalls)).
			Str("conversation_id", state.ConversationID).
			Str("turn_id", state.TurnID).
			Msg("Executing tools")
		return in, nil
	}
}

// NewToolExecutorPostHandler decodes the tool result messages, folds the
// per-tool statuses into the turn status and maintains the parameter store
// lifecycle: a completed data answer ends the negotiation, so the store is
// cleared; downloads, failures and every other outcome keep it for the next
// turn.
func NewToolExecutorPostHandler(paramsRepo model.ParameterStoreRepository) func(context.Context, []*schema.Message, *model.AppState) ([]*schema.Message, error) {
	return func(ctx context.Context, out []*schema.Message, state *model.AppState) ([]*schema.Message, error) {
		sawDownload := false
		sawFailure := false
		for _, msg := range out {
			if msg == nil || msg.Role != schema.Tool {
				continue
			}
			var result model.ToolExecutionResult
			if err := json.Unmarshal([]byte(msg.Content), &result); err != nil || result.Tool == "" {
				logx.Warn().Str("content", msg.Content).Msg("Tool message is not a structured result; skipping")
				continue
			}

			state.Results = append(state.Results, result)
			if len(result.ObtainedParams) > 0 {
				state.ObtainedParams = result.ObtainedParams
			}
			if tools.IsDownloadClass(result.Tool) {
				sawDownload = true
			}
			if result.Failed {
				sawFailure = true
			}

			logx.Debug().
				Str("tool_name", result.Tool).
				Str("status", string(result.Status)).
				Str("conversation_id", state.ConversationID).
				Msg("Tool result")
		}

		state.History = append(state.History, out...)
		state.Status = foldStatus(state.Results)

		if state.Status == model.StatusRegularMessage && len(state.Results) > 0 && !sawDownload && !sawFailure {
			if err := paramsRepo.Clear(ctx, state.ConversationID); err != nil {
				logx.Error().Err(err).Str("conversation_id", state.ConversationID).
					Msg("Error clearing parameter store after completed request")
			} else {
				state.Params = model.NewParameterStore()
			}
		}

		return out, nil
	}
}

// NewDirectReturnCondition bypasses the response model when the folded turn
// status must reach the user untouched.
func NewDirectReturnCondition() func(context.Context, []*schema.Message) (string, error) {
	return func(ctx context.Context, _ []*schema.Message) (string, error) {
		var status model.TurnStatus
		if err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			status = state.Status
			return nil
		}); err != nil {
			return "", fmt.Errorf("failed to access state: %w", err)
		}

		if status.IsFinalToUser() {
			logx.Debug().Str("status", string(status)).Msg("Routing to DirectReturn")
			return NodeDirectReturn, nil
		}
		return NodeResponseAssembler, nil
	}
}

// NewDirectReturnNode materializes a tool-driven outcome as the turn's final
// message without another model call. The tool already phrased the text.
func NewDirectReturnNode(mm *conversations.MessagesManager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ []*schema.Message) (*schema.Message, error) {
		var (
			conversationID string
			status         model.TurnStatus
			results        []model.ToolExecutionResult
			obtained       map[string]string
		)
		if err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			conversationID = state.ConversationID
			status = state.Status
			results = state.Results
			obtained = state.ObtainedParams
			return nil
		}); err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		content := statusMessage(status, results)

		if err := mm.SaveResponse(ctx, conversationID, content); err != nil {
			logx.Error().Err(err).Str("conversation_id", conversationID).
				Msg("Error saving direct tool response")
		}

		out := schema.AssistantMessage(content, nil)
		out.Extra = map[string]any{
			ExtraTurnStatus:  string(status),
			ExtraToolResults: results,
		}
		if len(obtained) > 0 {
			out.Extra[ExtraObtainedParams] = obtained
		}
		return out, nil
	})
}

// NewResponseAssemblerNode builds the response model's context: the
// composing system prompt, the persisted conversation history and this
// turn's tool exchange.
func NewResponseAssemblerNode(
	mm *conversations.MessagesManager,
	responsePromptConfig *model.ResponsePromptConfig,
) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ []*schema.Message) ([]*schema.Message, error) {
		var (
			conversationID string
			sources        []string
			turnHistory    []*schema.Message
		)
		if err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			conversationID = state.ConversationID
			sources = state.Sources
			turnHistory = state.History
			return nil
		}); err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		respSysPrompt, err := prompts.RenderResponseSystem(ctx, *responsePromptConfig, strings.Join(sources, "\n\n"))
		if err != nil {
			return nil, fmt.Errorf("generate response prompt: %w", err)
		}

		messages, err := mm.BuildResponseContext(ctx, conversationID, respSysPrompt)
		if err != nil {
			return nil, fmt.Errorf("build response context: %w", err)
		}

		// The tool exchange of this turn is not persisted; splice it in so
		// the composer sees the fetched data.
		messages = append(messages, turnHistory...)

		return messages, nil
	})
}

// NewResponseChatModelPostHandler accounts cost, persists the composed
// answer and attaches the structured turn outcome to the final message.
func NewResponseChatModelPostHandler(
	mm *conversations.MessagesManager,
	modelName string,
) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		applyUsageCost(state, out, modelName, NodeResponseChatModel)

		if out == nil {
			return nil, fmt.Errorf("response model returned nil message")
		}

		if out.Role == schema.Assistant && strings.TrimSpace(out.Content) != "" {
			if err := mm.SaveResponse(ctx, state.ConversationID, out.Content); err != nil {
				logx.Error().
					Str("conversation_id", state.ConversationID).
					Err(err).
					Msg("Error saving assistant response")
			}
		}

		if out.Extra == nil {
			out.Extra = map[string]any{}
		}
		out.Extra[ExtraTurnStatus] = string(model.StatusRegularMessage)
		if len(state.Results) > 0 {
			out.Extra[ExtraToolResults] = state.Results
		}
		if len(state.ObtainedParams) > 0 {
			out.Extra[ExtraObtainedParams] = state.ObtainedParams
		}

		return out, nil
	}
}
