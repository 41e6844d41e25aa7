package graph

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/oceanchat-core/server/internal/agent/graph/conversations"
	"github.com/oceanchat-core/server/internal/agent/graph/nodes"
	"github.com/oceanchat-core/server/internal/agent/graph/observers"
	"github.com/oceanchat-core/server/internal/agent/graph/tools"
	"github.com/oceanchat-core/server/internal/agent/model"
	"github.com/oceanchat-core/server/internal/onc"
	"github.com/oceanchat-core/server/internal/retrieval"
	logx "github.com/oceanchat-core/server/pkg/logger"
)

// Runner executes one conversation turn against the compiled graph.
type Runner interface {
	ProcessTurn(ctx context.Context, in model.QueryInput) (*model.TurnResult, error)
}

// Config holds everything needed to compose the full turn-processing graph
// end-to-end. This is a convenience layer over GraphConfig that also
// constructs ChatModels and MessagesManager.
type Config struct {
	APIKey  string
	BaseURL string

	PlannerModel     model.PlannerModelConfig
	SynthesizerModel model.SynthesizerModelConfig
	ResponseModel    model.ResponseModelConfig
	ResponsePrompt   model.ResponsePromptConfig
	Conversation     model.ConversationConfig

	ConversationRepo model.ConversationRepository
	ParamsRepo       model.ParameterStoreRepository
	Oceans           *onc.Client
	Retriever        retrieval.Retriever
}

// GraphConfig holds all configuration needed to build the graph
type GraphConfig struct {
	ChatModels           *nodes.ChatModels
	MessagesManager      *conversations.MessagesManager
	ParamsRepo           model.ParameterStoreRepository
	Oceans               *onc.Client
	ResponsePromptConfig *model.ResponsePromptConfig
	Retriever            retrieval.Retriever
	RetrievalTopK        int
}

// GraphBuilder handles the construction of the turn-processing graph
type GraphBuilder struct {
	config    *GraphConfig
	graph     *compose.Graph[model.QueryInput, *schema.Message]
	toolInfos []*schema.ToolInfo
}

type graphRunner struct {
	runnable compose.Runnable[model.QueryInput, *schema.Message]
}

// ProcessTurn runs one user turn through the graph and decodes the
// structured outcome from the final message. Pipeline failures (planning,
// parsing, composition) degrade to an LLM_ERROR result rather than an error;
// the conversation stays usable.
func (r *graphRunner) ProcessTurn(ctx context.Context, in model.QueryInput) (*model.TurnResult, error) {
	out, err := r.runnable.Invoke(ctx, model.QueryInput{
		ConversationID: in.ConversationID,
		Query:          in.Query,
	}, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		logx.Error().Err(err).
			Str("conversation_id", in.ConversationID).
			Msg("Turn processing failed")
		return &model.TurnResult{
			Status:  model.StatusLLMError,
			Message: "Sorry, something went wrong while working on that. Please try again.",
		}, nil
	}
	if out == nil {
		return &model.TurnResult{
			Status:  model.StatusLLMError,
			Message: "Sorry, no response could be produced. Please try again.",
		}, nil
	}

	return decodeTurnResult(out), nil
}

// decodeTurnResult lifts the status, tool results and parameter snapshot out
// of the final message's Extra.
func decodeTurnResult(out *schema.Message) *model.TurnResult {
	result := &model.TurnResult{
		Status:  model.StatusRegularMessage,
		Message: out.Content,
	}

	if v, ok := out.Extra[nodes.ExtraTurnStatus].(string); ok && v != "" {
		result.Status = model.TurnStatus(v)
	}
	if v, ok := out.Extra[nodes.ExtraToolResults].([]model.ToolExecutionResult); ok {
		result.Results = v
	}
	if v, ok := out.Extra[nodes.ExtraObtainedParams].(map[string]string); ok {
		result.ObtainedParams = v
	}

	return result
}

// BuildTurnGraph composes ChatModels, MessagesManager, builds the graph, and returns a Runner.
func BuildTurnGraph(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.ConversationRepo == nil {
		return nil, fmt.Errorf("conversation repo is nil")
	}
	if cfg.ParamsRepo == nil {
		return nil, fmt.Errorf("parameter store repo is nil")
	}
	if cfg.Oceans == nil {
		return nil, fmt.Errorf("oceans client is nil")
	}

	cms, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		PlannerCfg:  &cfg.PlannerModel,
		SynthCfg:    &cfg.SynthesizerModel,
		ResponseCfg: &cfg.ResponseModel,
	})
	if err != nil {
		return nil, err
	}

	mm := conversations.NewMessagesManager(cfg.ConversationRepo, cfg.Conversation)

	runnable, err := BuildGraph(ctx, &GraphConfig{
		ChatModels:           cms,
		MessagesManager:      mm,
		ParamsRepo:           cfg.ParamsRepo,
		Oceans:               cfg.Oceans,
		ResponsePromptConfig: &cfg.ResponsePrompt,
		Retriever:            cfg.Retriever,
		RetrievalTopK:        cfg.Conversation.Retrieval.TopK,
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("Turn graph built successfully")
	return &graphRunner{runnable: runnable}, nil
}

// BuildGraph constructs and returns the compiled turn-processing graph
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.ChatModels == nil || config.ChatModels.Planner == nil ||
		config.ChatModels.Synthesizer == nil || config.ChatModels.Response == nil {
		return nil, fmt.Errorf("chat models are not properly initialized")
	}
	if config.MessagesManager == nil {
		return nil, fmt.Errorf("messages manager is nil")
	}
	if config.ParamsRepo == nil || config.Oceans == nil {
		return nil, fmt.Errorf("tool dependencies are not properly initialized")
	}
	if config.ResponsePromptConfig == nil {
		return nil, fmt.Errorf("response prompt config is nil")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.QueryInput, *schema.Message](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	if err := builder.setupTools(ctx); err != nil {
		return nil, err
	}

	builder.addNodes()
	builder.addEdges()

	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// setupTools registers the business tools, binds them to the synthesizer
// model and adds the executor node. Tools run sequentially so parameter
// store writes from one call are visible to the next.
func (b *GraphBuilder) setupTools(ctx context.Context) error {
	deps := &tools.Deps{
		Oceans: b.config.Oceans,
		Params: b.config.ParamsRepo,
	}
	businessTools := tools.GetQueryTools(deps)

	toolInfos, err := tools.GetToolInfos(ctx, businessTools)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to get tool infos")
		return fmt.Errorf("failed to get tool infos: %w", err)
	}
	b.toolInfos = toolInfos

	if err := b.config.ChatModels.BindToolsToSynthesizer(ctx, toolInfos); err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools to synthesizer model")
		return fmt.Errorf("failed to bind tools to synthesizer model: %w", err)
	}

	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:               businessTools,
		ExecuteSequentially: true,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			// Hallucinated or malformed tool calls must not fail the turn.
			logx.Warn().
				Str("tool_name", name).
				Str("arguments", input).
				Msg("Unknown or invalid tool call; returning fallback result")
			return fmt.Sprintf("{\"error\":\"unknown_tool\",\"name\":%q,\"note\":\"ignored\"}", name), nil
		},
		ToolArgumentsHandler: func(ctx context.Context, name, arguments string) (string, error) {
			return injectConversationID(ctx, arguments), nil
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Failed to create tools node")
		return fmt.Errorf("failed to create tools node: %w", err)
	}

	b.graph.AddToolsNode(nodes.NodeToolExecutor, toolsNode,
		compose.WithStatePreHandler(nodes.NewToolExecutorPreHandler()),
		compose.WithStatePostHandler(nodes.NewToolExecutorPostHandler(b.config.ParamsRepo)),
	)

	return nil
}

// injectConversationID adds the state's conversation id to the tool
// arguments so every tool can address the right parameter store. The model
// never supplies it.
func injectConversationID(ctx context.Context, arguments string) string {
	var m map[string]any
	if err := json.Unmarshal([]byte(arguments), &m); err != nil || m == nil {
		m = map[string]any{}
	}

	var conversationID string
	if err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
		conversationID = state.ConversationID
		return nil
	}); err != nil {
		logx.Error().Err(err).Msg("Failed to read conversation id from state")
		return arguments
	}
	m["conversation_id"] = conversationID

	encoded, err := json.Marshal(m)
	if err != nil {
		return arguments
	}
	return string(encoded)
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() {
	b.graph.AddLambdaNode(nodes.NodePlannerContext,
		nodes.NewPlannerContextNode(b.config.MessagesManager, b.config.ParamsRepo, b.toolInfos),
		compose.WithStatePreHandler(nodes.NewPlannerContextPreHandler()),
	)

	b.graph.AddChatModelNode(nodes.NodePlannerChatModel,
		b.config.ChatModels.Planner,
		compose.WithStatePostHandler(nodes.NewPlannerChatModelPostHandler(b.config.ChatModels.PlannerModelName)),
	)

	b.graph.AddLambdaNode(nodes.NodePlanParser,
		nodes.NewPlanParserNode(),
		compose.WithStatePostHandler(nodes.NewPlanParserPostHandler()),
	)

	b.graph.AddLambdaNode(nodes.NodeClarifier,
		nodes.NewClarifierNode(b.config.MessagesManager),
	)

	b.graph.AddLambdaNode(nodes.NodeSynthAssembler,
		nodes.NewSynthAssemblerNode(b.config.Retriever, b.config.RetrievalTopK),
	)

	b.graph.AddChatModelNode(nodes.NodeSynthChatModel,
		b.config.ChatModels.Synthesizer,
		compose.WithStatePostHandler(nodes.NewSynthChatModelPostHandler(b.config.ChatModels.SynthModelName)),
	)

	b.graph.AddLambdaNode(nodes.NodeNoToolsBridge,
		nodes.NewNoToolsBridgeNode(),
	)

	b.graph.AddLambdaNode(nodes.NodeDirectReturn,
		nodes.NewDirectReturnNode(b.config.MessagesManager),
	)

	b.graph.AddLambdaNode(nodes.NodeResponseAssembler,
		nodes.NewResponseAssemblerNode(b.config.MessagesManager, b.config.ResponsePromptConfig),
	)

	b.graph.AddChatModelNode(nodes.NodeResponseChatModel,
		b.config.ChatModels.Response,
		compose.WithStatePostHandler(nodes.NewResponseChatModelPostHandler(b.config.MessagesManager, b.config.ChatModels.ResponseModelName)),
	)
}

// addEdges creates the main flow connections between nodes
func (b *GraphBuilder) addEdges() {
	edges := [][2]string{
		{compose.START, nodes.NodePlannerContext},
		{nodes.NodePlannerContext, nodes.NodePlannerChatModel},
		{nodes.NodePlannerChatModel, nodes.NodePlanParser},
		{nodes.NodeClarifier, compose.END},
		{nodes.NodeSynthAssembler, nodes.NodeSynthChatModel},
		{nodes.NodeResponseAssembler, nodes.NodeResponseChatModel},
		{nodes.NodeResponseChatModel, compose.END},
		{nodes.NodeDirectReturn, compose.END},
	}

	for _, edge := range edges {
		b.graph.AddEdge(edge[0], edge[1])
	}
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() error {
	clarifyBranch := compose.NewGraphBranch(
		nodes.NewClarificationCondition(),
		map[string]bool{
			nodes.NodeClarifier:      true,
			nodes.NodeSynthAssembler: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodePlanParser, clarifyBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding clarification branch")
		return fmt.Errorf("error adding clarification branch: %w", err)
	}

	toolBranch := compose.NewGraphBranch(
		nodes.NewToolRoutingCondition(),
		map[string]bool{
			nodes.NodeToolExecutor:  true,
			nodes.NodeNoToolsBridge: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeSynthChatModel, toolBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding tool routing branch")
		return fmt.Errorf("error adding tool routing branch: %w", err)
	}

	outcomeTargets := map[string]bool{
		nodes.NodeDirectReturn:      true,
		nodes.NodeResponseAssembler: true,
	}
	if err := b.graph.AddBranch(nodes.NodeToolExecutor,
		compose.NewGraphBranch(nodes.NewDirectReturnCondition(), outcomeTargets)); err != nil {
		logx.Error().Err(err).Msg("Error adding outcome branch")
		return fmt.Errorf("error adding outcome branch: %w", err)
	}
	if err := b.graph.AddBranch(nodes.NodeNoToolsBridge,
		compose.NewGraphBranch(nodes.NewDirectReturnCondition(), outcomeTargets)); err != nil {
		logx.Error().Err(err).Msg("Error adding tool-free outcome branch")
		return fmt.Errorf("error adding tool-free outcome branch: %w", err)
	}

	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	// The pipeline is acyclic; the cap only guards against wiring mistakes.
	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(20))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}
