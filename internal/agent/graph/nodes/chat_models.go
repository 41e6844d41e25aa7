package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/oceanchat-core/server/internal/agent/model"
	logx "github.com/oceanchat-core/server/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	APIKey      string
	BaseURL     string
	PlannerCfg  *model.PlannerModelConfig
	SynthCfg    *model.SynthesizerModelConfig
	ResponseCfg *model.ResponseModelConfig
}

// ChatModels holds the three chat models of the pipeline: the planner that
// classifies the request, the synthesizer that emits tool calls, and the
// response model that composes the final answer.
type ChatModels struct {
	Planner     *gemini.ChatModel
	Synthesizer *gemini.ChatModel
	Response    *gemini.ChatModel

	PlannerModelName  string
	SynthModelName    string
	ResponseModelName string
}

// NewChatModels creates the planner, synthesizer and response chat models
// sharing one Gemini client.
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	planner, err := newModel(ctx, client, config.PlannerCfg.Model, config.PlannerCfg.Temperature, config.PlannerCfg.MaxTokens)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating planner model")
		return nil, fmt.Errorf("error creating planner model: %w", err)
	}

	synth, err := newModel(ctx, client, config.SynthCfg.Model, config.SynthCfg.Temperature, config.SynthCfg.MaxTokens)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating synthesizer model")
		return nil, fmt.Errorf("error creating synthesizer model: %w", err)
	}

	response, err := newModel(ctx, client, config.ResponseCfg.Model, config.ResponseCfg.Temperature, config.ResponseCfg.MaxTokens)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating response model")
		return nil, fmt.Errorf("error creating response model: %w", err)
	}

	return &ChatModels{
		Planner:           planner,
		Synthesizer:       synth,
		Response:          response,
		PlannerModelName:  config.PlannerCfg.Model,
		SynthModelName:    config.SynthCfg.Model,
		ResponseModelName: config.ResponseCfg.Model,
	}, nil
}

func newModel(ctx context.Context, client *genai.Client, name string, temperature float32, maxTokens int) (*gemini.ChatModel, error) {
	return gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       name,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: true,
			ThinkingBudget:  genai.Ptr(int32(2000)),
		},
	})
}

// BindToolsToSynthesizer binds the registered tools to the synthesizer model.
// Only the synthesizer may emit tool calls; the planner and response models
// stay unbound.
func (cm *ChatModels) BindToolsToSynthesizer(ctx context.Context, tools []*schema.ToolInfo) error {
	if err := cm.Synthesizer.BindTools(tools); err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools")
		return fmt.Errorf("failed to bind tools: %w", err)
	}

	logx.Debug().Int("tool_count", len(tools)).Msg("Successfully bound tools to synthesizer model")
	return nil
}
