package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/oceanchat-core/server/internal/agent/graph"
	"github.com/oceanchat-core/server/internal/agent/model"
	"github.com/oceanchat-core/server/internal/agent/repo"
	"github.com/oceanchat-core/server/internal/core"
	"github.com/oceanchat-core/server/internal/onc"
	"github.com/oceanchat-core/server/internal/retrieval"
	logx "github.com/oceanchat-core/server/pkg/logger"
	pkgredis "github.com/oceanchat-core/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the conversation engine,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	// Infrastructure
	Redis  pkgredis.Config
	Oceans onc.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Pipeline configs
	Planner      model.PlannerModelConfig
	Synthesizer  model.SynthesizerModelConfig
	Response     model.ResponseModelConfig
	Prompt       model.ResponsePromptConfig
	Conversation model.ConversationConfig
}

func main() {
	ctx := context.Background()

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	logx.Init(logx.LoggerOpts{Environment: core.FromEnv()})

	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	rdb, err := envCfg.Redis.New()
	if err != nil {
		log.Fatalf("Failed to initialise Redis client: %v", err)
	}
	defer rdb.Close()

	oceans, err := onc.NewClient(envCfg.Oceans)
	if err != nil {
		log.Fatalf("Failed to initialise Oceans client: %v", err)
	}

	ttl, err := time.ParseDuration(envCfg.Conversation.TTL)
	if err != nil {
		log.Fatalf("Invalid CONVERSATION_TTL '%s': %v", envCfg.Conversation.TTL, err)
	}

	cfg := graph.Config{
		APIKey:           envCfg.APIKey,
		BaseURL:          envCfg.BaseURL,
		PlannerModel:     envCfg.Planner,
		SynthesizerModel: envCfg.Synthesizer,
		ResponseModel:    envCfg.Response,
		ResponsePrompt:   envCfg.Prompt,
		Conversation:     envCfg.Conversation,
		ConversationRepo: repo.NewRedisConversationRepository(rdb, ttl),
		ParamsRepo:       repo.NewRedisParameterStoreRepository(rdb, ttl),
		Oceans:           oceans,
		Retriever:        retrieval.NewKeywordIndex(retrieval.DefaultKnowledgeBase()),
	}

	runner, err := graph.BuildTurnGraph(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to build graph: %v", err)
	}

	// A short multi-turn session exercising the parameter negotiation:
	// a download request with missing fields, the follow-up that completes
	// them, then an inline data question.
	turns := []struct {
		description string
		query       string
	}{
		{
			description: "Download request with partial parameters",
			query:       "I'd like to download CTD data from Cambridge Bay as a csv file",
		},
		{
			description: "Follow-up supplying the missing dates",
			query:       "From 2023-06-01 to 2023-06-10 please",
		},
		{
			description: "Inline data question",
			query:       "What was the seawater temperature at Cambridge Bay during the first week of June 2023?",
		},
	}

	conversationID := fmt.Sprintf("session-%d", time.Now().Unix())

	for i, turn := range turns {
		fmt.Printf("\nTurn %d: %s\n", i+1, turn.description)
		fmt.Printf("User: %s\n", turn.query)

		result, err := runner.ProcessTurn(ctx, model.QueryInput{
			ConversationID: conversationID,
			Query:          turn.query,
		})
		if err != nil {
			log.Fatalf("Failed to process turn %d: %v", i+1, err)
		}

		fmt.Printf("Status: %s\n", result.Status)
		fmt.Printf("Assistant: %s\n", result.Message)
		if len(result.ObtainedParams) > 0 {
			fmt.Printf("Known parameters: %v\n", result.ObtainedParams)
		}
		for _, r := range result.Results {
			if r.DpRequestID != 0 {
				fmt.Printf("Download queued: dpRequestId=%d dpRunId=%d doi=%s\n", r.DpRequestID, r.DpRunID, r.DOI)
			}
		}
		fmt.Println("------------------------------------------------")

		time.Sleep(500 * time.Millisecond)
	}
}
