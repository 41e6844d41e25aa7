package model

// ================ Config ================
type ConversationConfig struct {
	TTL     string `envconfig:"CONVERSATION_TTL" default:"30m"`
	Planner struct {
		MaxTurns int `envconfig:"CONVERSATION_PLANNER_MAX_TURNS" default:"6"`
	}
	Retrieval struct {
		TopK int `envconfig:"CONVERSATION_RETRIEVAL_TOP_K" default:"4"`
	}
}

type PlannerModelConfig struct {
	Model       string  `envconfig:"PLANNER_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"PLANNER_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"PLANNER_TEMPERATURE" default:"0.0"`
}

type SynthesizerModelConfig struct {
	Model       string  `envconfig:"SYNTHESIZER_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"SYNTHESIZER_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"SYNTHESIZER_TEMPERATURE" default:"0.0"`
}

type ResponseModelConfig struct {
	Model       string  `envconfig:"RESPONSE_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"RESPONSE_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"RESPONSE_TEMPERATURE" default:"0.3"`
}

type ResponsePromptConfig struct {
	ObservatoryName string `envconfig:"PROMPT_OBSERVATORY_NAME" default:"Ocean Networks"`
	// MaxTableRows caps rendered time-series tables; rows beyond the cap are
	// dropped with a truncation note.
	MaxTableRows int `envconfig:"PROMPT_MAX_TABLE_ROWS" default:"20"`
}
