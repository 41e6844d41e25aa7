package observers

import (
	"context"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/prompt"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/oceanchat-core/server/pkg/logger"
)

// newPromptHandler builds a typed PromptCallbackHandler (not yet wrapped).
func newPromptHandler() *callbackHelper.PromptCallbackHandler {
	return &callbackHelper.PromptCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *prompt.CallbackInput) context.Context {
			logx.Trace().
				Str("prompt", info.Name).
				Str("type", string(info.Type)).
				Msg("Prompt render start")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *prompt.CallbackOutput) context.Context {
			size := 0
			if output != nil && len(output.Result) > 0 && output.Result[0] != nil {
				size = len(output.Result[0].Content)
			}
			logx.Trace().
				Str("prompt", info.Name).
				Int("rendered_bytes", size).
				Msg("Prompt render end")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Error().Err(err).Str("prompt", info.Name).Msg("Prompt render failed")
			return ctx
		},
	}
}

// NewPromptCallbacks constructs a callbacks.Handler for prompt lifecycle events.
func NewPromptCallbacks() einocb.Handler {
	return callbackHelper.NewHandlerHelper().
		Prompt(newPromptHandler()).
		Handler()
}
