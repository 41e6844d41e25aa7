package observers

import (
	"context"
	"errors"
	"io"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/oceanchat-core/server/pkg/logger"
)

const maxLoggedToolOutput = 600

// newToolHandler builds a typed ToolCallbackHandler (not yet wrapped).
func newToolHandler() *callbackHelper.ToolCallbackHandler {
	return &callbackHelper.ToolCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *tool.CallbackInput) context.Context {
			logx.Debug().
				Str("tool", info.Name).
				Str("arguments", input.ArgumentsInJSON).
				Msg("Tool start")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *tool.CallbackOutput) context.Context {
			logx.Debug().
				Str("tool", info.Name).
				Str("response", truncate(output.Response, maxLoggedToolOutput)).
				Msg("Tool end")
			return ctx
		},
		OnEndWithStreamOutput: func(ctx context.Context, info *einocb.RunInfo, output *schema.StreamReader[*tool.CallbackOutput]) context.Context {
			go func() {
				defer output.Close()
				for {
					chunk, err := output.Recv()
					if errors.Is(err, io.EOF) {
						return
					}
					if err != nil {
						return
					}
					logx.Debug().
						Str("tool", info.Name).
						Str("chunk", truncate(chunk.Response, maxLoggedToolOutput)).
						Msg("Tool stream chunk")
				}
			}()
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Error().Err(err).Str("tool", info.Name).Msg("Tool execution failed")
			return ctx
		},
	}
}

// NewToolCallbacks constructs a callbacks.Handler that logs tool lifecycle events.
// Attach it via compose.WithCallbacks(...) when invoking or compiling the graph.
func NewToolCallbacks() einocb.Handler {
	return callbackHelper.NewHandlerHelper().
		Tool(newToolHandler()).
		Handler()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
