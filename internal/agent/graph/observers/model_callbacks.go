package observers

import (
	"context"
	"strings"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/oceanchat-core/server/pkg/logger"
)

// newModelHandler builds a typed ModelCallbackHandler logging the message
// window around each model call.
func newModelHandler() *callbackHelper.ModelCallbackHandler {
	return &callbackHelper.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
			ev := logx.Debug().Str("model_node", info.Name)
			if input != nil {
				ev = ev.Int("message_count", len(input.Messages))
				if um := lastUserContent(input.Messages); um != "" {
					ev = ev.Str("user", truncate(um, maxLoggedToolOutput))
				}
			}
			ev.Msg("Model call start")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			ev := logx.Debug().Str("model_node", info.Name)
			if output != nil && output.Message != nil {
				if content := strings.TrimSpace(output.Message.Content); content != "" {
					ev = ev.Str("assistant", truncate(content, maxLoggedToolOutput))
				}
				ev = ev.Int("tool_calls", len(output.Message.ToolCalls))
			}
			ev.Msg("Model call end")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Error().Err(err).Str("model_node", info.Name).Msg("Model call failed")
			return ctx
		},
	}
}

func lastUserContent(msgs []*schema.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m == nil {
			continue
		}
		if m.Role == schema.User {
			return strings.TrimSpace(m.Content)
		}
	}
	return ""
}
