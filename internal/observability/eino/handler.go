package eino

import (
	"context"
	"errors"
	"io"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"

	"postai-api/pkg/logger"
	"postai-api/pkg/metrics"
)

// startTimeKey 在 Context 中存储调用开始时间
type startTimeKey struct{}

func newChatModelCallbackHandler() *cbtemplate.ModelCallbackHandler {
	return &cbtemplate.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
			return context.WithValue(ctx, startTimeKey{}, time.Now())
		},

		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			recordUsage(ctx, modelNameFromOutput(output), usageOf(output))
			return ctx
		},

		OnEndWithStreamOutput: func(ctx context.Context, info *einocb.RunInfo, output *schema.StreamReader[*model.CallbackOutput]) context.Context {
			// 回调拿到的是流的副本，必须读完并关闭
			go func() {
				defer output.Close()
				var (
					name  string
					usage *model.TokenUsage
				)
				for {
					chunk, err := output.Recv()
					if errors.Is(err, io.EOF) {
						break
					}
					if err != nil {
						return
					}
					if n := modelNameFromOutput(chunk); n != "" {
						name = n
					}
					if u := usageOf(chunk); u != nil {
						usage = u
					}
				}
				recordUsage(ctx, name, usage)
			}()
			return ctx
		},

		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			name := ""
			if info != nil {
				name = info.Name
			}
			logger.Warn(ctx, "chat model call failed",
				"run", name,
				"elapsed_ms", elapsed(ctx).Milliseconds(),
				"error", err.Error(),
			)
			return ctx
		},
	}
}

func recordUsage(ctx context.Context, modelName string, usage *model.TokenUsage) {
	if usage == nil {
		return
	}
	metrics.LLMTokensUsed.WithLabelValues(modelName, "prompt").Add(float64(usage.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(modelName, "completion").Add(float64(usage.CompletionTokens))

	logger.Debug(ctx, "chat model usage",
		"model", modelName,
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
		"elapsed_ms", elapsed(ctx).Milliseconds(),
	)
}

func usageOf(output *model.CallbackOutput) *model.TokenUsage {
	if output == nil {
		return nil
	}
	if output.TokenUsage != nil {
		return output.TokenUsage
	}
	if output.Message != nil && output.Message.ResponseMeta != nil && output.Message.ResponseMeta.Usage != nil {
		u := output.Message.ResponseMeta.Usage
		return &model.TokenUsage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return nil
}

func modelNameFromOutput(output *model.CallbackOutput) string {
	if output == nil || output.Config == nil {
		return ""
	}
	return output.Config.Model
}

func elapsed(ctx context.Context) time.Duration {
	start, ok := ctx.Value(startTimeKey{}).(time.Time)
	if !ok {
		return 0
	}
	return time.Since(start)
}
