package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"postai-api/internal/config"
)

// EinoClient 基于 Eino ChatModel 的补全客户端
type EinoClient struct {
	chatModel model.BaseChatModel
	timeout   time.Duration
}

// NewEinoClient 使用 Eino 的 OpenAI 适配器创建客户端
func NewEinoClient(ctx context.Context, cfg config.ProviderConfig) (*EinoClient, error) {
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: ptrFloat32(float32(cfg.Temperature)),
		Timeout:     cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create eino chat model: %w", err)
	}
	return NewEinoClientFromModel(chatModel, cfg.Timeout), nil
}

// NewEinoClientFromModel 包装已有的 ChatModel
func NewEinoClientFromModel(chatModel model.BaseChatModel, timeout time.Duration) *EinoClient {
	return &EinoClient{chatModel: chatModel, timeout: timeout}
}

// Complete 单次补全
func (c *EinoClient) Complete(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := withTimeout(runContext(ctx), c.timeout)
	defer cancel()

	msg, err := c.chatModel.Generate(ctx, buildMessages(req), buildOptions(req)...)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return &Response{Model: req.Model}, nil
	}
	resp := StringContent(msg.Content)
	resp.Model = req.Model
	return resp, nil
}

// Stream 流式补全，返回的 TokenStream 关闭时释放超时上下文
func (c *EinoClient) Stream(ctx context.Context, req Request) (TokenStream, error) {
	ctx, cancel := withTimeout(runContext(ctx), c.timeout)

	reader, err := c.chatModel.Stream(ctx, buildMessages(req), buildOptions(req)...)
	if err != nil {
		cancel()
		return nil, err
	}
	return &einoStream{reader: reader, cancel: cancel}, nil
}

// runContext 为独立调用的 ChatModel 挂载全局 callbacks
func runContext(ctx context.Context) context.Context {
	return callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      "postai",
		Type:      "OpenAI",
		Component: components.ComponentOfChatModel,
	})
}

func buildMessages(req Request) []*schema.Message {
	msgs := make([]*schema.Message, 0, 2)
	if req.SystemPrompt != "" {
		msgs = append(msgs, schema.SystemMessage(req.SystemPrompt))
	}
	return append(msgs, schema.UserMessage(req.UserPrompt))
}

func buildOptions(req Request) []model.Option {
	opts := make([]model.Option, 0, 2)
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}
	if req.Model != "" {
		opts = append(opts, model.WithModel(req.Model))
	}
	return opts
}

type einoStream struct {
	reader *schema.StreamReader[*schema.Message]
	cancel context.CancelFunc
}

func (s *einoStream) Recv() (string, error) {
	for {
		msg, err := s.reader.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", err
		}
		// 末尾可能有仅携带 Usage 的空消息
		if msg != nil && msg.Content != "" {
			return msg.Content, nil
		}
	}
}

func (s *einoStream) Close() error {
	s.reader.Close()
	s.cancel()
	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func ptrFloat32(f float32) *float32 {
	return &f
}
