package llm

import (
	"context"
	"io"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"postai-api/internal/config"
)

// OpenAIClient 基于官方 openai-go SDK 的补全客户端
// 单次补全解析原始 JSON，兼容 content 为字符串或片段列表的响应
type OpenAIClient struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIClient 创建 openai-go 客户端
func NewOpenAIClient(cfg config.ProviderConfig, extra ...option.RequestOption) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, extra...)
	return &OpenAIClient{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
}

func (c *OpenAIClient) params(req Request) openai.ChatCompletionNewParams {
	m := req.Model
	if m == "" {
		m = c.model
	}
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(req.SystemPrompt))
	}
	msgs = append(msgs, openai.UserMessage(req.UserPrompt))

	p := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(m),
		Messages: msgs,
	}
	if req.MaxTokens > 0 {
		p.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	return p
}

// Complete 单次补全
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	completion, err := c.client.Chat.Completions.New(ctx, c.params(req))
	if err != nil {
		return nil, err
	}
	return DecodeResponse([]byte(completion.RawJSON()))
}

// Stream 流式补全
func (c *OpenAIClient) Stream(ctx context.Context, req Request) (TokenStream, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)

	stream := c.client.Chat.Completions.NewStreaming(ctx, c.params(req))
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		cancel()
		return nil, err
	}
	return &openaiStream{stream: stream, cancel: cancel}, nil
}

type openaiStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
	cancel context.CancelFunc
}

func (s *openaiStream) Recv() (string, error) {
	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			return chunk.Choices[0].Delta.Content, nil
		}
	}
	if err := s.stream.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (s *openaiStream) Close() error {
	err := s.stream.Close()
	s.cancel()
	return err
}
