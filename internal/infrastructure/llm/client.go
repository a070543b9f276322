// Package llm 封装对话补全服务，提供单次与流式两种调用
package llm

import (
	"context"
	"fmt"

	"postai-api/internal/config"
	"postai-api/pkg/logger"
)

// 客户端实现名
const (
	ClientEino   = "eino"
	ClientOpenAI = "openai"
)

// Request 一次补全请求
type Request struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
}

// TokenStream 单向、仅可消费一次的 token 片段序列
// Recv 在序列结束时返回 io.EOF；调用方负责 Close()
type TokenStream interface {
	Recv() (string, error)
	Close() error
}

// CompletionClient 对话补全客户端，不包含业务逻辑
type CompletionClient interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Stream(ctx context.Context, req Request) (TokenStream, error)
}

// NewClient 按配置创建补全客户端
// 默认提供商未配置 API Key 时返回 nil 客户端与 nil 错误，由调用方按“缺少凭据”处理
func NewClient(ctx context.Context, cfg config.LLMConfig) (CompletionClient, error) {
	providerCfg, ok := cfg.Provider()
	if !ok {
		return nil, fmt.Errorf("provider %s not found in LLM config", cfg.DefaultProvider)
	}
	if providerCfg.APIKey == "" {
		logger.Warn(ctx, "llm api key missing, generation requests will short-circuit",
			"provider", cfg.DefaultProvider,
		)
		return nil, nil
	}

	var (
		client CompletionClient
		err    error
	)
	switch cfg.Client {
	case "", ClientEino:
		client, err = NewEinoClient(ctx, providerCfg)
	case ClientOpenAI:
		client = NewOpenAIClient(providerCfg)
	default:
		return nil, fmt.Errorf("unsupported llm client %q", cfg.Client)
	}
	if err != nil {
		return nil, err
	}

	name := cfg.Client
	if name == "" {
		name = ClientEino
	}
	return Instrument(client, name, providerCfg.Model), nil
}
