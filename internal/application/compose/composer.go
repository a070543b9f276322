// Package compose 构建各平台的生成指令并把模型输出整理为帖子正文
package compose

import (
	"context"
	"strings"
	"unicode/utf8"

	"postai-api/internal/config"
	"postai-api/internal/domain/entity"
	"postai-api/internal/infrastructure/llm"
	"postai-api/internal/workflow/prompt"
	apperrors "postai-api/pkg/errors"
	"postai-api/pkg/logger"
)

// Composer 负责单个目标帖子的指令构建、补全调用与后处理
type Composer struct {
	client  llm.CompletionClient
	prompts *prompt.Registry
	cfg     config.GenerationConfig
	model   string
}

// NewComposer 创建 Composer；client 可为 nil，此时仅可构建请求
func NewComposer(client llm.CompletionClient, cfg config.GenerationConfig, model string) *Composer {
	if cfg.MaxPromptLength <= 0 {
		cfg.MaxPromptLength = 1000
	}
	if cfg.ContextResults <= 0 {
		cfg.ContextResults = 5
	}
	if cfg.LinkedInMaxTokens <= 0 {
		cfg.LinkedInMaxTokens = 800
	}
	if cfg.XMaxTokens <= 0 {
		cfg.XMaxTokens = 200
	}
	return &Composer{
		client:  client,
		prompts: prompt.NewRegistry(),
		cfg:     cfg,
		model:   model,
	}
}

// ValidatePrompt 长度与禁用词校验，禁用词大小写不敏感
func (c *Composer) ValidatePrompt(p string) error {
	if n := utf8.RuneCountInString(p); n > c.cfg.MaxPromptLength {
		return apperrors.ErrPromptTooLong
	}
	lowered := strings.ToLower(p)
	for _, term := range c.cfg.DisallowedTerms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" && strings.Contains(lowered, term) {
			return apperrors.ErrPromptDisallowed
		}
	}
	return nil
}

// LinkedInRequest 校验输入并构建 LinkedIn 补全请求，不发起网络调用
func (c *Composer) LinkedInRequest(ctx context.Context, p string, results []entity.SearchResult) (llm.Request, error) {
	if err := c.ValidatePrompt(p); err != nil {
		return llm.Request{}, err
	}
	return c.build(ctx, prompt.PromptLinkedInPostV1, p, results, c.cfg.LinkedInMaxTokens)
}

// XRequest 构建 X 补全请求
func (c *Composer) XRequest(ctx context.Context, p string, results []entity.SearchResult) (llm.Request, error) {
	return c.build(ctx, prompt.PromptXPostV1, p, results, c.cfg.XMaxTokens)
}

func (c *Composer) build(ctx context.Context, id prompt.PromptID, p string, results []entity.SearchResult, maxTokens int) (llm.Request, error) {
	rendered, err := c.prompts.Render(ctx, id, map[string]any{
		prompt.VarPrompt:  p,
		prompt.VarContext: groundingLines(results, c.cfg.ContextResults),
	})
	if err != nil {
		return llm.Request{}, apperrors.Wrap(err, apperrors.CodeInternalError, "build prompt")
	}
	return llm.Request{
		Model:        c.model,
		SystemPrompt: rendered.System,
		UserPrompt:   rendered.User,
		MaxTokens:    maxTokens,
	}, nil
}

// ComposeLinkedIn 生成 LinkedIn 帖子
func (c *Composer) ComposeLinkedIn(ctx context.Context, p string, results []entity.SearchResult) (string, error) {
	req, err := c.LinkedInRequest(ctx, p, results)
	if err != nil {
		return "", err
	}
	raw, err := c.complete(ctx, req, entity.TargetLinkedIn)
	if err != nil {
		return "", err
	}
	return FinishLinkedIn(raw), nil
}

// ComposeX 生成 X 帖子
func (c *Composer) ComposeX(ctx context.Context, p string, results []entity.SearchResult) (string, error) {
	req, err := c.XRequest(ctx, p, results)
	if err != nil {
		return "", err
	}
	raw, err := c.complete(ctx, req, entity.TargetX)
	if err != nil {
		return "", err
	}
	return FinishX(raw), nil
}

func (c *Composer) complete(ctx context.Context, req llm.Request, target entity.Target) (string, error) {
	if c.client == nil {
		return "", apperrors.ErrModelKeyMissing
	}
	resp, err := c.client.Complete(ctx, req)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeUpstreamUnavailable, "completion failed")
	}
	text := ExtractText(resp)
	logger.Debug(ctx, "completion received",
		"target", string(target),
		"chars", utf8.RuneCountInString(text),
	)
	return text, nil
}

// groundingLines 将前 n 条搜索结果渲染为 "title: snippet" 行
func groundingLines(results []entity.SearchResult, n int) string {
	if len(results) > n {
		results = results[:n]
	}
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, r.Title+": "+r.Snippet)
	}
	return strings.Join(lines, "\n")
}
