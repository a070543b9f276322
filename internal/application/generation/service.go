// Package generation 编排一次完整的帖子生成流程：搜索、两次补全、结果交付
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"postai-api/internal/application/compose"
	"postai-api/internal/config"
	"postai-api/internal/domain/entity"
	"postai-api/internal/infrastructure/llm"
	"postai-api/internal/infrastructure/search"
	apperrors "postai-api/pkg/errors"
	"postai-api/pkg/logger"
	"postai-api/pkg/tracer"
)

// 交付模式
const (
	ModeBatch  = "batch"
	ModeStream = "stream"
	ModeTokens = "tokens"
)

// 日志文案
const (
	msgSearching      = "Performing web search for grounding..."
	msgDrafting       = "Composing prompts for OpenAI model..."
	msgFinalizing     = "Generated both posts"
	msgGeneratingLI   = "Calling model for LinkedIn post"
	msgGeneratingX    = "Calling model for X/Twitter post"
	msgLinkedInDone   = "LinkedIn post generated"
	msgLinkedInEmpty  = "LinkedIn generation returned empty"
	msgXDone          = "X post generated"
	msgXEmpty         = "X generation returned empty"
	defaultSummaryLen = 3
)

// EventSink 接收有序的流式事件；返回错误表示客户端已断开，生产者应停止
type EventSink interface {
	Emit(ctx context.Context, ev entity.StreamEvent) error
}

// ErrSinkClosed 事件接收方已关闭
var ErrSinkClosed = errors.New("event sink closed")

// Service 生成流程编排器
type Service struct {
	searcher       search.Searcher
	client         llm.CompletionClient
	composer       *compose.Composer
	summaryResults int
	now            func() time.Time
}

// Option 编排器选项
type Option func(*Service)

// WithClock 指定时间源
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService 创建编排器；client 为 nil 表示未配置模型凭据
func NewService(searcher search.Searcher, client llm.CompletionClient, cfg config.GenerationConfig, model string, opts ...Option) *Service {
	s := &Service{
		searcher:       searcher,
		client:         client,
		composer:       compose.NewComposer(client, cfg, model),
		summaryResults: cfg.SummaryResults,
		now:            time.Now,
	}
	if s.summaryResults <= 0 {
		s.summaryResults = defaultSummaryLen
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate 批量模式：同步执行全部步骤并返回结果
func (s *Service) Generate(ctx context.Context, prompt string) (*entity.GenerationResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, apperrors.ErrPromptRequired
	}
	r := s.newRun(ctx, ModeBatch, nil)
	defer r.finish()

	results, ok := s.prepare(r, prompt)
	if !ok {
		return &r.result, nil
	}
	for _, target := range []entity.Target{entity.TargetLinkedIn, entity.TargetX} {
		if !s.composeTarget(r, target, prompt, results) {
			return &r.result, nil
		}
	}
	r.log(entity.StepFinalizing, msgFinalizing)
	return &r.result, nil
}

// Stream 粗粒度流式模式：每个帖子完成后推送完整文本
func (s *Service) Stream(ctx context.Context, prompt string, sink EventSink) error {
	if strings.TrimSpace(prompt) == "" {
		return apperrors.ErrPromptRequired
	}
	r := s.newRun(ctx, ModeStream, sink)
	defer r.finish()

	results, ok := s.prepare(r, prompt)
	if !ok {
		return r.sinkErr
	}
	for _, target := range []entity.Target{entity.TargetLinkedIn, entity.TargetX} {
		r.logGenerating(target)
		if r.stopped() {
			return r.sinkErr
		}
		if !s.composeTarget(r, target, prompt, results) {
			return r.sinkErr
		}
	}
	r.log(entity.StepFinalizing, msgFinalizing)
	r.done()
	return r.sinkErr
}

// StreamTokens token 级流式模式：两个目标依次进行，逐片段推送
func (s *Service) StreamTokens(ctx context.Context, prompt string, sink EventSink) error {
	if strings.TrimSpace(prompt) == "" {
		return apperrors.ErrPromptRequired
	}
	r := s.newRun(ctx, ModeTokens, sink)
	defer r.finish()

	results, ok := s.prepare(r, prompt)
	if !ok {
		return r.sinkErr
	}

	r.logGenerating(entity.TargetLinkedIn)
	req, err := s.composer.LinkedInRequest(ctx, prompt, results)
	if err != nil {
		r.terminate(err)
		return r.sinkErr
	}
	linkedin := compose.FinishLinkedIn(s.streamTarget(r, entity.TargetLinkedIn, req))
	if r.stopped() {
		return r.sinkErr
	}
	r.result.LinkedIn = linkedin
	r.emit(entity.TargetDoneEvent(entity.TargetLinkedIn, linkedin))
	r.logCompletion(entity.TargetLinkedIn)

	r.logGenerating(entity.TargetX)
	if req, err = s.composer.XRequest(ctx, prompt, results); err != nil {
		r.terminate(err)
		return r.sinkErr
	}
	x := compose.FinishX(s.streamTarget(r, entity.TargetX, req))
	if r.stopped() {
		return r.sinkErr
	}
	r.result.X = x
	r.emit(entity.TargetDoneEvent(entity.TargetX, x))
	r.logCompletion(entity.TargetX)

	r.log(entity.StepFinalizing, msgFinalizing)
	r.done()
	return r.sinkErr
}

// prepare 执行共享的前置步骤：受理、搜索、凭据检查
func (s *Service) prepare(r *run, prompt string) ([]entity.SearchResult, bool) {
	r.log(entity.StepReceivedPrompt, prompt)
	r.log(entity.StepSearching, msgSearching)
	if r.stopped() {
		return nil, false
	}

	results := s.searcher.Search(r.ctx, prompt)
	r.log(entity.StepSearchResults, summarize(results, s.summaryResults))
	if r.stopped() {
		return nil, false
	}

	if s.client == nil {
		r.terminate(apperrors.ErrModelKeyMissing)
		return nil, false
	}

	r.log(entity.StepDrafting, msgDrafting)
	return results, !r.stopped()
}

// composeTarget 单次补全生成一个目标；返回 false 表示流程应终止
func (s *Service) composeTarget(r *run, target entity.Target, prompt string, results []entity.SearchResult) bool {
	var (
		text string
		err  error
	)
	if target == entity.TargetLinkedIn {
		text, err = s.composer.ComposeLinkedIn(r.ctx, prompt, results)
	} else {
		text, err = s.composer.ComposeX(r.ctx, prompt, results)
	}
	if r.stopped() {
		return false
	}
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeInvalidInput) {
			r.terminate(err)
			return false
		}
		// 单个目标失败不影响另一个目标
		r.targetFailed(target, err)
		text = ""
	}

	r.result.SetText(target, text)
	if r.mode == ModeStream {
		r.emit(entity.TextEvent(target, text))
	}
	r.logCompletion(target)
	return !r.stopped()
}

// streamTarget 打开流式补全并逐片段转发，返回累积文本
func (s *Service) streamTarget(r *run, target entity.Target, req llm.Request) string {
	stream, err := s.client.Stream(r.ctx, req)
	if err != nil {
		if !r.stopped() {
			r.targetFailed(target, apperrors.Wrap(err, apperrors.CodeUpstreamUnavailable, "completion failed"))
		}
		return ""
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		tok, err := stream.Recv()
		if err != nil {
			if !isEOF(err) && !r.stopped() {
				r.targetFailed(target, apperrors.Wrap(err, apperrors.CodeUpstreamUnavailable, "completion stream interrupted"))
			}
			return sb.String()
		}
		sb.WriteString(tok)
		r.emit(entity.TokenEvent(target, tok))
		if r.stopped() {
			return sb.String()
		}
	}
}

// summarize 将前 n 条搜索结果编码为 JSON 文本
func summarize(results []entity.SearchResult, n int) string {
	if len(results) > n {
		results = results[:n]
	}
	if results == nil {
		results = []entity.SearchResult{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(results); err != nil {
		return "[]"
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func (s *Service) newRun(ctx context.Context, mode string, sink EventSink) *run {
	ctx = logger.WithContext(ctx, logger.GenerationModeKey, mode)
	ctx, span := tracer.Start(ctx, "generation.run")
	span.SetAttributes(attribute.String("generation.mode", mode))
	return &run{
		ctx:    ctx,
		svc:    s,
		mode:   mode,
		sink:   sink,
		span:   span,
		start:  s.now(),
		result: entity.GenerationResult{Log: make([]entity.LogEntry, 0, 10)},
		status: "success",
	}
}
