package llm

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"postai-api/pkg/metrics"
	"postai-api/pkg/tracer"
)

// instrumented 为补全客户端记录指标与链路
type instrumented struct {
	next   CompletionClient
	client string
	model  string
}

// Instrument 包装客户端，记录调用次数、耗时与流式片段数
func Instrument(next CompletionClient, clientName, defaultModel string) CompletionClient {
	return &instrumented{next: next, client: clientName, model: defaultModel}
}

func (i *instrumented) modelFor(req Request) string {
	if req.Model != "" {
		return req.Model
	}
	return i.model
}

func (i *instrumented) Complete(ctx context.Context, req Request) (*Response, error) {
	m := i.modelFor(req)
	ctx, span := tracer.Start(ctx, "llm.complete", trace.WithAttributes(
		attribute.String("llm.client", i.client),
		attribute.String("llm.model", m),
		attribute.Int("llm.max_tokens", req.MaxTokens),
	))
	defer span.End()

	start := time.Now()
	resp, err := i.next.Complete(ctx, req)
	metrics.LLMCallDuration.WithLabelValues(i.client, m, "complete").Observe(time.Since(start).Seconds())
	metrics.LLMCallTotal.WithLabelValues(i.client, m, "complete", statusOf(err)).Inc()
	tracer.RecordError(span, err)
	return resp, err
}

func (i *instrumented) Stream(ctx context.Context, req Request) (TokenStream, error) {
	m := i.modelFor(req)
	ctx, span := tracer.Start(ctx, "llm.stream", trace.WithAttributes(
		attribute.String("llm.client", i.client),
		attribute.String("llm.model", m),
		attribute.Int("llm.max_tokens", req.MaxTokens),
	))

	start := time.Now()
	stream, err := i.next.Stream(ctx, req)
	if err != nil {
		metrics.LLMCallTotal.WithLabelValues(i.client, m, "stream", "error").Inc()
		tracer.RecordError(span, err)
		span.End()
		return nil, err
	}
	return &instrumentedStream{
		next:   stream,
		span:   span,
		start:  start,
		client: i.client,
		model:  m,
	}, nil
}

type instrumentedStream struct {
	next   TokenStream
	span   trace.Span
	start  time.Time
	client string
	model  string

	tokens int
	err    error
	once   sync.Once
}

func (s *instrumentedStream) Recv() (string, error) {
	tok, err := s.next.Recv()
	if err == nil {
		s.tokens++
		metrics.LLMStreamTokens.WithLabelValues(s.client, s.model).Inc()
		return tok, nil
	}
	if !errors.Is(err, io.EOF) {
		s.err = err
	}
	return tok, err
}

func (s *instrumentedStream) Close() error {
	err := s.next.Close()
	s.once.Do(func() {
		metrics.LLMCallDuration.WithLabelValues(s.client, s.model, "stream").Observe(time.Since(s.start).Seconds())
		metrics.LLMCallTotal.WithLabelValues(s.client, s.model, "stream", statusOf(s.err)).Inc()
		s.span.SetAttributes(attribute.Int("llm.stream_tokens", s.tokens))
		tracer.RecordError(s.span, s.err)
		s.span.End()
	})
	return err
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
