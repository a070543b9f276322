// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"postai-api/internal/application/generation"
	"postai-api/internal/domain/entity"
	apperrors "postai-api/pkg/errors"
	"postai-api/pkg/logger"
	"postai-api/pkg/metrics"
)

// streamBuffer 生产者与 SSE 写出之间的缓冲事件数
const streamBuffer = 16

// StreamHandler SSE 流式响应处理器
type StreamHandler struct {
	gen Generator
}

// NewStreamHandler 创建流式响应处理器
func NewStreamHandler(gen Generator) *StreamHandler {
	return &StreamHandler{gen: gen}
}

// Stream 粗粒度流式生成
// @Summary 以 SSE 推送生成进度与完整帖子
// @Tags Generate
// @Produce text/event-stream
// @Param prompt query string true "prompt"
// @Success 200 "SSE stream"
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/generate/stream [get]
func (h *StreamHandler) Stream(c *gin.Context) {
	h.serve(c, generation.ModeStream, h.gen.Stream)
}

// StreamTokens token 级流式生成
// @Summary 以 SSE 逐片段推送两条帖子
// @Tags Generate
// @Produce text/event-stream
// @Param prompt query string true "prompt"
// @Success 200 "SSE stream"
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/generate/stream-tokens [get]
func (h *StreamHandler) StreamTokens(c *gin.Context) {
	h.serve(c, generation.ModeTokens, h.gen.StreamTokens)
}

type produceFunc func(ctx context.Context, prompt string, sink generation.EventSink) error

// channelSink 把事件写入通道，由 c.Stream 消费
type channelSink struct {
	ch chan entity.StreamEvent
}

func (s *channelSink) Emit(ctx context.Context, ev entity.StreamEvent) error {
	select {
	case s.ch <- ev:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", generation.ErrSinkClosed, ctx.Err())
	}
}

func (h *StreamHandler) serve(c *gin.Context, mode string, produce produceFunc) {
	prompt := c.Query("prompt")
	if strings.TrimSpace(prompt) == "" {
		writeError(c, apperrors.ErrPromptRequired)
		return
	}

	// 客户端断开或处理结束时取消生产者及其在途的上游调用
	ctx, cancel := context.WithCancel(logger.WithContext(c.Request.Context(), logger.GenerationModeKey, mode))
	defer cancel()

	sink := &channelSink{ch: make(chan entity.StreamEvent, streamBuffer)}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(sink.ch)
		if err := produce(ctx, prompt, sink); err != nil && ctx.Err() == nil {
			logger.Warn(ctx, "stream producer stopped", "error", err.Error())
		}
	}()

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	// 设置 SSE 响应头
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	clientGone := c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-sink.ch:
			if !ok {
				// 生产者在终止事件后关闭通道
				return false
			}
			c.SSEvent(string(ev.Kind), ev.Data)
			return true
		case <-ctx.Done():
			return false
		}
	})
	if clientGone {
		logger.Info(ctx, "stream client disconnected")
	}

	cancel()
	wg.Wait()
}
