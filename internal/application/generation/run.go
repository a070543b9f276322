package generation

import (
	"context"
	"errors"
	"io"
	"time"

	"go.opentelemetry.io/otel/trace"

	"postai-api/internal/domain/entity"
	apperrors "postai-api/pkg/errors"
	"postai-api/pkg/logger"
	"postai-api/pkg/metrics"
	"postai-api/pkg/tracer"
)

// run 单次生成的可变状态，只在处理该请求的 goroutine 内使用
type run struct {
	ctx    context.Context
	svc    *Service
	mode   string
	sink   EventSink
	span   trace.Span
	start  time.Time
	result entity.GenerationResult

	sinkErr error
	status  string
}

// log 追加审计日志，流式模式下同时推送 log 事件
func (r *run) log(step, message string) {
	entry := entity.NewLogEntry(step, message, r.svc.now())
	r.result.Log = append(r.result.Log, entry)
	logger.Info(r.ctx, "generation step", "step", step)
	r.emit(entity.LogEvent(entry))
}

// record 仅追加审计日志，不推送事件
func (r *run) record(step, message string) {
	r.result.Log = append(r.result.Log, entity.NewLogEntry(step, message, r.svc.now()))
}

func (r *run) emit(ev entity.StreamEvent) {
	if r.sink == nil || r.sinkErr != nil {
		return
	}
	if err := r.sink.Emit(r.ctx, ev); err != nil {
		r.sinkErr = err
		r.status = "canceled"
		logger.Info(r.ctx, "stream consumer gone, stopping producer", "event", string(ev.Kind), "error", err.Error())
		return
	}
	metrics.StreamEventsTotal.WithLabelValues(string(ev.Kind)).Inc()
}

// stopped 客户端断开或请求上下文结束
func (r *run) stopped() bool {
	if r.sinkErr != nil {
		return true
	}
	if err := r.ctx.Err(); err != nil {
		r.sinkErr = err
		r.status = "canceled"
		return true
	}
	return false
}

// terminate 不可恢复的错误：两个文本置空并结束本次流程
// 批量模式记录 Error 日志；流式模式推送 error 与 done
func (r *run) terminate(err error) {
	msg := errorMessage(err)
	r.result.LinkedIn, r.result.X = "", ""
	r.status = "failed"
	tracer.RecordError(r.span, err)
	logger.Warn(r.ctx, "generation terminated", "reason", msg)

	r.record(entity.StepError, msg)
	r.emit(entity.ErrorEvent(msg))
	r.emit(entity.DoneEvent("", ""))
}

// targetFailed 单个目标上游失败：记录错误后继续
func (r *run) targetFailed(target entity.Target, err error) {
	msg := errorMessage(err)
	r.status = "partial"
	tracer.RecordError(r.span, err)
	logger.Error(r.ctx, "target generation failed", err, "target", string(target))

	r.record(entity.StepError, msg)
	r.emit(entity.ErrorEvent(msg))
}

func (r *run) logGenerating(target entity.Target) {
	if target == entity.TargetLinkedIn {
		r.log(entity.StepGeneratingLinkedIn, msgGeneratingLI)
		return
	}
	r.log(entity.StepGeneratingX, msgGeneratingX)
}

func (r *run) logCompletion(target entity.Target) {
	text := r.result.Text(target)
	switch target {
	case entity.TargetLinkedIn:
		r.log(entity.StepLinkedInComplete, pick(text != "", msgLinkedInDone, msgLinkedInEmpty))
	default:
		r.log(entity.StepXComplete, pick(text != "", msgXDone, msgXEmpty))
	}
}

func (r *run) done() {
	r.emit(entity.DoneEvent(r.result.LinkedIn, r.result.X))
}

func (r *run) finish() {
	metrics.GenerationTotal.WithLabelValues(r.mode, r.status).Inc()
	metrics.GenerationDuration.WithLabelValues(r.mode).Observe(r.svc.now().Sub(r.start).Seconds())
	r.span.End()
}

// errorMessage 生成日志中展示的错误文案
func errorMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Err != nil {
			return appErr.Message + ": " + appErr.Err.Error()
		}
		return appErr.Message
	}
	return err.Error()
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}

func pick(cond bool, a, b string) string {
	if cond {
		return a
	}
	return b
}
