// Package client 实现 PostAI 的客户端会话：批量请求、SSE 消费与断线重连
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"postai-api/internal/domain/entity"
	"postai-api/pkg/logger"
)

// State 会话状态
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateCompleted
	StateReconnecting
	StateFallenBack
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateReconnecting:
		return "reconnecting"
	case StateFallenBack:
		return "fallen_back"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DefaultMaxAttempts 放弃流式并回退到批量请求前的最大重连次数
const DefaultMaxAttempts = 5

const (
	msgReconnect = "Stream error — reconnecting in %dms (attempt %d)"
	msgFallback  = "Stream failed repeatedly — fetching final result"
)

// errStreamEnded 连接在 done 事件之前结束
var errStreamEnded = errors.New("stream ended before done")

// View 会话当前累积的输出
type View struct {
	LinkedIn string
	X        string
	Log      []entity.LogEntry
	State    State
}

// Session 单个提示词的客户端会话，同一时间只运行一个请求
type Session struct {
	transport   Transport
	clock       Clock
	maxAttempts int

	onLog   func(entity.LogEntry)
	onText  func(entity.Target, string)
	onState func(State)

	run sync.Mutex

	mu       sync.Mutex
	state    State
	attempts int
	view     entity.GenerationResult
}

// Option 会话选项
type Option func(*Session)

// WithClock 指定时钟，测试中用于跳过退避等待
func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithMaxAttempts 指定最大重连次数
func WithMaxAttempts(n int) Option {
	return func(s *Session) {
		if n >= 0 {
			s.maxAttempts = n
		}
	}
}

// OnLog 每追加一条日志时回调
func OnLog(fn func(entity.LogEntry)) Option {
	return func(s *Session) { s.onLog = fn }
}

// OnText 帖子文本变化时回调，参数为该目标的完整当前文本
func OnText(fn func(entity.Target, string)) Option {
	return func(s *Session) { s.onText = fn }
}

// OnState 状态迁移时回调
func OnState(fn func(State)) Option {
	return func(s *Session) { s.onState = fn }
}

// NewSession 创建会话
func NewSession(t Transport, opts ...Option) *Session {
	s := &Session{
		transport:   t,
		clock:       SystemClock{},
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State 当前状态
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View 返回当前累积输出的副本
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		LinkedIn: s.view.LinkedIn,
		X:        s.view.X,
		Log:      append([]entity.LogEntry(nil), s.view.Log...),
		State:    s.state,
	}
}

// Generate 批量请求，失败时追加 Error 日志
func (s *Session) Generate(ctx context.Context, prompt string) (View, error) {
	s.run.Lock()
	defer s.run.Unlock()

	s.reset()
	s.setState(StateConnecting)
	err := s.batch(ctx, prompt)
	s.setState(StateCompleted)
	return s.View(), err
}

// Stream 消费粗粒度事件流
func (s *Session) Stream(ctx context.Context, prompt string) (View, error) {
	return s.stream(ctx, PathStream, prompt)
}

// StreamTokens 消费 token 级事件流
func (s *Session) StreamTokens(ctx context.Context, prompt string) (View, error) {
	return s.stream(ctx, PathStreamTokens, prompt)
}

func (s *Session) stream(ctx context.Context, path, prompt string) (View, error) {
	s.run.Lock()
	defer s.run.Unlock()

	s.reset()
	for {
		s.setState(StateConnecting)
		err := s.consume(ctx, path, prompt)
		if err == nil {
			s.mu.Lock()
			s.attempts = 0
			s.mu.Unlock()
			s.setState(StateCompleted)
			return s.View(), nil
		}
		if ctx.Err() != nil {
			return s.View(), ctx.Err()
		}

		s.mu.Lock()
		s.attempts++
		attempt := s.attempts
		s.mu.Unlock()

		logger.Warn(ctx, "event stream interrupted", "path", path, "attempt", attempt, "error", err.Error())

		if attempt > s.maxAttempts {
			return s.fallback(ctx, prompt)
		}

		delay := Backoff(attempt)
		s.setState(StateReconnecting)
		s.appendLog(entity.StepReconnect, fmt.Sprintf(msgReconnect, delay.Milliseconds(), attempt))
		if err := s.clock.Sleep(ctx, delay); err != nil {
			return s.View(), err
		}
	}
}

// consume 打开一次连接并处理事件直到 done；返回 nil 表示正常结束
func (s *Session) consume(ctx context.Context, path, prompt string) error {
	es, err := s.transport.Open(ctx, path, prompt)
	if err != nil {
		return err
	}
	defer es.Close()

	first := true
	// 服务端推送 error 后直接关闭连接视为正常结束，不重连
	afterError := false
	for {
		raw, err := es.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if afterError {
					return nil
				}
				return errStreamEnded
			}
			return err
		}
		if first {
			s.setState(StateStreaming)
			first = false
		}

		ev, err := entity.DecodeStreamEvent(raw.Name, raw.Data)
		if err != nil {
			// 无法识别的事件忽略
			logger.Debug(ctx, "skipping stream event", "event", raw.Name, "error", err.Error())
			continue
		}
		if s.apply(ev) {
			return nil
		}
		afterError = ev.Kind == entity.EventError
	}
}

// apply 把事件合并进视图，返回是否为终止事件
func (s *Session) apply(ev entity.StreamEvent) bool {
	switch p := ev.Data.(type) {
	case entity.LogEntry:
		s.appendEntry(p)
	case entity.TextPayload:
		target := entity.TargetLinkedIn
		if ev.Kind == entity.EventX || ev.Kind == entity.EventXDone {
			target = entity.TargetX
		}
		s.setText(target, p.Text)
	case entity.TokenPayload:
		s.mu.Lock()
		text := s.view.Text(p.Which) + p.Token
		s.mu.Unlock()
		s.setText(p.Which, text)
	case entity.DonePayload:
		s.setText(entity.TargetLinkedIn, p.LinkedIn)
		s.setText(entity.TargetX, p.X)
	case entity.ErrorPayload:
		s.appendLog(entity.StepError, p.Message)
	}
	return ev.Terminal()
}

// fallback 放弃流式，以一次批量请求取得最终结果
func (s *Session) fallback(ctx context.Context, prompt string) (View, error) {
	s.setState(StateFallenBack)
	s.appendLog(entity.StepFallback, msgFallback)
	err := s.batch(ctx, prompt)
	return s.View(), err
}

// batch 发出批量请求；成功时替换文本并追加服务端日志
func (s *Session) batch(ctx context.Context, prompt string) error {
	result, err := s.transport.Generate(ctx, prompt)
	if err != nil {
		s.appendLog(entity.StepError, err.Error())
		return err
	}
	s.setText(entity.TargetLinkedIn, result.LinkedIn)
	s.setText(entity.TargetX, result.X)
	for _, entry := range result.Log {
		s.appendEntry(entry)
	}
	return nil
}

func (s *Session) reset() {
	s.mu.Lock()
	s.view = entity.GenerationResult{}
	s.attempts = 0
	s.state = StateIdle
	s.mu.Unlock()
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	changed := s.state != st
	s.state = st
	s.mu.Unlock()
	if changed && s.onState != nil {
		s.onState(st)
	}
}

func (s *Session) setText(t entity.Target, text string) {
	s.mu.Lock()
	s.view.SetText(t, text)
	s.mu.Unlock()
	if s.onText != nil {
		s.onText(t, text)
	}
}

func (s *Session) appendLog(step, message string) {
	s.appendEntry(entity.NewLogEntry(step, message, s.clock.Now()))
}

func (s *Session) appendEntry(entry entity.LogEntry) {
	s.mu.Lock()
	s.view.Log = append(s.view.Log, entry)
	s.mu.Unlock()
	if s.onLog != nil {
		s.onLog(entry)
	}
}

// Backoff 第 attempt 次重连前的等待时间：500ms * 2^attempt，上限 30s
func Backoff(attempt int) time.Duration {
	const (
		base    = 500 * time.Millisecond
		maxWait = 30 * time.Second
	)
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 16 {
		return maxWait
	}
	return min(maxWait, base<<uint(attempt))
}
