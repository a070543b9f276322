// Package memory 提供进程内的存储实现
package memory

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count int
	start time.Time
}

// RateLimiter 进程内固定窗口限流器
// 窗口从该键的第一个请求开始；当前时间距窗口起点超过 window 时重置
type RateLimiter struct {
	mu        sync.Mutex
	windows   map[string]*window
	now       func() time.Time
	lastSweep time.Time
}

// Option 限流器选项
type Option func(*RateLimiter)

// WithClock 指定时间源
func WithClock(now func() time.Time) Option {
	return func(l *RateLimiter) { l.now = now }
}

// NewRateLimiter 创建限流器
func NewRateLimiter(opts ...Option) *RateLimiter {
	l := &RateLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastSweep = l.now()
	return l
}

// Allow 计数并判断是否超过上限，超限请求同样计数
func (l *RateLimiter) Allow(_ context.Context, key string, limit int, win time.Duration) (bool, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now, win)

	w, ok := l.windows[key]
	if !ok {
		w = &window{start: now}
		l.windows[key] = w
	}
	if now.Sub(w.start) > win {
		w.count = 0
		w.start = now
	}
	w.count++
	return w.count <= limit, nil
}

// Len 当前跟踪的键数量
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// sweep 定期清理已过期的窗口，调用方需持有锁
func (l *RateLimiter) sweep(now time.Time, win time.Duration) {
	if now.Sub(l.lastSweep) <= win {
		return
	}
	for key, w := range l.windows {
		if now.Sub(w.start) > win {
			delete(l.windows, key)
		}
	}
	l.lastSweep = now
}
