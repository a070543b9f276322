// Package entity 定义领域实体
package entity

import (
	"time"
)

// TimestampLayout 日志条目的时间格式（ISO-8601，毫秒精度，UTC）
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Target 生成目标平台
type Target string

const (
	TargetLinkedIn Target = "linkedin"
	TargetX        Target = "x"
)

// GenerationRequest 生成请求，受理后不可变
type GenerationRequest struct {
	Prompt string `json:"prompt"`
}

// SearchResult 网页搜索结果，保持搜索引擎排名顺序
type SearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url,omitempty"`
}

// LogEntry 单次生成流程的审计日志条目
type LogEntry struct {
	Step      string `json:"step"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// NewLogEntry 以当前时间创建日志条目
func NewLogEntry(step, message string, at time.Time) LogEntry {
	return LogEntry{
		Step:      step,
		Message:   message,
		Timestamp: at.UTC().Format(TimestampLayout),
	}
}

// GenerationResult 一次生成的最终结果
type GenerationResult struct {
	LinkedIn string     `json:"linkedin"`
	X        string     `json:"x"`
	Log      []LogEntry `json:"log"`
}

// Text 返回指定目标的文本
func (r *GenerationResult) Text(t Target) string {
	if t == TargetX {
		return r.X
	}
	return r.LinkedIn
}

// SetText 设置指定目标的文本
func (r *GenerationResult) SetText(t Target, text string) {
	if t == TargetX {
		r.X = text
		return
	}
	r.LinkedIn = text
}

// 流程步骤名
const (
	StepReceivedPrompt     = "Received Prompt"
	StepSearching          = "Searching"
	StepSearchResults      = "Search Results"
	StepDrafting           = "Drafting"
	StepGeneratingLinkedIn = "Generating LinkedIn"
	StepLinkedInComplete   = "LinkedIn Complete"
	StepGeneratingX        = "Generating X"
	StepXComplete          = "X Complete"
	StepFinalizing         = "Finalizing"
	StepError              = "Error"

	// 客户端侧步骤
	StepReconnect = "Reconnect"
	StepFallback  = "Fallback"
)
