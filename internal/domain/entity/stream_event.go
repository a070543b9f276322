package entity

import (
	"encoding/json"
	"fmt"
)

// EventKind SSE 事件名
type EventKind string

const (
	EventLog          EventKind = "log"
	EventLinkedIn     EventKind = "linkedin"
	EventX            EventKind = "x"
	EventToken        EventKind = "token"
	EventLinkedInDone EventKind = "linkedin_done"
	EventXDone        EventKind = "x_done"
	EventDone         EventKind = "done"
	EventError        EventKind = "error"
)

// TextPayload linkedin / x / *_done 事件载荷
type TextPayload struct {
	Text string `json:"text"`
}

// TokenPayload token 事件载荷
type TokenPayload struct {
	Which Target `json:"which"`
	Token string `json:"token"`
}

// DonePayload done 事件载荷
type DonePayload struct {
	LinkedIn string `json:"linkedin"`
	X        string `json:"x"`
}

// ErrorPayload error 事件载荷
type ErrorPayload struct {
	Message string `json:"message"`
}

// StreamEvent 有序推送给客户端的事件，Data 为上述载荷之一
type StreamEvent struct {
	Kind EventKind
	Data any
}

// Terminal 是否为结束事件
func (e StreamEvent) Terminal() bool {
	return e.Kind == EventDone
}

// LogEvent 构造 log 事件
func LogEvent(entry LogEntry) StreamEvent {
	return StreamEvent{Kind: EventLog, Data: entry}
}

// TextEvent 构造 coarse 模式下的 linkedin / x 事件
func TextEvent(t Target, text string) StreamEvent {
	kind := EventLinkedIn
	if t == TargetX {
		kind = EventX
	}
	return StreamEvent{Kind: kind, Data: TextPayload{Text: text}}
}

// TokenEvent 构造 token 事件
func TokenEvent(t Target, token string) StreamEvent {
	return StreamEvent{Kind: EventToken, Data: TokenPayload{Which: t, Token: token}}
}

// TargetDoneEvent 构造 {target}_done 事件
func TargetDoneEvent(t Target, text string) StreamEvent {
	kind := EventLinkedInDone
	if t == TargetX {
		kind = EventXDone
	}
	return StreamEvent{Kind: kind, Data: TextPayload{Text: text}}
}

// DoneEvent 构造 done 事件
func DoneEvent(linkedin, x string) StreamEvent {
	return StreamEvent{Kind: EventDone, Data: DonePayload{LinkedIn: linkedin, X: x}}
}

// ErrorEvent 构造 error 事件
func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Kind: EventError, Data: ErrorPayload{Message: message}}
}

// DecodeStreamEvent 将线上的事件名与 JSON 数据还原为 StreamEvent
func DecodeStreamEvent(kind string, data []byte) (StreamEvent, error) {
	ev := StreamEvent{Kind: EventKind(kind)}
	var err error
	switch ev.Kind {
	case EventLog:
		var p LogEntry
		err = json.Unmarshal(data, &p)
		ev.Data = p
	case EventLinkedIn, EventX, EventLinkedInDone, EventXDone:
		var p TextPayload
		err = json.Unmarshal(data, &p)
		ev.Data = p
	case EventToken:
		var p TokenPayload
		err = json.Unmarshal(data, &p)
		ev.Data = p
	case EventDone:
		var p DonePayload
		err = json.Unmarshal(data, &p)
		ev.Data = p
	case EventError:
		var p ErrorPayload
		err = json.Unmarshal(data, &p)
		ev.Data = p
	default:
		return ev, fmt.Errorf("unknown stream event %q", kind)
	}
	if err != nil {
		return ev, fmt.Errorf("decode %s event: %w", kind, err)
	}
	return ev, nil
}
