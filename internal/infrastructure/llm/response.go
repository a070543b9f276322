package llm

import (
	"bytes"
	"encoding/json"

	apperrors "postai-api/pkg/errors"
)

// ContentKind 消息内容的形态
type ContentKind int

const (
	// ContentAbsent 无内容字段或为 null
	ContentAbsent ContentKind = iota
	// ContentString 纯字符串内容
	ContentString
	// ContentParts 类型化内容片段列表
	ContentParts
)

// ContentPart 类型化内容片段，Text 为 nil 表示片段不携带字符串文本
type ContentPart struct {
	Type string
	Text *string
}

// Content 消息内容（字符串或片段列表）
type Content struct {
	Kind  ContentKind
	Text  string
	Parts []ContentPart
}

// Message 补全返回的消息
type Message struct {
	Role    string
	Content Content
}

// Choice 候选结果；Message 与 Text 均可缺省
type Choice struct {
	Message *Message
	// Text 旧版 completions 接口的顶层文本字段
	Text *string
}

// Response 提供商返回的补全结果，覆盖其可能出现的各种形态
type Response struct {
	Model   string
	Choices []Choice
}

// StringContent 构造纯字符串内容的单候选响应
func StringContent(text string) *Response {
	return &Response{Choices: []Choice{{
		Message: &Message{Role: "assistant", Content: Content{Kind: ContentString, Text: text}},
	}}}
}

type rawResponse struct {
	Model   string      `json:"model"`
	Choices []rawChoice `json:"choices"`
}

type rawChoice struct {
	Message *rawMessage     `json:"message"`
	Text    json.RawMessage `json:"text"`
}

type rawMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// DecodeResponse 解析原始 chat completion JSON，不预设 content 的类型
func DecodeResponse(data []byte) (*Response, error) {
	var raw rawResponse
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperrors.ErrMalformedResponse.WithError(err)
	}

	resp := &Response{Model: raw.Model, Choices: make([]Choice, 0, len(raw.Choices))}
	for _, rc := range raw.Choices {
		choice := Choice{Text: optionalString(rc.Text)}
		if rc.Message != nil {
			choice.Message = &Message{Role: rc.Message.Role, Content: decodeContent(rc.Message.Content)}
		}
		resp.Choices = append(resp.Choices, choice)
	}
	return resp, nil
}

func decodeContent(data json.RawMessage) Content {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Content{Kind: ContentAbsent}
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return Content{Kind: ContentString, Text: s}
		}
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err == nil {
			parts := make([]ContentPart, 0, len(items))
			for _, item := range items {
				parts = append(parts, decodePart(item))
			}
			return Content{Kind: ContentParts, Parts: parts}
		}
	}
	return Content{Kind: ContentAbsent}
}

func decodePart(data json.RawMessage) ContentPart {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return ContentPart{}
	}
	part := ContentPart{Text: optionalString(fields["text"])}
	if t := optionalString(fields["type"]); t != nil {
		part.Type = *t
	}
	return part
}

// optionalString 仅当字段为 JSON 字符串时返回其值
func optionalString(data json.RawMessage) *string {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return nil
	}
	return &s
}
