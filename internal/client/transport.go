package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/openai/openai-go/packages/ssestream"

	"postai-api/internal/domain/entity"
)

// 服务端路径
const (
	PathGenerate     = "/api/generate"
	PathStream       = "/api/generate/stream"
	PathStreamTokens = "/api/generate/stream-tokens"
)

// Event 线上的一帧 SSE 事件
type Event struct {
	Name string
	Data []byte
}

// EventStream 单次连接上的事件序列，Next 在连接结束时返回 io.EOF
type EventStream interface {
	Next() (Event, error)
	Close() error
}

// Transport 会话与服务端之间的传输
type Transport interface {
	Open(ctx context.Context, path, prompt string) (EventStream, error)
	Generate(ctx context.Context, prompt string) (*entity.GenerationResult, error)
}

// StatusError 服务端返回的非 2xx 响应
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status code %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed with status code %d: %s", e.StatusCode, e.Message)
}

// HTTPTransport 基于 HTTP 的传输实现
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTransport 创建 HTTP 传输；client 为 nil 时使用 http.DefaultClient
func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Open 发起 SSE 请求
func (t *HTTPTransport) Open(ctx context.Context, path, prompt string) (EventStream, error) {
	u := t.baseURL + path + "?prompt=" + url.QueryEscape(prompt)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return &sseStream{dec: ssestream.NewDecoder(resp)}, nil
}

// Generate 批量请求
func (t *HTTPTransport) Generate(ctx context.Context, prompt string) (*entity.GenerationResult, error) {
	body, err := json.Marshal(entity.GenerationRequest{Prompt: prompt})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+PathGenerate, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	var result entity.GenerationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode generation result: %w", err)
	}
	return &result, nil
}

func statusError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	_ = json.Unmarshal(data, &body)
	return &StatusError{StatusCode: resp.StatusCode, Message: body.Error}
}

type sseStream struct {
	dec ssestream.Decoder
}

func (s *sseStream) Next() (Event, error) {
	if s.dec.Next() {
		ev := s.dec.Event()
		return Event{Name: ev.Type, Data: ev.Data}, nil
	}
	if err := s.dec.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}

func (s *sseStream) Close() error {
	return s.dec.Close()
}
