// Package search 提供用于生成上下文的网页搜索客户端
package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"postai-api/internal/config"
	"postai-api/internal/domain/entity"
	"postai-api/pkg/logger"
	"postai-api/pkg/metrics"
	"postai-api/pkg/tracer"
)

// 降级结果文案
const (
	placeholderSnippet = "No search key provided; using placeholder context."
	failedTitle        = "Search failed"
	failedSnippet      = "Search API error or network issue."
)

// Provider 名称
const (
	ProviderBing   = "bing"
	ProviderBrave  = "brave"
	ProviderSerper = "serper"
)

// Doer 发送 HTTP 请求，便于测试注入
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Searcher 搜索接口，实现方保证不向调用方返回错误
type Searcher interface {
	Search(ctx context.Context, query string) []entity.SearchResult
}

// provider 具体搜索引擎适配
type provider interface {
	name() string
	fetch(ctx context.Context, doer Doer, apiKey, query string, count int) ([]entity.SearchResult, error)
}

// Client 网页搜索客户端
type Client struct {
	provider provider
	apiKey   string
	count    int
	timeout  time.Duration
	doer     Doer
}

// Option 客户端选项
type Option func(*Client)

// WithDoer 指定 HTTP 客户端
func WithDoer(d Doer) Option {
	return func(c *Client) { c.doer = d }
}

// NewClient 根据配置创建搜索客户端
func NewClient(cfg config.SearchConfig, opts ...Option) (*Client, error) {
	var p provider
	switch cfg.Provider {
	case "", ProviderBing:
		p = bing{endpoint: firstNonEmpty(cfg.Endpoint, bingEndpoint)}
	case ProviderBrave:
		p = brave{endpoint: firstNonEmpty(cfg.Endpoint, braveEndpoint)}
	case ProviderSerper:
		p = serper{endpoint: firstNonEmpty(cfg.Endpoint, serperEndpoint)}
	default:
		return nil, fmt.Errorf("unsupported search provider %q", cfg.Provider)
	}

	c := &Client{
		provider: p,
		apiKey:   cfg.APIKey,
		count:    cfg.Count,
		timeout:  cfg.Timeout,
	}
	if c.count <= 0 {
		c.count = 3
	}
	if c.timeout <= 0 {
		c.timeout = 10 * time.Second
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.doer == nil {
		c.doer = &http.Client{Timeout: c.timeout}
	}
	return c, nil
}

// Search 执行搜索。无密钥返回占位结果，上游失败返回失败标记结果
func (c *Client) Search(ctx context.Context, query string) []entity.SearchResult {
	providerName := c.provider.name()
	if c.apiKey == "" {
		metrics.SearchTotal.WithLabelValues(providerName, "placeholder").Inc()
		return []entity.SearchResult{Placeholder(query)}
	}

	ctx, span := tracer.Start(ctx, "search.query")
	defer span.End()
	span.SetAttributes(attribute.String("search.provider", providerName))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	results, err := c.provider.fetch(ctx, c.doer, c.apiKey, query, c.count)
	metrics.SearchDuration.WithLabelValues(providerName).Observe(time.Since(start).Seconds())
	if err != nil {
		tracer.RecordError(span, err)
		metrics.SearchTotal.WithLabelValues(providerName, "failed").Inc()
		logger.Warn(ctx, "web search failed, using failure marker",
			"provider", providerName,
			"error", err.Error(),
		)
		return []entity.SearchResult{Failed()}
	}

	if len(results) > c.count {
		results = results[:c.count]
	}
	span.SetAttributes(attribute.Int("search.results", len(results)))
	metrics.SearchTotal.WithLabelValues(providerName, "ok").Inc()
	return results
}

// Placeholder 无搜索密钥时的占位结果
func Placeholder(query string) entity.SearchResult {
	return entity.SearchResult{
		Title:   "Placeholder result for " + query,
		Snippet: placeholderSnippet,
	}
}

// Failed 上游失败时的标记结果
func Failed() entity.SearchResult {
	return entity.SearchResult{Title: failedTitle, Snippet: failedSnippet}
}

// readBody 读取响应体，非 2xx 时返回错误
func readBody(resp *http.Response, providerName string) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", providerName, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s %d: %s", providerName, resp.StatusCode, truncate(string(body), 300))
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
