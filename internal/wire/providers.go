// Package wire 提供依赖注入配置
package wire

import (
	"context"
	"fmt"

	"github.com/google/wire"

	"postai-api/internal/application/generation"
	"postai-api/internal/config"
	"postai-api/internal/infrastructure/llm"
	"postai-api/internal/infrastructure/persistence/memory"
	"postai-api/internal/infrastructure/persistence/redis"
	"postai-api/internal/infrastructure/search"
	"postai-api/internal/interfaces/http/handler"
	"postai-api/internal/interfaces/http/middleware"
	"postai-api/internal/interfaces/http/router"
	"postai-api/pkg/logger"
)

// ProviderSet API 服务的全部依赖
var ProviderSet = wire.NewSet(
	ProvideRedisClient,
	ProvideRateLimiter,
	ProvideCompletionClient,
	ProvideSearcher,
	ProvideGenerationService,
	ProvideHealthChecks,
	ProvideRouterDependencies,
	ProvideRouter,
)

// ProvideRedisClient 仅在限流存储为 redis 时建立连接，否则返回 nil
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	if !cfg.Security.RateLimit.Enabled || cfg.Security.RateLimit.Store != "redis" {
		return nil, func() {}, nil
	}
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("connect rate limit store: %w", err)
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			logger.Error(context.Background(), "failed to close redis", err)
		}
	}
	return client, cleanup, nil
}

// ProvideRateLimiter 选择限流存储
func ProvideRateLimiter(cfg *config.Config, rc *redis.Client) middleware.RateLimiter {
	if !cfg.Security.RateLimit.Enabled {
		return nil
	}
	if rc != nil {
		return redis.NewRateLimiter(rc)
	}
	return memory.NewRateLimiter()
}

// ProvideCompletionClient 创建补全客户端；未配置凭据时为 nil，在每次请求中报告
func ProvideCompletionClient(ctx context.Context, cfg *config.Config) (llm.CompletionClient, error) {
	client, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	if client == nil {
		logger.Warn(ctx, "model api key not configured, generation requests will return empty posts")
	}
	return client, nil
}

// ProvideSearcher 创建网页搜索客户端
func ProvideSearcher(cfg *config.Config) (search.Searcher, error) {
	client, err := search.NewClient(cfg.Search)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// ProvideGenerationService 创建生成流程编排器
func ProvideGenerationService(cfg *config.Config, searcher search.Searcher, client llm.CompletionClient) *generation.Service {
	provider, _ := cfg.LLM.Provider()
	return generation.NewService(searcher, client, cfg.Generation, provider.Model)
}

// ProvideHealthChecks 收集参与就绪检查的依赖
func ProvideHealthChecks(rc *redis.Client) map[string]handler.HealthChecker {
	checks := map[string]handler.HealthChecker{}
	if rc != nil {
		checks["redis"] = rc
	}
	return checks
}

// ProvideRouterDependencies 组装路由依赖
func ProvideRouterDependencies(svc *generation.Service, limiter middleware.RateLimiter, checks map[string]handler.HealthChecker) router.Dependencies {
	return router.Dependencies{
		Generator: svc,
		Limiter:   limiter,
		Checks:    checks,
	}
}

// ProvideRouter 创建路由器
func ProvideRouter(cfg *config.Config, deps router.Dependencies) *router.Router {
	return router.New(cfg, deps)
}
