// Package router 提供 HTTP 路由配置
package router

import (
	"context"

	"postai-api/internal/config"
	"postai-api/internal/interfaces/http/handler"
	"postai-api/internal/interfaces/http/middleware"
	"postai-api/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies 路由所需的外部依赖
type Dependencies struct {
	Generator handler.Generator
	// Limiter 为 nil 时不限流
	Limiter middleware.RateLimiter
	// Checks 参与 /ready 检查的依赖
	Checks map[string]handler.HealthChecker
}

// Router HTTP 路由器
type Router struct {
	engine *gin.Engine
	cfg    *config.Config
	deps   Dependencies
}

// New 创建新的路由器
func New(cfg *config.Config, deps Dependencies) *Router {
	// 设置 Gin 模式
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	// 限流按 ClientIP 计数，只信任显式配置的代理转发头
	if err := engine.SetTrustedProxies(trustedProxies(cfg)); err != nil {
		logger.Warn(context.Background(), "invalid trusted proxies, using remote address only",
			"error", err.Error(),
		)
		_ = engine.SetTrustedProxies(nil)
	}

	r := &Router{
		engine: engine,
		cfg:    cfg,
		deps:   deps,
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func trustedProxies(cfg *config.Config) []string {
	if len(cfg.Security.TrustedProxies) == 0 {
		return nil
	}
	return cfg.Security.TrustedProxies
}

func (r *Router) metricsPath() string {
	if r.cfg.Observability.Metrics.Path == "" {
		return "/metrics"
	}
	return r.cfg.Observability.Metrics.Path
}

// setupMiddleware 配置中间件
func (r *Router) setupMiddleware() {
	// 基础中间件
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())

	// 追踪中间件
	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name, r.metricsPath()))
		r.engine.Use(middleware.TraceContext())
	}

	// 指标中间件
	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics(r.metricsPath()))
	}

	// CORS 在限流之前，429 响应同样带跨域头
	r.engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: r.cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: r.cfg.Security.CORS.AllowedMethods,
		AllowedHeaders: r.cfg.Security.CORS.AllowedHeaders,
	}))

	rl := r.cfg.Security.RateLimit
	r.engine.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Enabled:   rl.Enabled,
		Limit:     rl.RequestsPerWindow,
		Window:    rl.Window,
		KeyPrefix: rl.KeyPrefix,
		SkipPaths: []string{r.metricsPath()},
	}, r.deps.Limiter))
}

// setupRoutes 配置路由
func (r *Router) setupRoutes() {
	healthHandler := handler.NewHealthHandler(r.deps.Checks)
	generateHandler := handler.NewGenerateHandler(r.deps.Generator)
	streamHandler := handler.NewStreamHandler(r.deps.Generator)

	// 系统端点
	r.engine.GET("/health", healthHandler.Health)
	r.engine.GET("/ready", healthHandler.Ready)
	r.engine.GET("/live", healthHandler.Live)

	// Prometheus 指标端点
	if r.cfg.Observability.Metrics.Enabled {
		r.engine.GET(r.metricsPath(), gin.WrapH(promhttp.Handler()))
	}

	api := r.engine.Group("/api")
	{
		api.POST("/generate", generateHandler.Generate)
		api.GET("/generate/stream", streamHandler.Stream)           // SSE
		api.GET("/generate/stream-tokens", streamHandler.StreamTokens) // SSE
	}
}
