//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"postai-api/internal/config"
	"postai-api/internal/interfaces/http/router"
)

// InitializeApp 初始化 API 服务
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	panic(wire.Build(ProviderSet))
}
