//go:build wireinject
// +build wireinject

package main

import (
	"project-billing/internal/biz"
	"project-billing/internal/conf"
	"project-billing/internal/data"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// wireApp 初始化应用
func wireApp(*conf.Bootstrap, log.Logger) (*AgentApp, func(), error) {
	panic(wire.Build(
		// Data 层（账本、锁、遥测、配额服务）
		data.ProviderSet,
		data.AgentProviderSet,

		// Biz 层
		biz.ProviderSet,

		// App 结构
		wire.Struct(new(AgentApp), "*"),
	))
}
