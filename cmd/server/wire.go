//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"project-billing/internal/biz"
	"project-billing/internal/conf"
	"project-billing/internal/data"
	"project-billing/internal/server"
	"project-billing/internal/service"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// wireApp init kratos application.
func wireApp(*conf.Bootstrap, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(server.ProviderSet, data.ProviderSet, data.AgentProviderSet, biz.ProviderSet, service.ProviderSet, newApp))
}
