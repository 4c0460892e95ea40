package server

import (
	"project-billing/internal/conf"

	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/grpc"
)

// NewGRPCServer new a gRPC server.
// 账本接口只通过 HTTP 提供，gRPC 端口保留 kratos 内置的 health 与 reflection 服务。
func NewGRPCServer(c *conf.Bootstrap) *grpc.Server {
	var opts = []grpc.ServerOption{
		grpc.Middleware(
			recovery.Recovery(),
		),
	}
	if c.Server != nil && c.Server.Grpc != nil {
		if c.Server.Grpc.Network != "" {
			opts = append(opts, grpc.Network(c.Server.Grpc.Network))
		}
		if c.Server.Grpc.Addr != "" {
			opts = append(opts, grpc.Address(c.Server.Grpc.Addr))
		}
		if c.Server.Grpc.Timeout != nil {
			opts = append(opts, grpc.Timeout(c.Server.Grpc.Timeout.AsDuration()))
		}
	}
	return grpc.NewServer(opts...)
}
