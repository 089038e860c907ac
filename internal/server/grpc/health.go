package grpcserver

import (
	"context"

	"github.com/kainosnoema/remq/internal/rpc"
)

func (s *logSvc) Health(ctx context.Context, _ *rpc.HealthRequest) (*rpc.HealthResponse, error) {
	if err := s.rt.CheckHealth(ctx); err != nil {
		return &rpc.HealthResponse{Status: "not_serving"}, nil
	}
	return &rpc.HealthResponse{
		Status:    "ok",
		Namespace: s.rt.Namespace().Name,
		LastID:    s.rt.Log().LastID(),
	}, nil
}
