package grpcserver

import (
	"context"

	"github.com/kainosnoema/remq/internal/rpc"
	"github.com/kainosnoema/remq/internal/runtime"
)

// logSvc serves the runtime's persisted log. Errors are mapped to statuses
// that rpc.Client turns back into remq errors.
type logSvc struct {
	rt        *runtime.Runtime
	pageBytes int
}

func (s *logSvc) Append(ctx context.Context, req *rpc.AppendRequest) (*rpc.AppendResponse, error) {
	id, err := s.rt.Log().Append(ctx, req.Channel, req.Body)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	return &rpc.AppendResponse{ID: id}, nil
}

func (s *logSvc) ReadRange(ctx context.Context, req *rpc.ReadRangeRequest) (*rpc.ReadRangeResponse, error) {
	msgs, more, err := s.rt.Log().ReadPage(ctx, req.Pattern, req.AfterID, int(req.Limit), s.pageBytes)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	return &rpc.ReadRangeResponse{Messages: msgs, More: more}, nil
}

func (s *logSvc) Prune(ctx context.Context, req *rpc.PruneRequest) (*rpc.PruneResponse, error) {
	n, err := s.rt.Log().Prune(ctx, req.Pattern, req.Policy())
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	return &rpc.PruneResponse{Removed: uint64(n)}, nil
}
