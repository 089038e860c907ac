package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified LogService name.
const ServiceName = "remq.v1.LogService"

// Message size limits shared by both ends. A request carries at most one
// body. A response page is cut at the server's byte budget, so it exceeds
// that budget only when a single entry does.
const (
	MaxRequestSize   = 64 << 20
	MaxResponseSize  = MaxRequestSize + 1<<20
	DefaultPageBytes = 4 << 20
)

const (
	methodAppend    = "/" + ServiceName + "/Append"
	methodReadRange = "/" + ServiceName + "/ReadRange"
	methodPrune     = "/" + ServiceName + "/Prune"
	methodHealth    = "/" + ServiceName + "/Health"
)

// LogServer is the server side of LogService.
type LogServer interface {
	Append(context.Context, *AppendRequest) (*AppendResponse, error)
	ReadRange(context.Context, *ReadRangeRequest) (*ReadRangeResponse, error)
	Prune(context.Context, *PruneRequest) (*PruneResponse, error)
	Health(context.Context, *HealthRequest) (*HealthResponse, error)
}

// RegisterLogServer registers srv on s. The server must be created with
// grpc.ForceServerCodec(Codec()) or rely on the registered codec.
func RegisterLogServer(s grpc.ServiceRegistrar, srv LogServer) {
	s.RegisterService(&logServiceDesc, srv)
}

var logServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LogServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Append", methodAppend, LogServer.Append),
		unaryMethod("ReadRange", methodReadRange, LogServer.ReadRange),
		unaryMethod("Prune", methodPrune, LogServer.Prune),
		unaryMethod("Health", methodHealth, LogServer.Health),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "remq/v1/log.proto",
}

func unaryMethod[Req, Resp any](name, fullMethod string, call func(LogServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(LogServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}
