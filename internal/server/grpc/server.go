package grpcserver

import (
	"context"
	"net"
	"sync"

	"github.com/kainosnoema/remq/internal/rpc"
	"github.com/kainosnoema/remq/internal/runtime"
	logpkg "github.com/kainosnoema/remq/pkg/log"
	"google.golang.org/grpc"
)

// Server owns the gRPC server instance and runtime.
type Server struct {
	rt     *runtime.Runtime
	grpc   *grpc.Server
	mu     sync.Mutex
	lis    net.Listener
	logger logpkg.Logger
	extra  []grpc.ServerOption

	// pageBytes caps the channel and body bytes of one ReadRange response.
	pageBytes int
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l logpkg.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPageBytes sets the ReadRange byte budget. Values <= 0 keep
// rpc.DefaultPageBytes.
func WithPageBytes(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.pageBytes = n
		}
	}
}

// WithServerOptions appends options passed to grpc.NewServer.
func WithServerOptions(opts ...grpc.ServerOption) Option {
	return func(s *Server) { s.extra = append(s.extra, opts...) }
}

// New constructs a gRPC server and registers the log service.
func New(rt *runtime.Runtime, opts ...Option) *Server {
	s := &Server{rt: rt, logger: logpkg.NewNopLogger(), pageBytes: rpc.DefaultPageBytes}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With(logpkg.Component("grpc"))
	grpcOpts := append([]grpc.ServerOption{
		grpc.ForceServerCodec(rpc.Codec()),
		grpc.MaxRecvMsgSize(rpc.MaxRequestSize),
		grpc.MaxSendMsgSize(rpc.MaxResponseSize),
		grpc.ChainUnaryInterceptor(s.logCalls),
	}, s.extra...)
	s.grpc = grpc.NewServer(grpcOpts...)
	rpc.RegisterLogServer(s.grpc, &logSvc{rt: rt, pageBytes: s.pageBytes})
	return s
}

// ListenAndServe binds to addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve serves on l until ctx is done. The listener is closed on return.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.mu.Lock()
	s.lis = l
	s.mu.Unlock()
	s.logger.Info("grpc listening", logpkg.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(l) }()
	select {
	case <-ctx.Done():
		s.grpc.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// Close stops the server and closes the listener.
func (s *Server) Close() {
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func (s *Server) logCalls(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	if err != nil {
		s.logger.Debug("grpc call failed", logpkg.Str("method", info.FullMethod), logpkg.Err(err))
	}
	return resp, err
}
