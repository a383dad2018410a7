package grpc

import (
	"context"
	"fmt"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/example/bookshop/pkg/config"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// Check reports whether one backing dependency is usable.
type Check func(ctx context.Context) error

// OrderServer is the gRPC endpoint registered in etcd. It serves the standard
// health protocol, reporting the order service as serving only while all of
// its dependency checks pass.
type OrderServer struct {
	server  *grpc.Server
	health  *health.Server
	name    string
	addr    string
	logger  *zap.Logger
	mu      sync.Mutex
	serving bool
}

func NewOrderServer(cfg *config.ServerConfig, logger *zap.Logger) *OrderServer {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		recoveryInterceptor(logger),
		loggingInterceptor(logger),
	))
	h := health.NewServer()
	healthpb.RegisterHealthServer(srv, h)
	reflection.Register(srv)

	h.SetServingStatus(cfg.Name, healthpb.HealthCheckResponse_NOT_SERVING)

	return &OrderServer{
		server: srv,
		health: h,
		name:   cfg.Name,
		addr:   cfg.Addr(),
		logger: logger,
	}
}

func (s *OrderServer) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

func (s *OrderServer) Serve(lis net.Listener) error {
	s.logger.Info("Order gRPC server started", zap.String("address", lis.Addr().String()))
	return s.server.Serve(lis)
}

func (s *OrderServer) SetServing(serving bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.serving == serving {
		return
	}
	s.serving = serving

	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(s.name, st)
	s.logger.Info("Health status changed", zap.String("service", s.name), zap.String("status", st.String()))
}

// CheckOnce runs every check and updates the health status.
func (s *OrderServer) CheckOnce(ctx context.Context, checks map[string]Check) {
	ok := true
	for name, check := range checks {
		if err := check(ctx); err != nil {
			ok = false
			s.logger.Warn("Dependency check failed", zap.String("dependency", name), zap.Error(err))
		}
	}
	s.SetServing(ok)
}

// WatchDependencies runs CheckOnce immediately and then every interval until
// ctx is done.
func (s *OrderServer) WatchDependencies(ctx context.Context, interval time.Duration, checks map[string]Check) {
	s.CheckOnce(ctx, checks)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CheckOnce(ctx, checks)
		}
	}
}

func (s *OrderServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("gRPC request",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)))
		return resp, err
	}
}

func recoveryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("gRPC handler panicked",
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()))
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
