package grpc

import (
	"context"
	"fmt"
	"time"

	"github.com/example/bookshop/pkg/discovery"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Resolver finds registered instances of a service.
type Resolver interface {
	Discover(ctx context.Context, serviceName string) ([]*discovery.ServiceInstance, error)
}

// ClientManager holds the connection to the order service used by companion
// processes such as the outbox relay.
type ClientManager struct {
	resolver Resolver
	logger   *zap.Logger

	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

func NewClientManager(resolver Resolver, logger *zap.Logger) *ClientManager {
	return &ClientManager{
		resolver: resolver,
		logger:   logger,
	}
}

// Target returns the address of the first registered instance of service,
// or fallback when discovery is unavailable or empty.
func (m *ClientManager) Target(ctx context.Context, service, fallback string) string {
	if m.resolver == nil {
		return fallback
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	instances, err := m.resolver.Discover(ctx, service)
	if err != nil || len(instances) == 0 {
		m.logger.Info("Using default address", zap.String("service", service), zap.String("address", fallback), zap.Error(err))
		return fallback
	}
	target := instances[0].Addr()
	m.logger.Info("Discovered service", zap.String("service", service), zap.String("address", target))
	return target
}

func (m *ClientManager) Connect(target string, opts ...grpc.DialOption) error {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", target, err)
	}

	m.conn = conn
	m.health = healthpb.NewHealthClient(conn)
	return nil
}

// WaitServing polls the health endpoint of service until it reports SERVING
// or ctx ends.
func (m *ClientManager) WaitServing(ctx context.Context, service string, interval time.Duration) error {
	if m.health == nil {
		return fmt.Errorf("not connected")
	}
	for {
		resp, err := m.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING {
			return nil
		}
		m.logger.Info("Waiting for service", zap.String("service", service), zap.String("status", resp.GetStatus().String()), zap.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("service %s not serving: %w", service, ctx.Err())
		case <-time.After(interval):
		}
	}
}

func (m *ClientManager) Close() error {
	if m.conn == nil {
		return nil
	}
	return m.conn.Close()
}
