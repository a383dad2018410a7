package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/bookshop/gateway"
	"github.com/example/bookshop/pkg/audit"
	"github.com/example/bookshop/pkg/catalog"
	"github.com/example/bookshop/pkg/config"
	"github.com/example/bookshop/pkg/discovery"
	"github.com/example/bookshop/pkg/grpc"
	"github.com/example/bookshop/pkg/logging"
	"github.com/example/bookshop/pkg/order"
	"github.com/example/bookshop/pkg/repository"
	"github.com/example/bookshop/pkg/revenue"
	"github.com/example/bookshop/pkg/token"
	"github.com/example/bookshop/pkg/voucher"
	"go.uber.org/zap"
)

const healthInterval = 10 * time.Second

func main() {
	// Load config
	cfg, err := config.Load(configPath())
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Setup logger
	logger, err := logging.New(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting order service",
		zap.String("name", cfg.Server.Name),
		zap.Int("grpc_port", cfg.Server.Port),
		zap.Int("http_port", cfg.HTTP.Port))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	db, err := repository.OpenMySQL(&cfg.MySQL)
	if err != nil {
		logger.Fatal("Failed to connect to MySQL", zap.Error(err))
	}
	mysqlRepo := repository.NewMySQLRepository(db)

	redisRepo := repository.NewRedisRepository(&cfg.Redis)
	defer redisRepo.Close()
	if err := redisRepo.Ping(ctx); err != nil {
		logger.Warn("Redis connection failed", zap.Error(err))
	} else {
		logger.Info("Redis connected successfully")
	}

	mongoRepo, err := repository.NewMongoRepository(ctx, &cfg.MongoDB)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer mongoRepo.Close(context.Background())

	recorder, err := audit.NewRecorder(mongoRepo, cfg.Order.AuditWriteTimeout, logger)
	if err != nil {
		logger.Fatal("Failed to start audit recorder", zap.Error(err))
	}
	defer recorder.Close(cfg.Order.AuditWriteTimeout)

	loc, err := cfg.Report.Location()
	if err != nil {
		logger.Fatal("Invalid report timezone", zap.Error(err))
	}

	// Services
	cached := repository.NewCachedOrders(mysqlRepo, redisRepo, cfg.Order.CacheTTL, logger)
	tokens := token.NewIssuer(mysqlRepo, cached, cfg.Order.TokenTTL, time.Now, logger)
	orders := order.NewService(order.Deps{
		Repo:     mysqlRepo,
		Reader:   cached,
		Catalog:  catalog.NewBounded(catalog.NewGormCatalog(db), cfg.Order.CatalogTimeout, logger),
		Vouchers: voucher.NewCalculator(mysqlRepo, time.Now),
		Tokens:   tokens,
		Audit:    recorder,
		Cache:    cached,
		Now:      time.Now,
		Logger:   logger,
	})
	reports := revenue.NewService(mysqlRepo, cfg.Report.TopN, cfg.Report.SeriesScale, loc, logger)

	// Servers
	grpcServer := grpc.NewOrderServer(&cfg.Server, logger)
	httpGateway := gateway.NewGateway(&cfg.HTTP, orders, reports, mongoRepo, logger)

	go grpcServer.WatchDependencies(ctx, healthInterval, map[string]grpc.Check{
		"mysql":   mysqlRepo.Ping,
		"redis":   redisRepo.Ping,
		"mongodb": mongoRepo.Ping,
	})

	serverErr := make(chan error, 2)
	go func() {
		if err := grpcServer.Start(); err != nil {
			serverErr <- fmt.Errorf("grpc: %w", err)
		}
	}()
	go func() {
		if err := httpGateway.Start(); err != nil {
			serverErr <- fmt.Errorf("http: %w", err)
		}
	}()

	// Connect to etcd for service discovery
	instance := &discovery.ServiceInstance{
		Name: cfg.Server.Name,
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}
	sd, err := discovery.NewServiceDiscovery(&cfg.Etcd, logger)
	if err != nil {
		logger.Warn("Service discovery unavailable", zap.Error(err))
	} else {
		defer sd.Close()
		if err := sd.Register(ctx, instance); err != nil {
			logger.Warn("Failed to register service", zap.Error(err))
		} else {
			logger.Info("Service registered in etcd",
				zap.String("name", instance.Name),
				zap.String("address", instance.Addr()))
		}
	}

	// Wait for interrupt signal
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErr:
		logger.Error("Server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if sd != nil {
		if err := sd.Deregister(shutdownCtx, instance); err != nil {
			logger.Error("Failed to deregister service", zap.Error(err))
		}
	}
	if err := httpGateway.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP gateway shutdown failed", zap.Error(err))
	}
	grpcServer.Stop()

	logger.Info("Service stopped")
}

func configPath() string {
	if p := os.Getenv("BOOKSHOP_CONFIG"); p != "" {
		return p
	}
	return "config/order-config.yaml"
}
