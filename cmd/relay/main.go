package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/bookshop/pkg/config"
	"github.com/example/bookshop/pkg/discovery"
	"github.com/example/bookshop/pkg/events"
	"github.com/example/bookshop/pkg/grpc"
	"github.com/example/bookshop/pkg/logging"
	"github.com/example/bookshop/pkg/repository"
	"go.uber.org/zap"
)

const startupTimeout = 2 * time.Minute

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

	logger.Info("Starting outbox relay",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.Duration("interval", cfg.Kafka.RelayInterval),
		zap.Int("batch", cfg.Kafka.RelayBatch))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Setup service discovery
	var resolver grpc.Resolver
	sd, err := discovery.NewServiceDiscovery(&cfg.Etcd, logger)
	if err != nil {
		logger.Warn("Failed to connect to etcd, continuing without service discovery", zap.Error(err))
	} else {
		defer sd.Close()
		resolver = sd
	}

	// The order service owns the schema; wait until it reports healthy.
	clients := grpc.NewClientManager(resolver, logger)
	defer clients.Close()
	if err := clients.Connect(clients.Target(ctx, cfg.Server.Name, cfg.Server.Addr())); err != nil {
		logger.Fatal("Failed to create order service client", zap.Error(err))
	}
	waitCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	err = clients.WaitServing(waitCtx, cfg.Server.Name, 2*time.Second)
	cancel()
	if err != nil {
		logger.Fatal("Order service not ready", zap.Error(err))
	}

	cfg.MySQL.AutoMigrate = false
	db, err := repository.OpenMySQL(&cfg.MySQL)
	if err != nil {
		logger.Fatal("Failed to connect to MySQL", zap.Error(err))
	}

	publisher := events.NewKafkaPublisher(&cfg.Kafka)
	defer publisher.Close()

	relay := events.NewRelay(repository.NewMySQLRepository(db), publisher, logger)
	relay.Run(ctx, cfg.Kafka.RelayInterval, cfg.Kafka.RelayBatch)

	logger.Info("Relay stopped")
}

func configPath() string {
	if p := os.Getenv("BOOKSHOP_CONFIG"); p != "" {
		return p
	}
	return "config/order-config.yaml"
}
