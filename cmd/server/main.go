package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/gamedex/internal/collection"
	"github.com/gamedex/internal/config"
	"github.com/gamedex/internal/handler"
	"github.com/gamedex/internal/igdb"
	"github.com/gamedex/internal/kafka"
	"github.com/gamedex/internal/mongo"
	"github.com/gamedex/internal/nats"
	"github.com/gamedex/internal/postgres"
	"github.com/gamedex/internal/redis"
	"github.com/gamedex/internal/search"
	"github.com/gamedex/internal/service"
	"github.com/gamedex/internal/storage"
	"github.com/gamedex/internal/websocket"
	"github.com/gamedex/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	envPath := flag.String("env", ".env", "Path to an optional dotenv file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to load env file", "path", *envPath, "error", err)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Primary storage; an unreachable backend degrades to an in-memory collection
	backend, closeBackend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("storage unavailable, collection will not persist", "backend", cfg.Storage.Backend, "error", err)
		backend = nil
	}
	defer closeBackend()

	// Backup worker
	var backupWorker *worker.BackupWorker
	if cfg.Backup.Enabled && cfg.Storage.Backend == config.BackendPostgres && cfg.Backup.Key == cfg.Storage.Key {
		logger.Warn("backup key equals the primary key on the same postgres table, backups disabled")
	} else if cfg.Backup.Enabled && backend != nil {
		backupRepo, err := postgres.NewBlobRepository(ctx, &cfg.Postgres, logger)
		if err != nil {
			logger.Warn("backup store unavailable, continuing without backups", "error", err)
		} else if err := backupRepo.RunMigrations(ctx); err != nil {
			logger.Warn("backup store migration failed, continuing without backups", "error", err)
			backupRepo.Close()
		} else {
			defer backupRepo.Close()
			backupWorker = worker.NewBackupWorker(
				worker.Location{Backend: backend, Key: cfg.Storage.Key},
				worker.Location{Backend: backupRepo, Key: cfg.Backup.Key},
				&cfg.Backup,
				logger,
			)
		}
	}

	// Metadata provider
	if !cfg.IGDB.HasCredentials() {
		logger.Warn("IGDB credentials not configured, game lookups will fail")
	}
	igdbClient := igdb.NewClient(&cfg.IGDB, logger)
	catalogService := service.NewCatalogService(igdbClient, &cfg.Search, &cfg.IGDB, logger)

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(catalogService, search.Options{
		Debounce: cfg.Search.Debounce,
		Limit:    cfg.Search.Limit,
	}, logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	// Collection manager and its observers
	store := storage.NewAdapter(backend, cfg.Storage.Key, logger)
	manager := collection.NewManager(store, logger, collection.WithObservers(wsHub))

	var closeEvents func()
	switch cfg.Events.Driver {
	case config.EventsKafka:
		publisher, err := kafka.NewEventPublisher(&cfg.Kafka, logger)
		if err != nil {
			logger.Warn("failed to create Kafka event publisher, continuing without events", "error", err)
			break
		}
		manager.AddObserver(publisher)
		closeEvents = func() { publisher.Close() }
		logger.Info("publishing collection events to Kafka", "topic", cfg.Kafka.EventsTopic)
	case config.EventsNATS:
		publisher, err := nats.Connect(&cfg.NATS, logger)
		if err != nil {
			logger.Warn("failed to connect to NATS, continuing without events", "error", err)
			break
		}
		manager.AddObserver(publisher)
		closeEvents = func() { publisher.Close() }
		logger.Info("publishing collection events to NATS", "subject", cfg.NATS.Subject)
	}

	collectionService := service.NewCollectionService(manager, catalogService, logger)

	// Load the collection in the background; /ready reports progress
	activated := make(chan struct{})
	go func() {
		defer close(activated)
		if backupWorker != nil {
			if _, err := backupWorker.RestoreIfEmpty(ctx); err != nil {
				logger.Warn("failed to restore collection from backup", "error", err)
			}
		}
		manager.Activate(ctx)
		logger.Info("collection loaded", "count", manager.Count())

		if backupWorker != nil {
			if err := backupWorker.Start(ctx); err != nil {
				logger.Error("failed to start backup worker", "error", err)
			}
		}
	}()

	// Kafka command ingestion
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.CommandsEnabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.CommandsTopic,
		)
		var err error
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, collectionService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else {
			if err := kafkaConsumer.Start(); err != nil {
				logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
				kafkaConsumer = nil
			} else {
				logger.Info("Kafka consumer started successfully")
			}
		}
	}

	// Initialize HTTP handler
	httpHandler := handler.NewHandler(catalogService, collectionService, wsHub, &cfg.Server, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port, "storage", cfg.Storage.Backend)
		logger.Info("WebSocket endpoint available at /ws")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	// Stop Kafka consumer
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	// Stop WebSocket hub
	wsHub.Stop()

	// Stop backup worker once activation has settled
	select {
	case <-activated:
	case <-shutdownCtx.Done():
	}
	if backupWorker != nil {
		if err := backupWorker.Stop(); err != nil {
			logger.Error("failed to stop backup worker", "error", err)
		}
	}

	if closeEvents != nil {
		closeEvents()
	}

	logger.Info("server stopped")
}

// openBackend connects the configured primary blob store
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Backend, func(), error) {
	noop := func() {}

	switch cfg.Storage.Backend {
	case config.BackendRedis:
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		client, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, noop, fmt.Errorf("connecting to redis: %w", err)
		}
		store := redis.NewBlobStore(client, logger)
		return store, func() { store.Close() }, nil

	case config.BackendPostgres:
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		repo, err := postgres.NewBlobRepository(ctx, &cfg.Postgres, logger)
		if err != nil {
			return nil, noop, fmt.Errorf("connecting to postgres: %w", err)
		}
		if err := repo.RunMigrations(ctx); err != nil {
			repo.Close()
			return nil, noop, fmt.Errorf("running migrations: %w", err)
		}
		return repo, repo.Close, nil

	case config.BackendMongo:
		logger.Info("connecting to MongoDB", "database", cfg.Mongo.Database, "collection", cfg.Mongo.Collection)
		store, err := mongo.NewBlobStore(ctx, &cfg.Mongo, logger)
		if err != nil {
			return nil, noop, fmt.Errorf("connecting to mongo: %w", err)
		}
		return store, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			store.Close(closeCtx)
		}, nil

	default:
		return storage.NewMemoryBackend(), noop, nil
	}
}
