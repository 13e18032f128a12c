package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stock-ledger/config"
	"stock-ledger/internal/api"
	"stock-ledger/internal/broker"
	"stock-ledger/internal/ledger"
	"stock-ledger/internal/redisclient"
	"stock-ledger/internal/service"
	"stock-ledger/internal/store"
	"stock-ledger/internal/util"
	"stock-ledger/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting stock ledger",
		zap.String("env", cfg.Server.Env),
		zap.String("store", cfg.Database.Driver))

	if cfg.Observ.JaegerEndpoint != "" {
		tp, err := util.InitTracer(cfg.Observ.JaegerEndpoint)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Error("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	deps := make(map[string]api.Pinger)

	var (
		ledgerStore ledger.Store
		processed   service.ProcessedEvents
	)
	switch cfg.Database.Driver {
	case "memory":
		mem := store.NewMemoryStore()
		ledgerStore, processed = mem, mem
	case "postgres":
		db, err := store.NewPostgresStore(cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = db.Migrate(migrateCtx)
		cancel()
		if err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
		logger.Info("Database connected")

		ledgerStore, processed = db, db
		deps["database"] = db
	default:
		logger.Fatal("Unknown store driver", zap.String("driver", cfg.Database.Driver))
	}

	var locker ledger.Locker = ledger.NewLocalLocker()
	if cfg.Redis.Addr != "" {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		logger.Info("Redis connected")
		deps["redis"] = redisClient

		if cfg.Database.Driver == "postgres" {
			ledgerStore = store.NewCachedStore(ledgerStore, redisClient, cfg.Redis.CacheTTL, logger.Named("cache"))
		}
		if cfg.Redis.LockDriver == "redis" {
			locker = redisclient.NewLocker(redisClient, cfg.Redis.LockTTL, logger.Named("lock"))
		}
	}

	processor := ledger.NewProcessor(ledgerStore, ledger.Options{
		Locker: locker,
		Logger: logger.Named("ledger"),
	})
	advisor := ledger.NewReorderAdvisor(ledgerStore, ledger.ReorderConfig{
		LookbackDays: cfg.Business.ReorderLookbackDays,
		LeadTimeDays: cfg.Business.ReorderLeadTimeDays,
	})
	reports := ledger.NewReportAggregator(ledgerStore, ledger.ReportConfig{TopN: cfg.Business.ReportTopN})

	var publisher service.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicStock)
		defer producer.Close()
		publisher = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicStock))
	}

	inventoryService := service.NewInventoryService(processor, advisor, reports, publisher)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var orderWorker *worker.OrderWorker
	if len(cfg.Kafka.Brokers) > 0 {
		orderConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
		orderWorker = worker.NewOrderWorker(orderConsumer, service.NewOrderEventHandler(inventoryService, processed))
		go func() {
			if err := orderWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Order worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	handler := api.NewHandler(inventoryService, deps, cfg.Server.CORSOrigins)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if orderWorker != nil {
		if err := orderWorker.Stop(); err != nil {
			logger.Error("Error stopping order worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
