package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/trimline/trimline/config"
	"github.com/trimline/trimline/internal/domain"
	apihandler "github.com/trimline/trimline/internal/handler/api"
	"github.com/trimline/trimline/internal/repository/memory"
	"github.com/trimline/trimline/internal/repository/postgres"
	redisrepo "github.com/trimline/trimline/internal/repository/redis"
	"github.com/trimline/trimline/internal/usecase"
	"github.com/trimline/trimline/internal/worker"
	"github.com/trimline/trimline/internal/ws"
	"github.com/trimline/trimline/pkg/auth"
	"github.com/trimline/trimline/pkg/logger"
	"github.com/trimline/trimline/pkg/observability"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	// Initialize logger
	logger.Init(cfg.App.Environment)
	defer logger.Close()

	// Print configuration in development mode
	if cfg.App.IsDevelopment() {
		cfg.Print()
	}

	metricsHandler := observability.NewMetricsHandler()

	// Initialize entry storage per the configured driver
	var (
		entryStore domain.EntryStore
		shopRepo   domain.ShopConfigProvider
		db         *sqlx.DB
	)
	switch cfg.Queue.StoreDriver {
	case "postgres":
		db, err = sqlx.Connect("postgres", cfg.Database.GetDSN())
		if err != nil {
			logger.Fatal("Failed to connect to database", logger.ErrorField(err))
		}
		defer db.Close()

		db.SetMaxIdleConns(cfg.Database.MaxIdle)
		db.SetMaxOpenConns(cfg.Database.MaxOpen)
		db.SetConnMaxLifetime(cfg.Database.MaxLife)

		entryStore = postgres.NewEntryRepository(db)
		shopRepo = postgres.NewShopRepository(db)
		metricsHandler.AddReadinessCheck("postgres", func() error { return db.Ping() })
	case "memory":
		entryStore = memory.NewEntryRepository()
		memShops := memory.NewShopRepository()
		// Development seed so the API is usable out of the box.
		memShops.PutQueueConfig(domain.ShopQueueConfig{
			ShopID:                "demo",
			Name:                  "Demo Shop",
			AverageServiceMinutes: 15,
			MaxQueueSize:          50,
			IsAccepting:           true,
		})
		shopRepo = memShops
		logger.Warn("Using in-memory entry store, data will not survive restarts")
	}

	// Initialize Redis connection
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetRedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	// Test Redis connection
	_, err = rdb.Ping(context.Background()).Result()
	if err != nil {
		logger.Fatal("Failed to connect to Redis", logger.ErrorField(err))
	}
	defer rdb.Close()
	metricsHandler.AddReadinessCheck("redis", func() error {
		return rdb.Ping(context.Background()).Err()
	})

	logger.Info("Storage connections established",
		logger.String("store_driver", cfg.Queue.StoreDriver),
	)

	// Initialize sequence allocation and event buffering on Redis
	var sequences domain.SequenceAllocator
	if cfg.Queue.StoreDriver == "memory" {
		sequences = memory.NewSequenceAllocator()
	} else {
		sequences = redisrepo.NewSequenceAllocator(rdb)
	}
	eventQueue := redisrepo.NewEventQueue(rdb, cfg.Queue.EventWorkerPoll)

	// Initialize the queue engine
	queueUC := usecase.NewQueueUsecase(entryStore, sequences, shopRepo, eventQueue, usecase.QueueUsecaseConfig{
		MaxClaimRetries: cfg.Queue.MaxClaimRetries,
	})

	// Initialize handlers
	queueHandler := apihandler.NewQueueHandler(queueUC, cfg.Queue.NotesMaxLen)

	// Start websocket hub and event broadcast worker
	hub := ws.NewHub()
	go hub.Run()

	eventWorker := worker.NewEventWorker(eventQueue, hub)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go eventWorker.Start(workerCtx)

	// Set Gin mode
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize auth service
	authService := auth.NewJWTAuthService(cfg.Auth)

	// Create Gin router
	router := gin.New()

	// Add middleware
	router.Use(observability.ObservabilityMiddleware())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// Setup metrics and health endpoints
	router.GET("/metrics", metricsHandler.MetricsEndpoint())
	router.GET("/health", metricsHandler.HealthEndpoint())
	router.GET("/ready", metricsHandler.ReadinessEndpoint())
	router.GET("/live", metricsHandler.LivenessEndpoint())

	// Setup API routes
	apihandler.SetupRoutes(router, queueHandler, authService, hub)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.API.TimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.API.TimeoutSeconds) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting server",
			logger.String("port", cfg.App.Port),
			logger.String("environment", cfg.App.Environment),
		)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", logger.ErrorField(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	workerCancel()

	logger.Info("Shutting down server...")

	// Create a deadline for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Attempt graceful shutdown
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", logger.ErrorField(err))
	}

	logger.Info("Server exited")
}

// corsMiddleware handles CORS
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
