package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/docqa/console/internal/api/handlers"
	"github.com/docqa/console/internal/backend"
	"github.com/docqa/console/internal/cache/redis"
	"github.com/docqa/console/internal/metrics"
	"github.com/docqa/console/internal/middleware/ratelimit"
	"github.com/docqa/console/internal/middleware/security"
	"github.com/docqa/console/internal/middleware/validation"
	"github.com/docqa/console/internal/session"
	"github.com/docqa/console/internal/storage/sqlite"
	"github.com/docqa/console/pkg/config"
	appLogger "github.com/docqa/console/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(appLogger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting docqa session gateway")

	metrics.Init()

	backendClient, err := backend.NewClient(backend.OptionsFromConfig(cfg.Backend))
	if err != nil {
		appLogger.Fatal("Failed to create backend client", zap.Error(err))
	}

	checks := map[string]handlers.Pinger{}

	var history handlers.HistoryStore
	if cfg.SQLite.Enabled {
		sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
		if err != nil {
			appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
		}
		defer sqliteClient.Close()

		err = sqliteClient.InitSchema()
		if err != nil {
			appLogger.Fatal("Failed to initialize schema", zap.Error(err))
		}

		history = sqliteClient
		checks["sqlite"] = sqliteClient
	}

	var snapshots handlers.SnapshotStore
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			// Sessions still work, they just do not survive a restart.
			appLogger.Warn("Redis unavailable, session snapshots disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			snapshots = redisClient
			checks["redis"] = redisClient
		}
	}

	manager := handlers.NewSessionManager(handlers.ManagerConfig{
		Service:     backendClient,
		Snapshots:   snapshots,
		History:     history,
		SnapshotTTL: cfg.Redis.SnapshotTTL(),
		Options:     session.OptionsFromConfig(cfg.Session),
	})

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:             cfg.RateLimit.Burst,
		Logger:            appLogger.Named("ratelimit"),
	})
	defer limiter.Stop()

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Server.AllowedOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, " + ratelimit.SessionHeader,
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Development,
	}))

	app.Get("/metrics", metrics.MetricsHandler())

	opsHandler := handlers.NewOpsHandler(backendClient, manager, checks)
	sessionHandler := handlers.NewSessionHandler(manager)
	wsHandler := handlers.NewWebSocketHandler(manager)

	api := app.Group("/api/v1")

	api.Get("/health", opsHandler.Health)
	api.Get("/ready", opsHandler.Ready)

	api.Get("/sessions/:id/ws", wsHandler.Upgrade, websocket.New(wsHandler.HandleConnection))

	api.Use(limiter.Middleware())
	api.Use(validation.Middleware(validation.Config{
		MaxFileSize:       int64(cfg.Upload.MaxFileSize),
		AllowedExtensions: cfg.Upload.AllowedExtensions,
		Logger:            appLogger.Named("validation"),
	}))

	sessionHandler.Register(api)
	api.Get("/history/search", opsHandler.SearchHistory)
	api.Get("/backend/stats", opsHandler.BackendStats)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if health, err := backendClient.Health(ctx); err != nil {
		appLogger.Warn("Document service is not reachable yet", zap.Error(err))
	} else {
		appLogger.Info("Document service reachable", zap.String("status", health.Status), zap.String("system", health.System))
	}
	cancel()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	manager.Shutdown(shutdownCtx)
	shutdownCancel()

	appLogger.Info("Server stopped")
}
