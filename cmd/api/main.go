package main

import (
	"context"
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
	"go.uber.org/zap"

	"github.com/ecom-insights/backend/internal/api/handlers"
	"github.com/ecom-insights/backend/internal/bootstrap"
	"github.com/ecom-insights/backend/internal/metrics"
	"github.com/ecom-insights/backend/internal/middleware/ratelimit"
	"github.com/ecom-insights/backend/internal/middleware/security"
	"github.com/ecom-insights/backend/internal/middleware/validation"
	"github.com/ecom-insights/backend/pkg/config"
	appLogger "github.com/ecom-insights/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting E-commerce Insights API Server")

	metrics.Init()

	ctx := context.Background()
	services, err := bootstrap.New(ctx, cfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if cfg.Dataset.Autoload {
		if _, err := services.EnsureDataset(ctx, false); err != nil {
			appLogger.Fatal("Failed to load dataset", zap.Error(err))
		}
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Server.AllowedOrigins, ", "),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Development,
	}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()

	queryHandler := handlers.NewQueryHandler(services.Engine, services.Store)
	feedbackHandler := handlers.NewFeedbackHandler(services.Store)
	wsHandler := handlers.NewWebSocketHandler(services.Engine)

	deps := []handlers.Dependency{{Name: "sqlite", Pinger: services.Store}}
	if services.Cache != nil {
		deps = append(deps, handlers.Dependency{Name: "redis", Pinger: services.Cache, Optional: true})
	}
	healthHandler := handlers.NewHealthHandler(func() string {
		return services.LLM.BreakerState().String()
	}, deps...)

	app.Get("/metrics", metrics.MetricsHandler())

	api := app.Group("/api")

	api.Get("/health", healthHandler.Health)
	api.Get("/ready", healthHandler.Ready)

	api.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/ws", websocket.New(wsHandler.HandleConnection))

	api.Get("/history", queryHandler.GetQueryHistory)
	api.Get("/history/:id", queryHandler.GetQueryRecord)
	api.Get("/feedback/stats", feedbackHandler.GetStats)

	pipeline := api.Group("", limiter.Middleware(), validation.Middleware(validation.Config{
		Logger: appLogger.GetLogger(),
	}))
	pipeline.Post("/generate_sql", queryHandler.GenerateSQL)
	pipeline.Post("/execute_query", queryHandler.ExecuteQuery)
	pipeline.Post("/generate_chart", queryHandler.GenerateChart)
	pipeline.Post("/humanize_answer", queryHandler.HumanizeAnswer)
	pipeline.Post("/ask", queryHandler.Ask)
	pipeline.Post("/feedback", feedbackHandler.SubmitFeedback)

	if cfg.Server.StaticDir != "" {
		if _, err := os.Stat(cfg.Server.StaticDir); err == nil {
			app.Static("/", cfg.Server.StaticDir)
		} else {
			appLogger.Warn("Static directory not found, web page disabled", zap.String("dir", cfg.Server.StaticDir))
		}
	}

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
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Warn("Shutdown did not complete cleanly", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
