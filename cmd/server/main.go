package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"unichat/internal/config"
	"unichat/internal/events"
	"unichat/internal/handlers"
	"unichat/internal/models"
	"unichat/internal/observability"
	"unichat/internal/services"
	"unichat/internal/transport"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"
)

func main() {
	// 读取配置文件（默认 ./config.yml）并初始化日志
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	cfg := config.Load()
	if err := config.InitLogger(cfg); err != nil {
		logrus.Warnf("init logger: %v", err)
	}
	appLogger := logrus.StandardLogger()

	// OpenTelemetry 初始化（可选）
	shutdownOTel, err := observability.SetupTracing(context.Background(), cfg)
	if err != nil {
		appLogger.Warnf("init tracing: %v", err)
	} else {
		defer func() { _ = shutdownOTel(context.Background()) }()
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		appLogger.Fatalf("Failed to connect to database: %v", err)
	}
	if cfg.Monitoring.Tracing.Enabled {
		_ = db.Use(gormtracing.NewPlugin())
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	}

	// 根据需要迁移（生产建议走 cmd/migrate）
	if err := db.AutoMigrate(
		&models.Channel{}, &models.Lead{}, &models.Conversation{}, &models.Message{},
		&models.AssistantBinding{}, &models.AssistantLog{}, &models.WebhookSubscription{},
	); err != nil {
		appLogger.Fatalf("Failed to migrate database: %v", err)
	}

	// 实时推送
	wsHub := services.NewWebSocketHub(appLogger)
	go wsHub.Run()

	// 渠道外发与拉取
	registry := transport.NewRegistry(appLogger, wsHub)

	// 可选的 AMQP 事件出口
	var sink services.EventSink
	if cfg.Events.Enabled {
		publisher, err := events.NewPublisher(cfg.Events.URL, cfg.Events.Exchange, appLogger)
		if err != nil {
			appLogger.Warnf("init event publisher: %v", err)
		} else {
			sink = publisher
			defer publisher.Close()
		}
	}

	// 初始化业务服务
	storageService, err := services.NewStorageService(cfg, appLogger)
	if err != nil {
		appLogger.Fatalf("Failed to init storage: %v", err)
	}
	channelService := services.NewChannelService(db, appLogger)
	identityService := services.NewIdentityService(db, appLogger)
	mediaService := services.NewMediaService(storageService, registry, int(cfg.Storage.MaxInlineSize), appLogger)
	fanoutService := services.NewFanoutService(db, wsHub, sink, cfg.Webhook.Workers, cfg.Webhook.QueueSize, cfg.Webhook.Timeout, appLogger)
	assistantService := services.NewAssistantService(db, identityService, fanoutService, registry, cfg.AI, appLogger)
	ingestService := services.NewIngestService(db, channelService, identityService, mediaService, fanoutService, assistantService, registry, appLogger)

	// 初始化 Gin
	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())
	if cfg.Monitoring.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Monitoring.Tracing.ServiceName))
	}

	// 健康检查
	r.GET("/health", handlers.NewHealthHandler(db).Health)

	// 渠道回调入口
	handlers.RegisterWebhookRoutes(r, handlers.NewWebhookHandler(ingestService, cfg.Webhook.VerifyToken, appLogger))

	// WebSocket
	wsHandler := handlers.NewWebSocketHandler(wsHub)
	r.GET("/ws", wsHandler.HandleWebSocket)

	// 媒体静态托管
	r.Static("/uploads", cfg.Storage.UploadDir)

	// 启动服务器
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: r,
	}
	go func() {
		appLogger.Infof("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Fatalf("Server forced to shutdown: %v", err)
	}
	appLogger.Info("Server exited")
}

// corsMiddleware CORS 中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
