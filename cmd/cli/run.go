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
	"unichat/internal/handlers"
	"unichat/internal/models"
	"unichat/internal/services"
	"unichat/internal/transport"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the unichat ingestion server",
	Long:  `Run the unichat ingestion server`,
	Run:   run,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func run(cmd *cobra.Command, args []string) {
	// 加载配置
	cfg := config.Load()

	// 初始化日志系统
	if err := config.InitLogger(cfg); err != nil {
		logrus.Fatalf("Failed to initialize logger: %v", err)
	}
	appLogger := logrus.StandardLogger()

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Channel{}, &models.Lead{}, &models.Conversation{}, &models.Message{},
		&models.AssistantBinding{}, &models.AssistantLog{}, &models.WebhookSubscription{},
	); err != nil {
		logrus.Fatalf("Failed to migrate database: %v", err)
	}

	// 初始化服务
	wsHub := services.NewWebSocketHub(appLogger)
	go wsHub.Run()

	registry := transport.NewRegistry(appLogger, wsHub)
	storageService, err := services.NewStorageService(cfg, appLogger)
	if err != nil {
		logrus.Fatalf("Failed to init storage: %v", err)
	}
	channelService := services.NewChannelService(db, appLogger)
	identityService := services.NewIdentityService(db, appLogger)
	mediaService := services.NewMediaService(storageService, registry, int(cfg.Storage.MaxInlineSize), appLogger)
	fanoutService := services.NewFanoutService(db, wsHub, nil, cfg.Webhook.Workers, cfg.Webhook.QueueSize, cfg.Webhook.Timeout, appLogger)
	assistantService := services.NewAssistantService(db, identityService, fanoutService, registry, cfg.AI, appLogger)
	ingestService := services.NewIngestService(db, channelService, identityService, mediaService, fanoutService, assistantService, registry, appLogger)

	// 设置 Gin 模式
	if cfg.Server.Host != "localhost" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := setupRouter(cfg, db, wsHub, ingestService, appLogger)

	// 创建服务器
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	// 启动服务器
	go func() {
		logrus.Infof("Starting server on %s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Server failed to start: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	// 优雅关闭
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}

func setupRouter(cfg *config.Config, db *gorm.DB, wsHub *services.WebSocketHub, ingest *services.IngestService, logger *logrus.Logger) *gin.Engine {
	router := gin.New()

	// 中间件
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// 健康检查
	router.GET("/health", handlers.NewHealthHandler(db).Health)

	// 渠道回调
	handlers.RegisterWebhookRoutes(router, handlers.NewWebhookHandler(ingest, cfg.Webhook.VerifyToken, logger))

	// WebSocket 连接
	wsHandler := handlers.NewWebSocketHandler(wsHub)
	router.GET("/ws", wsHandler.HandleWebSocket)

	// 媒体静态托管
	router.Static("/uploads", cfg.Storage.UploadDir)

	return router
}
