package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/langchou/carkeep/internal/api/dvla"
	"github.com/langchou/carkeep/internal/api/handlers"
	"github.com/langchou/carkeep/internal/api/middleware"
	"github.com/langchou/carkeep/internal/api/mot"
	"github.com/langchou/carkeep/internal/config"
	"github.com/langchou/carkeep/internal/repository"
	"github.com/langchou/carkeep/internal/service"
	"github.com/langchou/carkeep/internal/storage"
	"github.com/langchou/carkeep/pkg/ws"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	logger.Info("Starting Carkeep", zap.String("port", cfg.ServerPort))

	// 创建 context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 连接数据库
	db, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect database", zap.Error(err))
	}
	defer db.Close()

	// 执行数据库迁移
	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	logger.Info("Database migrated successfully")

	// 连接对象存储并准备存储桶
	store, err := storage.NewClient(storage.Config{
		Endpoint:  cfg.StorageEndpoint,
		AccessKey: cfg.StorageAccessKey,
		SecretKey: cfg.StorageSecretKey,
		UseSSL:    cfg.StorageUseSSL,
		Region:    cfg.StorageRegion,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to connect object storage", zap.Error(err))
	}
	if err := store.EnsureBuckets(ctx, cfg.VehicleImageBucket, cfg.LogbookBucket, cfg.ProfileBucket); err != nil {
		logger.Fatal("Failed to prepare buckets", zap.Error(err))
	}

	// 创建 Repository
	userRepo := repository.NewUserRepository(db)
	vehicleRepo := repository.NewVehicleRepository(db)
	logRepo := repository.NewVehicleLogRepository(db)
	transferRepo := repository.NewTransferRepository(db)

	// 创建外部数据源客户端
	dvlaClient := dvla.NewClient(cfg.DVLAHost, cfg.DVLAAPIKey)
	motClient := mot.NewClient(cfg.MOTHost, cfg.MOTAPIKey)

	// 创建 WebSocket Hub
	wsHub := ws.NewHub(logger)
	go wsHub.Run()

	// 创建服务
	lookupService := service.NewLookupService(logger, dvlaClient, motClient)
	garageService := service.NewGarageService(cfg, logger, vehicleRepo, logRepo, store)
	profileService := service.NewProfileService(cfg, logger, userRepo, vehicleRepo, store)
	transferService := service.NewTransferService(cfg, logger, vehicleRepo, logRepo, transferRepo, store, wsHub)

	// 新连接的 WebSocket 客户端先收到在途转移的进度
	wsHub.SetInitDataProvider(func() interface{} {
		return transferService.AllProgress()
	})

	// 恢复上次运行中断的转移
	if err := transferService.ResumePending(ctx); err != nil {
		logger.Error("Failed to resume pending transfers", zap.Error(err))
	}

	// 创建 HTTP 处理器
	handler := handlers.NewHandler(
		logger,
		lookupService,
		garageService,
		profileService,
		transferService,
		wsHub,
	)

	// 设置 Gin 模式
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// 注册路由
	handler.RegisterRoutes(router, middleware.Auth(cfg.JWTSecret, logger))

	// 启动 HTTP 服务器
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// initLogger 初始化日志
func initLogger(debug bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	logger, _ := config.Build()
	return logger
}

// corsMiddleware CORS 中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
