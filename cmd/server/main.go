package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/minqi/smartdose-sub000/config"
	"github.com/minqi/smartdose-sub000/internal/api/handler"
	"github.com/minqi/smartdose-sub000/internal/api/router"
	"github.com/minqi/smartdose-sub000/internal/render"
	"github.com/minqi/smartdose-sub000/internal/repository"
	"github.com/minqi/smartdose-sub000/internal/service"
	"github.com/minqi/smartdose-sub000/internal/sms"
	"github.com/minqi/smartdose-sub000/internal/worker"
	"github.com/minqi/smartdose-sub000/pkg/database"
	applogger "github.com/minqi/smartdose-sub000/pkg/logger"
	"github.com/minqi/smartdose-sub000/pkg/redis"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("sms_provider", cfg.SMS.Provider),
		zap.String("log_level", cfg.Log.Level),
	)

	// 3. 连接数据库
	db, err := database.NewDB(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	logger.Info("数据库连接成功")

	// 3.1 执行数据库迁移
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 4. 连接 Redis（可选：连接失败时降级运行，回调去重与限速不可用）
	var rdb *redis.Client
	rdb, err = redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 连接失败，入站去重与限速功能将不可用", zap.Error(err))
		rdb = nil
	}

	// 5. 初始化短信网关与模板渲染器
	gateway := sms.NewGateway(&cfg.SMS, logger)
	renderer, err := render.New()
	if err != nil {
		logger.Fatal("加载短信模板失败", zap.Error(err))
	}

	// 6. 依赖注入: Repository → Service → Handler
	clock := service.NewRealClock()
	repo := repository.NewRepository(db)
	svc := service.NewService(cfg, repo, gateway, renderer, clock, logger)
	h := handler.NewHandler(svc, rdb, logger)

	// 7. 初始化路由
	engine := router.Setup(cfg, h, rdb, logger)

	// 8. 启动投递调度器
	dispatcher := worker.NewDispatcher(svc.NotificationCenter, clock, cfg.Reminder.DeliverInterval, logger)
	if err := dispatcher.Start(); err != nil {
		logger.Fatal("启动投递调度器失败", zap.Error(err))
	}

	// 9. 启动 HTTP 服务器（优雅关闭）
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 10. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))

	// 先停调度器，避免关闭期间开启新的投递周期
	dispatcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	closeDB, _ := db.DB()
	if closeDB != nil {
		closeDB.Close()
	}

	if rdb != nil {
		rdb.Close()
	}

	logger.Info("服务器已关闭")
}
