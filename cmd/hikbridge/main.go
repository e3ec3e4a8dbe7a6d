package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"hikbridge/internal/config"
	"hikbridge/internal/logger"
	"hikbridge/internal/service"
)

func main() {
	// 加载配置
	cfg := config.Load()

	// 初始化Logger
	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "hikbridge")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting hikbridge service",
		zap.String("addr", cfg.Receiver.Addr),
		zap.Int("receiver_workers", cfg.Receiver.Workers),
		zap.Int("poll_interval_sec", cfg.Worker.PollIntervalSec),
		zap.Bool("redis_enabled", cfg.Redis.Enabled),
	)

	// 创建服务
	bridge, err := service.NewBridgeService(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create bridge service", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 在 goroutine 中启动服务
	go func() {
		if err := bridge.Start(ctx); err != nil {
			zapLogger.Fatal("Failed to start bridge service", zap.Error(err))
		}
	}()

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	zapLogger.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	// 优雅关闭
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := bridge.Stop(shutdownCtx); err != nil {
		zapLogger.Error("Error during shutdown", zap.Error(err))
	}

	zapLogger.Info("Service stopped")
}
