package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"hikbridge/internal/classifier"
	"hikbridge/internal/config"
	"hikbridge/internal/database"
	"hikbridge/internal/gateway"
	"hikbridge/internal/models"
	"hikbridge/internal/publisher"
	"hikbridge/internal/receiver"
	"hikbridge/internal/repository"
	"hikbridge/internal/worker"
)

// BridgeService 门禁桥接服务：事件接收器 + 队列工作器
type BridgeService struct {
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redisClient *redis.Client

	receiver *receiver.Receiver
	worker   *worker.Worker
}

// NewBridgeService 创建桥接服务
func NewBridgeService(cfg *config.Config, logger *zap.Logger) (*BridgeService, error) {
	// 初始化数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Redis 可选：仅用于事件发布，不影响核心链路
	var redisClient *redis.Client
	var eventPublisher receiver.EventPublisher
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn("Redis unreachable, event publishing disabled", zap.Error(err))
			_ = redisClient.Close()
			redisClient = nil
		} else {
			eventPublisher = publisher.NewStreamPublisher(redisClient, cfg.Redis.Stream, logger)
		}
	}

	// 创建Repository
	queueRepo := repository.NewQueueRepository(db, logger)
	personRepo := repository.NewPersonRepository(db, logger)
	deviceRepo := repository.NewDeviceRepository(db, logger)
	optionsRepo := repository.NewOptionsRepository(db, logger)

	rcv := receiver.NewReceiver(
		cfg.Receiver.Addr,
		cfg.Receiver.QueueSize,
		cfg.Receiver.Workers,
		cfg.Receiver.MaxBodySize,
		classifier.NewClassifier(logger),
		queueRepo,
		eventPublisher,
		logger,
	)

	gatewayFactory := func(device models.DeviceConfig) worker.Gateway {
		return gateway.NewClient(device, logger)
	}
	wrk := worker.NewWorker(queueRepo, deviceRepo, optionsRepo, personRepo, gatewayFactory, cfg, logger)

	return &BridgeService{
		config:      cfg,
		logger:      logger,
		db:          db,
		redisClient: redisClient,
		receiver:    rcv,
		worker:      wrk,
	}, nil
}

// Start 启动工作器与接收器；接收器的 ListenAndServe 阻塞直到 Stop
func (s *BridgeService) Start(ctx context.Context) error {
	if err := s.worker.Start(ctx); err != nil {
		return fmt.Errorf("failed to start queue worker: %w", err)
	}

	s.logger.Info("Bridge service started",
		zap.String("addr", s.config.Receiver.Addr),
	)
	if err := s.receiver.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("event receiver failed: %w", err)
	}
	return nil
}

// Stop 优雅关闭
func (s *BridgeService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping bridge service")

	if err := s.receiver.Stop(ctx); err != nil {
		s.logger.Error("Error stopping receiver", zap.Error(err))
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Duration(s.config.Worker.StopTimeoutSec)*time.Second)
	defer cancel()
	if err := s.worker.Stop(stopCtx); err != nil {
		s.logger.Error("Error stopping queue worker", zap.Error(err))
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Error closing Redis client", zap.Error(err))
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Error closing database connection", zap.Error(err))
		}
	}

	s.logger.Info("Bridge service stopped")
	return nil
}
