package service

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"wearable-automation/internal/alerts"
	"wearable-automation/internal/api"
	"wearable-automation/internal/config"
	"wearable-automation/internal/consumer"
	"wearable-automation/internal/evaluator"
	"wearable-automation/internal/models"
	"wearable-automation/internal/repository"
)

// AutomationService 可穿戴健康自动化服务
// 组装事件消费者、异常检测、目标跟踪、告警队列和管理接口，
// 管理它们的生命周期
type AutomationService struct {
	config        *config.Config
	logger        *zap.Logger
	detector      *evaluator.AnomalyDetector
	tracker       *evaluator.GoalTracker
	queue         *alerts.Queue
	pipeline      *consumer.Pipeline
	eventConsumer *consumer.EventConsumer
	httpServer    *http.Server

	redisClient *redis.Client // nil 时看板缓存禁用
	fitnessDB   *sql.DB       // nil 时健身库更新禁用

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAutomationService 创建自动化服务
// Redis 和健身库都是可选依赖：连不上或未配置只降级，不阻止启动
func NewAutomationService(cfg *config.Config, logger *zap.Logger) (*AutomationService, error) {
	s := &AutomationService{
		config: cfg,
		logger: logger,
	}

	// Redis 看板缓存（可选）
	var cache *consumer.CacheManager
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := client.Ping(ctx).Err()
		cancel()
		if err != nil {
			logger.Warn("Redis unavailable, dashboard cache disabled",
				zap.String("addr", cfg.Redis.Addr),
				zap.Error(err),
			)
			client.Close()
		} else {
			s.redisClient = client
			cache = consumer.NewCacheManager(cfg, client, logger)
			logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
		}
	}

	// 健身读库（可选）
	var fitness *repository.FitnessRepository
	if cfg.Fitness.DBPath != "" {
		db, err := sql.Open("sqlite3", cfg.Fitness.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open fitness database: %w", err)
		}
		if err := db.Ping(); err != nil {
			logger.Warn("Fitness database unavailable, realtime updates disabled",
				zap.String("path", cfg.Fitness.DBPath),
				zap.Error(err),
			)
			db.Close()
		} else {
			s.fitnessDB = db
			fitness = repository.NewFitnessRepository(db, logger)
			logger.Info("Opened fitness database", zap.String("path", cfg.Fitness.DBPath))
		}
	}

	s.queue = alerts.NewQueue(cfg.Alerts.MaxHistory, cfg.Alerts.MailboxSize, logger)
	s.detector = evaluator.NewAnomalyDetector(cfg, logger)
	s.tracker = evaluator.NewGoalTracker(cfg.Goals.Definitions, logger)

	notifier := consumer.NewNotifier(cfg.Goals.NotificationFile, logger)
	s.pipeline = consumer.NewPipeline(cfg, s.detector, s.tracker, s.queue, cache, fitness, notifier, logger)
	s.eventConsumer = consumer.NewEventConsumer(cfg, s.pipeline, logger)

	handler := api.NewHandler(s.detector, s.tracker, s.queue, s.pipeline, s.eventConsumer, logger)
	s.httpServer = &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: api.NewRouter(handler, logger),
	}

	return s, nil
}

// Start 启动服务
func (s *AutomationService) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	if err := s.eventConsumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event consumer: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("HTTP server listening", zap.String("addr", s.config.HTTP.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	s.wg.Add(1)
	go s.atRiskLoop(ctx)

	s.logger.Info("Automation service started")
	return nil
}

// atRiskLoop 定时检查有错过风险的目标并发布提醒告警
func (s *AutomationService) atRiskLoop(ctx context.Context) {
	defer s.wg.Done()

	interval := time.Duration(s.config.Goals.AtRiskPollMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, event := range s.tracker.CheckAtRiskGoals(time.Now().Hour()) {
				alert := models.NewAutomationAlert(
					models.AlertTypeGoalReminder,
					"Reminder: "+event.GoalName,
					event.Message,
					models.SeverityInfo,
				)
				alert.DataType = event.DataType
				alert.Value = models.Float64Ptr(event.CurrentValue)
				alert.GoalName = event.GoalName
				alert.GoalTarget = models.Float64Ptr(event.TargetValue)
				s.queue.Publish(alert)
			}
		}
	}
}

// Stop 停止服务并释放资源
func (s *AutomationService) Stop() {
	s.logger.Info("Stopping automation service")

	if s.cancel != nil {
		s.cancel()
	}

	s.eventConsumer.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	s.wg.Wait()

	if s.redisClient != nil {
		s.redisClient.Close()
	}
	if s.fitnessDB != nil {
		s.fitnessDB.Close()
	}

	s.logger.Info("Automation service stopped")
}
