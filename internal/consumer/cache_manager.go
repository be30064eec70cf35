package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"wearable-automation/internal/config"
	"wearable-automation/internal/models"
)

// CacheManager Redis 看板缓存管理器
// 把最新读数快照和活跃告警写入带 TTL 的缓存键供看板读取；
// 只是尽力而为的缓存，权威状态在内存中，重启后从零重建
type CacheManager struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewCacheManager 创建缓存管理器
func NewCacheManager(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) *CacheManager {
	return &CacheManager{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// UpdateReadings 写入最新读数快照
func (c *CacheManager) UpdateReadings(ctx context.Context, readings map[string]models.LatestReading) error {
	jsonData, err := json.Marshal(readings)
	if err != nil {
		return fmt.Errorf("failed to marshal readings: %w", err)
	}

	err = c.redisClient.Set(
		ctx,
		c.config.Cache.ReadingsKey,
		jsonData,
		time.Duration(c.config.Cache.TTL)*time.Second,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to set readings cache: %w", err)
	}

	c.logger.Debug("Updated readings cache",
		zap.String("key", c.config.Cache.ReadingsKey),
		zap.Int("reading_count", len(readings)),
	)
	return nil
}

// UpdateAlerts 写入最近的告警列表
func (c *CacheManager) UpdateAlerts(ctx context.Context, alerts []*models.AutomationAlert) error {
	jsonData, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("failed to marshal alerts: %w", err)
	}

	err = c.redisClient.Set(
		ctx,
		c.config.Cache.AlertsKey,
		jsonData,
		time.Duration(c.config.Cache.TTL)*time.Second,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to set alerts cache: %w", err)
	}

	c.logger.Debug("Updated alerts cache",
		zap.String("key", c.config.Cache.AlertsKey),
		zap.Int("alert_count", len(alerts)),
	)
	return nil
}

// GetReadings 读取最新读数快照缓存
func (c *CacheManager) GetReadings(ctx context.Context) (map[string]models.LatestReading, error) {
	val, err := c.redisClient.Get(ctx, c.config.Cache.ReadingsKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("readings cache not found")
		}
		return nil, fmt.Errorf("failed to get readings cache: %w", err)
	}

	var readings map[string]models.LatestReading
	if err := json.Unmarshal([]byte(val), &readings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal readings: %w", err)
	}
	return readings, nil
}
