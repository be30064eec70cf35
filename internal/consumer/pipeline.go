package consumer

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"wearable-automation/internal/alerts"
	"wearable-automation/internal/config"
	"wearable-automation/internal/evaluator"
	"wearable-automation/internal/models"
	"wearable-automation/internal/repository"
)

// Pipeline 事件摄取管道
// 对每个入站事件：异常检查 → 目标进度 → 富化 → 最新读数快照 + 待处理队列 →
// 告警发布 + 看板缓存 + 健身库列更新。各阶段尽力而为，畸形数据绝不让管道崩溃
type Pipeline struct {
	config   *config.Config
	detector *evaluator.AnomalyDetector
	tracker  *evaluator.GoalTracker
	queue    *alerts.Queue
	cache    *CacheManager                 // nil 时禁用
	fitness  *repository.FitnessRepository // nil 时禁用
	notifier *Notifier
	logger   *zap.Logger

	mu             sync.Mutex
	eventCount     int
	eventsByType   map[string]int
	lastEventTime  *time.Time
	latestReadings map[string]*models.LatestReading
	pendingEvents  []*models.EnrichedEvent
}

// PipelineStatus 管道运行状态
type PipelineStatus struct {
	EventCount    int            `json:"event_count"`
	EventsByType  map[string]int `json:"events_by_type"`
	LastEventTime *time.Time     `json:"last_event_time,omitempty"`
	PendingEvents int            `json:"pending_events"`
}

// NewPipeline 创建事件摄取管道
func NewPipeline(
	cfg *config.Config,
	detector *evaluator.AnomalyDetector,
	tracker *evaluator.GoalTracker,
	queue *alerts.Queue,
	cache *CacheManager,
	fitness *repository.FitnessRepository,
	notifier *Notifier,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		config:   cfg,
		detector: detector,
		tracker:  tracker,
		queue:    queue,
		cache:    cache,
		fitness:  fitness,
		notifier: notifier,
		logger:   logger,
		eventsByType: map[string]int{
			models.DataTypeHeartRate: 0,
			models.DataTypeSteps:     0,
			models.DataTypeSleep:     0,
			models.DataTypeWorkout:   0,
			models.DataTypeStress:    0,
		},
		latestReadings: make(map[string]*models.LatestReading),
	}
}

// ProcessEvent 处理一个可穿戴事件
// 由消息通道的工作线程回调调用，不同数据类型可并发进入
func (p *Pipeline) ProcessEvent(event *models.WearableEvent) {
	timestamp := p.eventTimestamp(event)
	alertLevel := event.AlertLevel
	if alertLevel == "" {
		alertLevel = models.AlertLevelNormal
	}

	p.recordEvent(event.DataType)

	p.logger.Info("Processing wearable event",
		zap.String("data_type", event.DataType),
		zap.Any("value", event.Value),
		zap.String("alert_level", alertLevel),
	)

	// 1. 解析数值；解析失败时跳过分析，但仍存储/转发原始事件
	numericValue, hasNumeric := event.NumericValue()

	var anomalyMeta *models.AnomalyMeta
	var goalMeta *models.GoalMeta
	var baseline *models.BaselineStats

	if hasNumeric {
		// 2. 异常检查（对照既有基线检查后再计入窗口）
		result := p.detector.Observe(event.DataType, numericValue, timestamp)

		if result.Detected {
			p.publishAnomalyAlert(&result)

			// 3. 升级事件级别：仅当当前为 normal 时升级
			// （已 elevated 的读数即便出现新的 critical 异常也不再升级，保持既有行为）
			if result.Severity == models.SeverityCritical && alertLevel == models.AlertLevelNormal {
				alertLevel = models.AlertLevelCritical
			} else if result.Severity == models.SeverityWarning && alertLevel == models.AlertLevelNormal {
				alertLevel = models.AlertLevelElevated
			}

			anomalyMeta = &models.AnomalyMeta{
				Detected:            true,
				BaselineMean:        result.BaselineMean,
				BaselineStd:         result.BaselineStd,
				Severity:            result.Severity,
				InvestigationNeeded: result.Severity == models.SeverityWarning || result.Severity == models.SeverityCritical,
			}
			if !math.IsInf(result.DeviationSigma, 0) {
				anomalyMeta.DeviationSigma = models.Float64Ptr(result.DeviationSigma)
			}
		}

		// 4. 目标进度
		if goalEvent := p.tracker.UpdateProgress(event.DataType, numericValue, timestamp); goalEvent != nil {
			p.publishGoalAchievedAlert(goalEvent, numericValue)
			goalMeta = &models.GoalMeta{
				Type:            goalEvent.EventType,
				GoalName:        goalEvent.GoalName,
				ProgressPercent: goalEvent.ProgressPercent,
			}
		}

		baseline = p.detector.GetBaseline(event.DataType)

		// 健身读库实时列更新（尽力而为）
		if p.fitness != nil {
			if _, err := p.fitness.UpdateRealtime(event.DataType, numericValue, event.Timestamp); err != nil {
				p.logger.Error("Failed to update fitness database",
					zap.String("data_type", event.DataType),
					zap.Error(err),
				)
			}
		}
	} else if event.Value != nil {
		p.logger.Warn("Non-numeric value, skipping analysis",
			zap.String("data_type", event.DataType),
			zap.Any("value", event.Value),
		)
	}

	// 5. 富化事件并存储
	enriched := &models.EnrichedEvent{
		WearableEvent: *event,
		Anomaly:       anomalyMeta,
		GoalEvent:     goalMeta,
	}
	enriched.AlertLevel = alertLevel

	p.mu.Lock()
	if hasNumeric {
		// 每类型只保留最新读数（覆盖而非追加），供"当前状态"查询
		p.latestReadings[event.DataType] = &models.LatestReading{
			Value:        numericValue,
			Unit:         event.Unit,
			Timestamp:    timestamp.Format(time.RFC3339),
			AlertLevel:   alertLevel,
			SourceDevice: event.SourceDevice,
			Baseline:     baseline,
			Anomaly:      anomalyMeta,
			GoalProgress: goalMeta,
		}
	}
	p.pendingEvents = append(p.pendingEvents, enriched)
	p.mu.Unlock()

	// 6. elevated/critical 事件写通知日志（外部副作用，失败只记日志）
	if alertLevel == models.AlertLevelCritical || alertLevel == models.AlertLevelElevated {
		p.notifier.Write(event, alertLevel)
	}

	// 看板缓存更新（尽力而为）
	p.updateDashboardCache()
}

// eventTimestamp 解析事件时间戳，无效时用当前时间
func (p *Pipeline) eventTimestamp(event *models.WearableEvent) time.Time {
	if event.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, event.Timestamp); err == nil {
			return ts
		}
	}
	return time.Now().UTC()
}

// recordEvent 更新事件计数
func (p *Pipeline) recordEvent(dataType string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.eventCount++
	now := time.Now().UTC()
	p.lastEventTime = &now
	if _, ok := p.eventsByType[dataType]; ok {
		p.eventsByType[dataType]++
	}
}

// publishAnomalyAlert 发布异常告警
func (p *Pipeline) publishAnomalyAlert(result *models.AnomalyResult) {
	alert := models.NewAutomationAlert(
		models.AlertTypeAnomalyDetected,
		"Anomaly: "+humanize(result.DataType),
		result.Message,
		result.Severity,
	)
	alert.DataType = result.DataType
	alert.Value = models.Float64Ptr(result.Value)
	alert.Baseline = models.Float64Ptr(result.BaselineMean)
	if !math.IsInf(result.DeviationSigma, 0) {
		alert.Deviation = models.Float64Ptr(result.DeviationSigma)
	}
	p.queue.Publish(alert)
}

// publishGoalAchievedAlert 发布目标达成告警
func (p *Pipeline) publishGoalAchievedAlert(event *models.GoalEvent, value float64) {
	alert := models.NewAutomationAlert(
		models.AlertTypeGoalAchieved,
		"Goal: "+event.GoalName,
		event.Message,
		models.SeverityInfo,
	)
	alert.DataType = event.DataType
	alert.Value = models.Float64Ptr(value)
	alert.GoalName = event.GoalName
	alert.GoalTarget = models.Float64Ptr(event.TargetValue)
	p.queue.Publish(alert)
}

// updateDashboardCache 把最新读数和活跃告警写入 Redis 看板缓存
func (p *Pipeline) updateDashboardCache() {
	if p.cache == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := p.cache.UpdateReadings(ctx, p.GetLatestReadings()); err != nil {
		p.logger.Error("Failed to update readings cache", zap.Error(err))
	}
	if err := p.cache.UpdateAlerts(ctx, p.queue.GetHistory(10)); err != nil {
		p.logger.Error("Failed to update alerts cache", zap.Error(err))
	}
}

// GetLatestReadings 获取每个数据类型的最新读数快照
func (p *Pipeline) GetLatestReadings() map[string]models.LatestReading {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]models.LatestReading, len(p.latestReadings))
	for dataType, reading := range p.latestReadings {
		out[dataType] = *reading
	}
	return out
}

// GetPendingEvents 取出并清空待处理事件队列（供下游批量消费）
func (p *Pipeline) GetPendingEvents() []*models.EnrichedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	events := p.pendingEvents
	p.pendingEvents = nil
	return events
}

// Status 获取管道运行状态
func (p *Pipeline) Status() PipelineStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	byType := make(map[string]int, len(p.eventsByType))
	for k, v := range p.eventsByType {
		byType[k] = v
	}
	return PipelineStatus{
		EventCount:    p.eventCount,
		EventsByType:  byType,
		LastEventTime: p.lastEventTime,
		PendingEvents: len(p.pendingEvents),
	}
}

// humanize 把 data_type 转成标题格式，如 heart_rate → Heart Rate
func humanize(dataType string) string {
	words := strings.Split(strings.ReplaceAll(dataType, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
