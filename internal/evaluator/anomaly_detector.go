package evaluator

import (
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"wearable-automation/internal/config"
	"wearable-automation/internal/models"
)

// AnomalyDetector 异常检测器
// 基于滚动个人基线检测偏差；绝对危急阈值优先于统计阈值，
// 避免被已异常的历史数据污染的基线掩盖危险值
type AnomalyDetector struct {
	config *config.Config
	store  *RollingBaselineStore
	logger *zap.Logger

	mu      sync.Mutex
	history []models.AnomalyResult // 异常历史（有界，淘汰最旧）
}

// DetectorStats 检测器整体统计
type DetectorStats struct {
	DataTypesTracked  []string                        `json:"data_types_tracked"`
	TotalReadings     int                             `json:"total_readings"`
	AnomaliesDetected int                             `json:"anomalies_detected"`
	WindowHours       float64                         `json:"window_hours"`
	Baselines         map[string]models.BaselineStats `json:"baselines"`
}

// NewAnomalyDetector 创建异常检测器
func NewAnomalyDetector(cfg *config.Config, logger *zap.Logger) *AnomalyDetector {
	return &AnomalyDetector{
		config: cfg,
		store:  NewRollingBaselineStore(cfg.Anomaly.WindowHours, cfg.Anomaly.MaxSamples),
		logger: logger,
	}
}

// thresholdsFor 获取数据类型的阈值配置（缺省值来自全局默认）
func (d *AnomalyDetector) thresholdsFor(dataType string) config.AnomalyThresholds {
	t, ok := d.config.Anomaly.Thresholds[dataType]
	if !ok {
		t = config.AnomalyThresholds{}
	}
	if t.SigmaThreshold == 0 {
		t.SigmaThreshold = d.config.Anomaly.DefaultSigma
	}
	if t.MinReadings == 0 {
		t.MinReadings = d.config.Anomaly.DefaultMinReadings
	}
	return t
}

// AddReading 记录一个读数到滚动基线
func (d *AnomalyDetector) AddReading(dataType string, value float64, timestamp time.Time) {
	d.store.AddReading(dataType, value, timestamp)

	d.logger.Debug("Added reading",
		zap.String("data_type", dataType),
		zap.Float64("value", value),
		zap.Int("count", d.store.Count(dataType)),
	)
}

// Observe 检查并记录一个读数
// 先对照既有基线检查，再把读数计入窗口：新值不会与包含它自身的基线比较
func (d *AnomalyDetector) Observe(dataType string, value float64, timestamp time.Time) models.AnomalyResult {
	result := d.CheckAnomaly(dataType, value, timestamp)
	d.store.AddReading(dataType, value, timestamp)
	return result
}

// CheckAnomaly 检查一个值是否偏离个人基线
// 判定顺序：
// 1. 绝对危急阈值（critical_high/critical_low）
// 2. 基线样本不足（min_readings）→ 不判异常
// 3. 标准差为 0（退化分布）→ 不判异常
// 4. sigma 偏差 >= sigma_threshold → 异常
func (d *AnomalyDetector) CheckAnomaly(dataType string, value float64, timestamp time.Time) models.AnomalyResult {
	t := d.thresholdsFor(dataType)

	baseline := d.store.Baseline(dataType)
	var mean, std float64
	var count int
	if baseline != nil {
		mean = baseline.Mean
		std = baseline.StdDev
		count = baseline.Count
	}

	// 1. 绝对危急阈值优先
	if t.CriticalHigh != nil && value >= *t.CriticalHigh {
		return models.AnomalyResult{
			Detected:       true,
			DataType:       dataType,
			Value:          value,
			BaselineMean:   mean,
			BaselineStd:    std,
			DeviationSigma: math.Inf(1),
			Severity:       models.SeverityCritical,
			Message:        fmt.Sprintf("Critical %s value: %g exceeds threshold %g", dataType, value, *t.CriticalHigh),
			Timestamp:      timestamp,
		}
	}
	if t.CriticalLow != nil && value <= *t.CriticalLow {
		return models.AnomalyResult{
			Detected:       true,
			DataType:       dataType,
			Value:          value,
			BaselineMean:   mean,
			BaselineStd:    std,
			DeviationSigma: math.Inf(1),
			Severity:       models.SeverityCritical,
			Message:        fmt.Sprintf("Critical %s value: %g below threshold %g", dataType, value, *t.CriticalLow),
			Timestamp:      timestamp,
		}
	}

	// 2. 基线样本不足：不产生误报
	if count < t.MinReadings {
		return models.AnomalyResult{
			Detected:     false,
			DataType:     dataType,
			Value:        value,
			BaselineMean: mean,
			BaselineStd:  std,
			Severity:     models.SeverityInfo,
			Message:      fmt.Sprintf("Insufficient baseline data for %s (%d/%d readings)", dataType, count, t.MinReadings),
			Timestamp:    timestamp,
		}
	}

	// 3. 所有样本相同，无法判定偏差
	if std == 0 {
		return models.AnomalyResult{
			Detected:     false,
			DataType:     dataType,
			Value:        value,
			BaselineMean: mean,
			Severity:     models.SeverityInfo,
			Message:      fmt.Sprintf("No variance in %s baseline", dataType),
			Timestamp:    timestamp,
		}
	}

	// 4. sigma 偏差判定
	deviationSigma := math.Abs(value-mean) / std

	if deviationSigma >= t.SigmaThreshold {
		direction := "low"
		if value > mean {
			direction = "high"
		}

		severity := models.SeverityInfo
		if deviationSigma >= t.SigmaThreshold*1.5 {
			severity = models.SeverityWarning
		}

		result := models.AnomalyResult{
			Detected:       true,
			DataType:       dataType,
			Value:          value,
			BaselineMean:   mean,
			BaselineStd:    std,
			DeviationSigma: deviationSigma,
			Severity:       severity,
			Message: fmt.Sprintf("Anomaly detected: %s is %s (%.1f vs baseline %.1f, %.1f sigma)",
				dataType, direction, value, mean, deviationSigma),
			Timestamp: timestamp,
		}

		d.recordAnomaly(result)

		d.logger.Info("Anomaly detected",
			zap.String("data_type", dataType),
			zap.Float64("value", value),
			zap.Float64("baseline_mean", mean),
			zap.Float64("deviation_sigma", deviationSigma),
			zap.String("severity", severity),
		)
		return result
	}

	return models.AnomalyResult{
		Detected:       false,
		DataType:       dataType,
		Value:          value,
		BaselineMean:   mean,
		BaselineStd:    std,
		DeviationSigma: deviationSigma,
		Severity:       models.SeverityInfo,
		Message:        fmt.Sprintf("%s is within normal range", dataType),
		Timestamp:      timestamp,
	}
}

// recordAnomaly 追加异常历史，超出容量时淘汰最旧
func (d *AnomalyDetector) recordAnomaly(result models.AnomalyResult) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.history = append(d.history, result)
	if len(d.history) > d.config.Anomaly.HistorySize {
		d.history = d.history[len(d.history)-d.config.Anomaly.HistorySize:]
	}
}

// GetBaseline 获取某个数据类型的基线统计
func (d *AnomalyDetector) GetBaseline(dataType string) *models.BaselineStats {
	return d.store.Baseline(dataType)
}

// GetAllBaselines 获取全部基线统计
func (d *AnomalyDetector) GetAllBaselines() map[string]models.BaselineStats {
	return d.store.AllBaselines()
}

// GetAnomalyHistory 获取最近的异常记录（该片段内从旧到新）
func (d *AnomalyDetector) GetAnomalyHistory(count int) []models.AnomalyResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	if count <= 0 || count > len(d.history) {
		count = len(d.history)
	}
	recent := d.history[len(d.history)-count:]
	out := make([]models.AnomalyResult, len(recent))
	copy(out, recent)
	return out
}

// GetStats 获取检测器整体统计
func (d *AnomalyDetector) GetStats() DetectorStats {
	d.mu.Lock()
	anomalies := len(d.history)
	d.mu.Unlock()

	return DetectorStats{
		DataTypesTracked:  d.store.DataTypes(),
		TotalReadings:     d.store.TotalReadings(),
		AnomaliesDetected: anomalies,
		WindowHours:       float64(d.config.Anomaly.WindowHours),
		Baselines:         d.store.AllBaselines(),
	}
}

// Reset 重置统计；dataType 为空时同时清空异常历史
func (d *AnomalyDetector) Reset(dataType string) {
	d.store.Reset(dataType)

	if dataType == "" {
		d.mu.Lock()
		d.history = nil
		d.mu.Unlock()
		d.logger.Info("Reset all anomaly statistics")
		return
	}
	d.logger.Info("Reset anomaly statistics", zap.String("data_type", dataType))
}
