package evaluator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wearable-automation/internal/config"
	"wearable-automation/internal/models"
)

func newTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Anomaly.WindowHours = 24
	cfg.Anomaly.MaxSamples = 1000
	cfg.Anomaly.DefaultSigma = 2.0
	cfg.Anomaly.DefaultMinReadings = 5
	cfg.Anomaly.HistorySize = 100
	cfg.Anomaly.Thresholds = config.DefaultThresholds()
	return cfg
}

func TestAnomalyDetector_InsufficientBaseline(t *testing.T) {
	d := NewAnomalyDetector(newTestConfig(), zap.NewNop())

	// heart_rate 需要 10 个样本才开始统计判定
	result := d.Observe("heart_rate", 95, time.Now())
	require.False(t, result.Detected)
	require.Equal(t, models.SeverityInfo, result.Severity)
	require.Contains(t, result.Message, "Insufficient baseline data")
	require.Contains(t, result.Message, "(0/10 readings)")

	// Observe 先检查后记录：检查时基线还不含本次读数
	require.Equal(t, 1, d.store.Count("heart_rate"))
}

func TestAnomalyDetector_AbsoluteThresholdPrecedence(t *testing.T) {
	d := NewAnomalyDetector(newTestConfig(), zap.NewNop())

	// 零样本也能触发绝对阈值
	result := d.CheckAnomaly("heart_rate", 180, time.Now())
	require.True(t, result.Detected)
	require.Equal(t, models.SeverityCritical, result.Severity)
	require.True(t, math.IsInf(result.DeviationSigma, 1))
	require.Contains(t, result.Message, "exceeds threshold 120")

	result = d.CheckAnomaly("heart_rate", 35, time.Now())
	require.True(t, result.Detected)
	require.Equal(t, models.SeverityCritical, result.Severity)
	require.Contains(t, result.Message, "below threshold 40")
}

func TestAnomalyDetector_SigmaDeviation(t *testing.T) {
	d := NewAnomalyDetector(newTestConfig(), zap.NewNop())
	now := time.Now()

	values := []float64{70, 72, 74, 71, 73, 75, 70, 72, 74, 73}
	for i, v := range values {
		d.AddReading("heart_rate", v, now.Add(time.Duration(i)*time.Minute))
	}

	// 基线 mean 72.4, stddev 约 1.71：73 在正常范围内
	result := d.CheckAnomaly("heart_rate", 73, now)
	require.False(t, result.Detected)
	require.Contains(t, result.Message, "within normal range")

	// 80 偏离约 4.4 sigma（>= 2.0*1.5），高于阈值且达到 warning
	result = d.CheckAnomaly("heart_rate", 80, now)
	require.True(t, result.Detected)
	require.Equal(t, models.SeverityWarning, result.Severity)
	require.Contains(t, result.Message, "high")
	require.Greater(t, result.DeviationSigma, 2.0)

	// 130 先被绝对阈值拦截，不走统计路径
	result = d.CheckAnomaly("heart_rate", 130, now)
	require.True(t, result.Detected)
	require.Equal(t, models.SeverityCritical, result.Severity)
	require.True(t, math.IsInf(result.DeviationSigma, 1))
}

func TestAnomalyDetector_ZeroStdDev(t *testing.T) {
	d := NewAnomalyDetector(newTestConfig(), zap.NewNop())
	now := time.Now()

	// 所有样本相同：无法判定偏差，不误报
	for i := 0; i < 5; i++ {
		d.AddReading("steps", 5000, now.Add(time.Duration(i)*time.Minute))
	}

	result := d.CheckAnomaly("steps", 9000, now)
	require.False(t, result.Detected)
	require.Contains(t, result.Message, "No variance")
}

func TestAnomalyDetector_UnknownTypeUsesDefaults(t *testing.T) {
	d := NewAnomalyDetector(newTestConfig(), zap.NewNop())

	// 未配置的数据类型回退到全局默认（sigma 2.0，min_readings 5）
	result := d.CheckAnomaly("blood_oxygen", 97, time.Now())
	require.False(t, result.Detected)
	require.Contains(t, result.Message, "(0/5 readings)")
}

func TestAnomalyDetector_HistoryRecordsOnlySigmaDetections(t *testing.T) {
	d := NewAnomalyDetector(newTestConfig(), zap.NewNop())
	now := time.Now()

	// 绝对阈值触发不进异常历史
	d.CheckAnomaly("heart_rate", 180, now)
	require.Empty(t, d.GetAnomalyHistory(0))

	values := []float64{70, 72, 74, 71, 73, 75, 70, 72, 74, 73}
	for i, v := range values {
		d.AddReading("heart_rate", v, now.Add(time.Duration(i)*time.Minute))
	}
	d.CheckAnomaly("heart_rate", 80, now)

	history := d.GetAnomalyHistory(0)
	require.Len(t, history, 1)
	require.Equal(t, 80.0, history[0].Value)

	stats := d.GetStats()
	require.Equal(t, 1, stats.AnomaliesDetected)
	require.Equal(t, 10, stats.TotalReadings)
	require.Contains(t, stats.Baselines, "heart_rate")
}

func TestAnomalyDetector_Reset(t *testing.T) {
	d := NewAnomalyDetector(newTestConfig(), zap.NewNop())
	now := time.Now()

	values := []float64{70, 72, 74, 71, 73, 75, 70, 72, 74, 73}
	for i, v := range values {
		d.AddReading("heart_rate", v, now.Add(time.Duration(i)*time.Minute))
	}
	d.CheckAnomaly("heart_rate", 80, now)

	d.Reset("")
	require.Nil(t, d.GetBaseline("heart_rate"))
	require.Empty(t, d.GetAnomalyHistory(0))
}
