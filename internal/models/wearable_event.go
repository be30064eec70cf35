package models

import (
	"encoding/json"
	"strconv"
)

// 事件告警级别（与模拟器/上游约定一致）
const (
	AlertLevelNormal   = "normal"
	AlertLevelElevated = "elevated"
	AlertLevelCritical = "critical"
)

// 数据类型（可穿戴设备上报的指标类型）
const (
	DataTypeHeartRate = "heart_rate"
	DataTypeSteps     = "steps"
	DataTypeSleep     = "sleep"
	DataTypeStress    = "stress"
	DataTypeWorkout   = "workout"
)

// WearableEvent 可穿戴设备事件（从消息通道接收的原始 JSON）
// value 可能是数字或数字字符串，可选字段允许缺失
type WearableEvent struct {
	DataType     string      `json:"data_type"`
	Value        interface{} `json:"value"`
	Unit         string      `json:"unit,omitempty"`
	Timestamp    string      `json:"timestamp,omitempty"` // ISO-8601
	AlertLevel   string      `json:"alert_level,omitempty"`
	Message      string      `json:"message,omitempty"`
	SourceDevice string      `json:"source_device,omitempty"`
	EventID      string      `json:"event_id,omitempty"`
}

// NumericValue 解析 value 为数值
// 容忍数字、数字字符串、json.Number；解析失败返回 false
func (e *WearableEvent) NumericValue() (float64, bool) {
	switch v := e.Value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// AnomalyMeta 事件富化后的异常元数据
type AnomalyMeta struct {
	Detected            bool     `json:"detected"`
	BaselineMean        float64  `json:"baseline_mean"`
	BaselineStd         float64  `json:"baseline_std"`
	DeviationSigma      *float64 `json:"deviation_sigma,omitempty"` // 绝对阈值触发时为 +Inf，序列化时省略
	Severity            string   `json:"severity"`
	InvestigationNeeded bool     `json:"investigation_needed"`
}

// GoalMeta 事件富化后的目标元数据
type GoalMeta struct {
	Type            string  `json:"type"` // achieved, at_risk, progress
	GoalName        string  `json:"goal_name"`
	ProgressPercent float64 `json:"progress_percent"`
}

// EnrichedEvent 富化后的事件（原始事件 + 异常/目标元数据）
// 写入待处理队列供下游叙事层批量消费
type EnrichedEvent struct {
	WearableEvent
	Anomaly   *AnomalyMeta `json:"anomaly,omitempty"`
	GoalEvent *GoalMeta    `json:"goal_event,omitempty"`
}

// LatestReading 每个数据类型的最新读数快照（用于"当前状态"查询）
type LatestReading struct {
	Value        float64        `json:"value"`
	Unit         string         `json:"unit,omitempty"`
	Timestamp    string         `json:"timestamp"`
	AlertLevel   string         `json:"alert_level"`
	SourceDevice string         `json:"source_device,omitempty"`
	Baseline     *BaselineStats `json:"baseline,omitempty"`
	Anomaly      *AnomalyMeta   `json:"anomaly,omitempty"`
	GoalProgress *GoalMeta      `json:"goal_progress,omitempty"`
}
