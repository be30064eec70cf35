package models

import "time"

// 异常严重程度
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// BaselineStats 某个数据类型的基线统计（每次插入后重算，不独立维护）
type BaselineStats struct {
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"std_dev"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Count       int     `json:"count"`
	WindowHours float64 `json:"window_hours"`
}

// AnomalyResult 一次异常检查的结果（不可变值对象）
// DeviationSigma 在绝对阈值触发时为 +Inf，序列化前需由调用方处理
type AnomalyResult struct {
	Detected       bool      `json:"detected"`
	DataType       string    `json:"data_type"`
	Value          float64   `json:"value"`
	BaselineMean   float64   `json:"baseline_mean"`
	BaselineStd    float64   `json:"baseline_std"`
	DeviationSigma float64   `json:"deviation_sigma"`
	Severity       string    `json:"severity"`
	Message        string    `json:"message"`
	Timestamp      time.Time `json:"timestamp"`
}
