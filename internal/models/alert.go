package models

import (
	"time"

	"github.com/google/uuid"
)

// 自动化告警类型
const (
	AlertTypeAnomalyDetected       = "anomaly_detected"
	AlertTypeGoalAchieved          = "goal_achieved"
	AlertTypeGoalReminder          = "goal_reminder"
	AlertTypeCriticalHealth        = "critical_health"
	AlertTypeReportReady           = "report_ready"
	AlertTypeInvestigationComplete = "investigation_complete"
)

// AutomationAlert 自动化告警（发布后不可变）
// 由 AlertQueue 持有：历史环形缓冲保留一份，发布时引用进各订阅者邮箱
type AutomationAlert struct {
	ID        string    `json:"id"`
	AlertType string    `json:"alert_type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Severity  string    `json:"severity"`
	Domain    string    `json:"domain"`

	// 特定告警类型的附加上下文
	DataType             string                 `json:"data_type,omitempty"`
	Value                *float64               `json:"value,omitempty"`
	Baseline             *float64               `json:"baseline,omitempty"`
	Deviation            *float64               `json:"deviation,omitempty"`
	GoalName             string                 `json:"goal_name,omitempty"`
	GoalTarget           *float64               `json:"goal_target,omitempty"`
	InvestigationContext map[string]interface{} `json:"investigation_context,omitempty"`
}

// NewAutomationAlert 创建基础告警（自动生成 ID 和时间戳）
func NewAutomationAlert(alertType, title, message, severity string) *AutomationAlert {
	return &AutomationAlert{
		ID:        uuid.New().String(),
		AlertType: alertType,
		Title:     title,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Severity:  severity,
		Domain:    "automation",
	}
}

// Float64Ptr 可选数值字段辅助函数
func Float64Ptr(v float64) *float64 {
	return &v
}
