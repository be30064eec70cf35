package models

import "time"

// 目标状态机：not_started → in_progress → {achieved | at_risk}
// achieved 当天为终态；跨天时未达成的目标统一置为 missed
const (
	GoalStatusNotStarted = "not_started"
	GoalStatusInProgress = "in_progress"
	GoalStatusAtRisk     = "at_risk"
	GoalStatusAchieved   = "achieved"
	GoalStatusMissed     = "missed"
)

// 目标事件类型
const (
	GoalEventAchieved = "achieved"
	GoalEventAtRisk   = "at_risk"
	GoalEventProgress = "progress"
)

// GoalDefinition 目标定义（静态配置，每个数据类型一条）
type GoalDefinition struct {
	Name               string  `json:"name" yaml:"name"`
	DataType           string  `json:"data_type" yaml:"data_type"`
	Target             float64 `json:"target" yaml:"target"`
	Unit               string  `json:"unit" yaml:"unit"`
	IsCumulative       bool    `json:"is_cumulative" yaml:"is_cumulative"`
	ReminderThreshold  float64 `json:"reminder_threshold" yaml:"reminder_threshold"` // 进度比例，低于此值触发晚间提醒
	CelebrationMessage string  `json:"celebration_message" yaml:"celebration_message"`
}

// GoalProgress 某个目标当天的进度
type GoalProgress struct {
	Goal             GoalDefinition `json:"-"`
	CurrentValue     float64        `json:"current_value"`
	Status           string         `json:"status"`
	AchievedAt       *time.Time     `json:"achieved_at,omitempty"`
	LastUpdated      time.Time      `json:"last_updated"`
	NotifiedAchieved bool           `json:"-"`
	NotifiedAtRisk   bool           `json:"-"`
}

// ProgressPercent 进度百分比，上限 100；target 为 0 视为恒满足
func (p *GoalProgress) ProgressPercent() float64 {
	if p.Goal.Target == 0 {
		return 100.0
	}
	percent := p.CurrentValue / p.Goal.Target * 100
	if percent > 100 {
		return 100.0
	}
	return percent
}

// Remaining 距离目标的剩余量，下限 0
func (p *GoalProgress) Remaining() float64 {
	remaining := p.Goal.Target - p.CurrentValue
	if remaining < 0 {
		return 0
	}
	return remaining
}

// GoalProgressSnapshot 进度快照（序列化给管理接口）
type GoalProgressSnapshot struct {
	GoalName        string     `json:"goal_name"`
	DataType        string     `json:"data_type"`
	Target          float64    `json:"target"`
	Unit            string     `json:"unit"`
	CurrentValue    float64    `json:"current_value"`
	ProgressPercent float64    `json:"progress_percent"`
	Remaining       float64    `json:"remaining"`
	Status          string     `json:"status"`
	AchievedAt      *time.Time `json:"achieved_at,omitempty"`
	LastUpdated     time.Time  `json:"last_updated"`
}

// Snapshot 生成进度快照
func (p *GoalProgress) Snapshot() GoalProgressSnapshot {
	return GoalProgressSnapshot{
		GoalName:        p.Goal.Name,
		DataType:        p.Goal.DataType,
		Target:          p.Goal.Target,
		Unit:            p.Goal.Unit,
		CurrentValue:    p.CurrentValue,
		ProgressPercent: p.ProgressPercent(),
		Remaining:       p.Remaining(),
		Status:          p.Status,
		AchievedAt:      p.AchievedAt,
		LastUpdated:     p.LastUpdated,
	}
}

// GoalEvent 目标状态变化事件
type GoalEvent struct {
	EventType       string    `json:"event_type"`
	GoalName        string    `json:"goal_name"`
	DataType        string    `json:"data_type"`
	CurrentValue    float64   `json:"current_value"`
	TargetValue     float64   `json:"target_value"`
	ProgressPercent float64   `json:"progress_percent"`
	Message         string    `json:"message"`
	Timestamp       time.Time `json:"timestamp"`
}

// GoalSummary 当天目标汇总
type GoalSummary struct {
	Date       string                          `json:"date"`
	TotalGoals int                             `json:"total_goals"`
	Achieved   int                             `json:"achieved"`
	InProgress int                             `json:"in_progress"`
	AtRisk     int                             `json:"at_risk"`
	NotStarted int                             `json:"not_started"`
	Goals      map[string]GoalProgressSnapshot `json:"goals"`
}
