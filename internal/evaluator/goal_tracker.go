package evaluator

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"wearable-automation/internal/models"
)

const dateLayout = "2006-01-02"

// at-risk 提醒只在晚间（18 点后）触发
const atRiskEarliestHour = 18

// GoalTracker 每日目标跟踪器
// 按 (数据类型, 日历日) 维护进度；跨天在每个公开调用入口惰性检测，
// 上一天未达成的目标结清为 missed，并为每个目标重建零进度
type GoalTracker struct {
	logger *zap.Logger

	mu           sync.Mutex
	goals        map[string]models.GoalDefinition
	currentDate  string
	progress     map[string]*models.GoalProgress
	eventHistory []models.GoalEvent

	now func() time.Time // 测试时可注入
}

// NewGoalTracker 创建目标跟踪器
func NewGoalTracker(goals []models.GoalDefinition, logger *zap.Logger) *GoalTracker {
	t := &GoalTracker{
		logger: logger,
		goals:  make(map[string]models.GoalDefinition),
		now:    time.Now,
	}
	for _, g := range goals {
		t.goals[g.DataType] = g
	}

	t.mu.Lock()
	t.ensureCurrentDayLocked()
	t.mu.Unlock()

	return t
}

// ensureCurrentDayLocked 惰性跨天检测（调用方持锁）
// 返回是否发生了跨天重置
func (t *GoalTracker) ensureCurrentDayLocked() bool {
	today := t.now().Format(dateLayout)
	if t.currentDate == today {
		return false
	}

	// 结清上一天：未达成的目标标记为 missed
	if t.currentDate != "" {
		for _, p := range t.progress {
			if p.Status != models.GoalStatusAchieved {
				p.Status = models.GoalStatusMissed
				t.logger.Info("Goal missed",
					zap.String("goal", p.Goal.Name),
					zap.Float64("current", p.CurrentValue),
					zap.Float64("target", p.Goal.Target),
				)
			}
		}
	}

	// 新的一天：每个目标重建零进度
	t.currentDate = today
	t.progress = make(map[string]*models.GoalProgress, len(t.goals))
	for dataType, goal := range t.goals {
		t.progress[dataType] = &models.GoalProgress{
			Goal:        goal,
			Status:      models.GoalStatusNotStarted,
			LastUpdated: t.now(),
		}
	}

	t.logger.Info("Goals reset for new day", zap.String("date", today))
	return true
}

// UpdateProgress 更新目标进度
// 传入值是权威的当日总量（非增量），直接替换 current_value；
// 首次跨过目标值时返回 achieved 事件，之后的更新返回 nil
func (t *GoalTracker) UpdateProgress(dataType string, value float64, timestamp time.Time) *models.GoalEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ensureCurrentDayLocked()

	p, ok := t.progress[dataType]
	if !ok {
		t.logger.Debug("No goal defined", zap.String("data_type", dataType))
		return nil
	}

	// 可穿戴设备上报的是当日总量，点时目标（睡眠）同样是整段读数
	p.CurrentValue = value
	p.LastUpdated = timestamp

	switch {
	case p.CurrentValue >= p.Goal.Target:
		p.Status = models.GoalStatusAchieved
		if p.AchievedAt == nil {
			ts := timestamp
			p.AchievedAt = &ts
		}
	case p.CurrentValue > 0:
		p.Status = models.GoalStatusInProgress
	default:
		p.Status = models.GoalStatusNotStarted
	}

	// 达成通知每天每目标至多一次
	if p.Status == models.GoalStatusAchieved && !p.NotifiedAchieved {
		p.NotifiedAchieved = true
		event := models.GoalEvent{
			EventType:       models.GoalEventAchieved,
			GoalName:        p.Goal.Name,
			DataType:        dataType,
			CurrentValue:    p.CurrentValue,
			TargetValue:     p.Goal.Target,
			ProgressPercent: p.ProgressPercent(),
			Message:         p.Goal.CelebrationMessage,
			Timestamp:       timestamp,
		}
		t.eventHistory = append(t.eventHistory, event)

		t.logger.Info("Goal achieved",
			zap.String("goal", p.Goal.Name),
			zap.Float64("current", p.CurrentValue),
			zap.Float64("target", p.Goal.Target),
		)
		return &event
	}

	return nil
}

// CheckAtRiskGoals 检查有错过风险的目标
// 18 点前恒返回空；对每个未达成、未提醒过且进度低于提醒阈值的目标，
// 标记 at_risk 并生成一次提醒事件（每天每目标至多一次）
func (t *GoalTracker) CheckAtRiskGoals(currentHour int) []models.GoalEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ensureCurrentDayLocked()

	if currentHour < atRiskEarliestHour {
		return nil
	}

	hoursRemaining := 24 - currentHour

	var events []models.GoalEvent
	for dataType, p := range t.progress {
		if p.Status == models.GoalStatusAchieved {
			continue
		}
		if p.NotifiedAtRisk {
			continue
		}
		if p.ProgressPercent() >= p.Goal.ReminderThreshold*100 {
			continue
		}

		p.Status = models.GoalStatusAtRisk
		p.NotifiedAtRisk = true

		event := models.GoalEvent{
			EventType:       models.GoalEventAtRisk,
			GoalName:        p.Goal.Name,
			DataType:        dataType,
			CurrentValue:    p.CurrentValue,
			TargetValue:     p.Goal.Target,
			ProgressPercent: p.ProgressPercent(),
			Message: fmt.Sprintf("You're at %.0f%% of your %s goal. %.0f %s to go! You have %d hours left today.",
				p.ProgressPercent(), p.Goal.Name, p.Remaining(), p.Goal.Unit, hoursRemaining),
			Timestamp: t.now(),
		}
		events = append(events, event)
		t.eventHistory = append(t.eventHistory, event)

		t.logger.Info("Goal at risk",
			zap.String("goal", p.Goal.Name),
			zap.Float64("progress_percent", p.ProgressPercent()),
		)
	}

	return events
}

// GetProgress 获取某个目标的当前进度快照，未跟踪时返回 nil
func (t *GoalTracker) GetProgress(dataType string) *models.GoalProgressSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ensureCurrentDayLocked()

	p, ok := t.progress[dataType]
	if !ok {
		return nil
	}
	snapshot := p.Snapshot()
	return &snapshot
}

// GetAllProgress 获取全部目标的进度快照
func (t *GoalTracker) GetAllProgress() map[string]models.GoalProgressSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ensureCurrentDayLocked()

	out := make(map[string]models.GoalProgressSnapshot, len(t.progress))
	for dataType, p := range t.progress {
		out[dataType] = p.Snapshot()
	}
	return out
}

// GetSummary 获取当天目标汇总
func (t *GoalTracker) GetSummary() models.GoalSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ensureCurrentDayLocked()

	summary := models.GoalSummary{
		Date:       t.currentDate,
		TotalGoals: len(t.goals),
		Goals:      make(map[string]models.GoalProgressSnapshot, len(t.progress)),
	}
	for dataType, p := range t.progress {
		summary.Goals[dataType] = p.Snapshot()
		switch p.Status {
		case models.GoalStatusAchieved:
			summary.Achieved++
		case models.GoalStatusInProgress:
			summary.InProgress++
		case models.GoalStatusAtRisk:
			summary.AtRisk++
		}
	}
	summary.NotStarted = summary.TotalGoals - summary.Achieved - summary.InProgress - summary.AtRisk
	return summary
}

// GetEventHistory 获取最近的目标事件（该片段内从旧到新）
func (t *GoalTracker) GetEventHistory(count int) []models.GoalEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	if count <= 0 || count > len(t.eventHistory) {
		count = len(t.eventHistory)
	}
	recent := t.eventHistory[len(t.eventHistory)-count:]
	out := make([]models.GoalEvent, len(recent))
	copy(out, recent)
	return out
}

// AddGoal 新增目标定义，并为当天建立零进度
func (t *GoalTracker) AddGoal(goal models.GoalDefinition) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ensureCurrentDayLocked()

	t.goals[goal.DataType] = goal
	t.progress[goal.DataType] = &models.GoalProgress{
		Goal:        goal,
		Status:      models.GoalStatusNotStarted,
		LastUpdated: t.now(),
	}

	t.logger.Info("Goal added",
		zap.String("goal", goal.Name),
		zap.Float64("target", goal.Target),
		zap.String("unit", goal.Unit),
	)
}

// RemoveGoal 移除目标定义
func (t *GoalTracker) RemoveGoal(dataType string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.goals[dataType]; !ok {
		return false
	}
	delete(t.goals, dataType)
	delete(t.progress, dataType)

	t.logger.Info("Goal removed", zap.String("data_type", dataType))
	return true
}

// Reset 强制重置当天全部目标
func (t *GoalTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.currentDate = ""
	t.progress = make(map[string]*models.GoalProgress)
	t.ensureCurrentDayLocked()
}
