package evaluator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wearable-automation/internal/config"
	"wearable-automation/internal/models"
)

func newTestTracker(t *testing.T, now time.Time) *GoalTracker {
	t.Helper()
	tracker := NewGoalTracker(config.DefaultGoals(), zap.NewNop())
	tracker.now = func() time.Time { return now }
	tracker.Reset() // 用注入的时间重建当天进度
	return tracker
}

func TestGoalTracker_AchievementFiresOnce(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	tracker := newTestTracker(t, now)

	event := tracker.UpdateProgress("steps", 10000, now)
	require.NotNil(t, event)
	require.Equal(t, models.GoalEventAchieved, event.EventType)
	require.Equal(t, "Daily Steps", event.GoalName)
	require.Equal(t, 100.0, event.ProgressPercent)

	// 之后的更新不再重复通知
	event = tracker.UpdateProgress("steps", 12000, now.Add(time.Hour))
	require.Nil(t, event)

	progress := tracker.GetProgress("steps")
	require.NotNil(t, progress)
	require.Equal(t, models.GoalStatusAchieved, progress.Status)
	require.Equal(t, 12000.0, progress.CurrentValue)
	require.Equal(t, 100.0, progress.ProgressPercent) // 超额也封顶 100
	require.Equal(t, 0.0, progress.Remaining)
}

func TestGoalTracker_ValueIsAuthoritativeTotal(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	tracker := newTestTracker(t, now)

	// 上报的是当日总量，替换而非累加
	tracker.UpdateProgress("steps", 3000, now)
	tracker.UpdateProgress("steps", 5000, now.Add(time.Hour))

	progress := tracker.GetProgress("steps")
	require.Equal(t, 5000.0, progress.CurrentValue)
	require.Equal(t, models.GoalStatusInProgress, progress.Status)
	require.Equal(t, 50.0, progress.ProgressPercent)
	require.Equal(t, 5000.0, progress.Remaining)
}

func TestGoalTracker_UnknownDataType(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	tracker := newTestTracker(t, now)

	require.Nil(t, tracker.UpdateProgress("heart_rate", 70, now))
	require.Nil(t, tracker.GetProgress("heart_rate"))
}

func TestGoalTracker_AtRiskOnlyInEvening(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	tracker := newTestTracker(t, now)

	tracker.UpdateProgress("steps", 2000, now) // 20% < 60% 提醒阈值

	// 18 点前不提醒
	require.Nil(t, tracker.CheckAtRiskGoals(14))

	events := tracker.CheckAtRiskGoals(21)
	require.NotEmpty(t, events)

	var stepsEvent *models.GoalEvent
	for i := range events {
		if events[i].DataType == "steps" {
			stepsEvent = &events[i]
		}
	}
	require.NotNil(t, stepsEvent)
	require.Equal(t, models.GoalEventAtRisk, stepsEvent.EventType)
	require.Contains(t, stepsEvent.Message, "20% of your Daily Steps goal")
	require.Contains(t, stepsEvent.Message, "3 hours left today")

	progress := tracker.GetProgress("steps")
	require.Equal(t, models.GoalStatusAtRisk, progress.Status)

	// 每天每目标至多提醒一次
	require.Empty(t, tracker.CheckAtRiskGoals(22))
}

func TestGoalTracker_AtRiskSkipsHealthyProgress(t *testing.T) {
	now := time.Date(2026, 3, 10, 19, 0, 0, 0, time.UTC)
	tracker := newTestTracker(t, now)

	// 步数 70% 超过 60% 提醒阈值，不提醒
	tracker.UpdateProgress("steps", 7000, now)

	for _, event := range tracker.CheckAtRiskGoals(19) {
		require.NotEqual(t, "steps", event.DataType)
	}
}

func TestGoalTracker_DayRollover(t *testing.T) {
	day1 := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	tracker := newTestTracker(t, day1)

	tracker.UpdateProgress("steps", 8000, day1)

	// 跨天在下一次公开调用时惰性触发
	day2 := time.Date(2026, 3, 11, 7, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return day2 }

	summary := tracker.GetSummary()
	require.Equal(t, "2026-03-11", summary.Date)
	require.Equal(t, 0.0, summary.Goals["steps"].CurrentValue)
	require.Equal(t, models.GoalStatusNotStarted, summary.Goals["steps"].Status)

	// 新的一天可以再次达成通知
	event := tracker.UpdateProgress("steps", 10000, day2)
	require.NotNil(t, event)
}

func TestGoalTracker_Summary(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	tracker := newTestTracker(t, now)

	tracker.UpdateProgress("steps", 10000, now)
	tracker.UpdateProgress("sleep", 5, now)

	summary := tracker.GetSummary()
	require.Equal(t, 4, summary.TotalGoals)
	require.Equal(t, 1, summary.Achieved)
	require.Equal(t, 1, summary.InProgress)
	require.Equal(t, 2, summary.NotStarted)
}

func TestGoalTracker_AddRemoveGoal(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	tracker := newTestTracker(t, now)

	tracker.AddGoal(models.GoalDefinition{
		Name:     "Meditation",
		DataType: "meditation",
		Target:   10,
		Unit:     "minutes",
	})
	require.NotNil(t, tracker.GetProgress("meditation"))

	require.True(t, tracker.RemoveGoal("meditation"))
	require.False(t, tracker.RemoveGoal("meditation"))
	require.Nil(t, tracker.GetProgress("meditation"))
}
