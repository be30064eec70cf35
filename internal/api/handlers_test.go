package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wearable-automation/internal/alerts"
	"wearable-automation/internal/api"
	"wearable-automation/internal/config"
	"wearable-automation/internal/consumer"
	"wearable-automation/internal/evaluator"
	"wearable-automation/internal/models"
)

type testEnv struct {
	router   http.Handler
	queue    *alerts.Queue
	pipeline *consumer.Pipeline
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{}
	cfg.Anomaly.WindowHours = 24
	cfg.Anomaly.MaxSamples = 1000
	cfg.Anomaly.DefaultSigma = 2.0
	cfg.Anomaly.DefaultMinReadings = 5
	cfg.Anomaly.HistorySize = 100
	cfg.Anomaly.Thresholds = config.DefaultThresholds()
	cfg.Goals.Definitions = config.DefaultGoals()
	cfg.Goals.NotificationFile = filepath.Join(t.TempDir(), "notifications.log")

	logger := zap.NewNop()
	queue := alerts.NewQueue(100, 100, logger)
	detector := evaluator.NewAnomalyDetector(cfg, logger)
	tracker := evaluator.NewGoalTracker(cfg.Goals.Definitions, logger)
	notifier := consumer.NewNotifier(cfg.Goals.NotificationFile, logger)
	pipeline := consumer.NewPipeline(cfg, detector, tracker, queue, nil, nil, notifier, logger)
	eventConsumer := consumer.NewEventConsumer(cfg, pipeline, logger)

	handler := api.NewHandler(detector, tracker, queue, pipeline, eventConsumer, logger)
	return &testEnv{
		router:   api.NewRouter(handler, logger),
		queue:    queue,
		pipeline: pipeline,
	}
}

func TestAlertHistoryEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.queue.Publish(models.NewAutomationAlert(models.AlertTypeAnomalyDetected, "A", "first", models.SeverityInfo))
	env.queue.Publish(models.NewAutomationAlert(models.AlertTypeGoalAchieved, "B", "second", models.SeverityInfo))

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health/alerts/automation/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var history []models.AutomationAlert
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&history))
	require.Len(t, history, 2)
	// 从新到旧
	require.Equal(t, "second", history[0].Message)
	require.Equal(t, "first", history[1].Message)
}

func TestAlertStatsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.queue.Publish(models.NewAutomationAlert(models.AlertTypeAnomalyDetected, "A", "a", models.SeverityInfo))

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health/alerts/automation/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats alerts.Stats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	require.Equal(t, 1, stats.TotalPublished)
	require.Equal(t, 1, stats.AlertsByType[models.AlertTypeAnomalyDetected])
}

func TestTestAlertEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/api/health/alerts/automation/test?alert_type=goal_achieved&message=hello", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "published", resp["status"])
	require.NotEmpty(t, resp["alert_id"])

	history := env.queue.GetHistory(0)
	require.Len(t, history, 1)
	require.Equal(t, models.AlertTypeGoalAchieved, history[0].AlertType)
	require.Equal(t, "hello", history[0].Message)
}

func TestTestAlertEndpoint_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health/alerts/automation/test", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAutomationStatusEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.pipeline.ProcessEvent(&models.WearableEvent{DataType: "heart_rate", Value: 72.0})

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/automation/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	require.Contains(t, status, "event_consumer")
	require.Contains(t, status, "pipeline")
	require.Contains(t, status, "anomaly_detector")
	require.Contains(t, status, "goal_tracker")
}

func TestLatestReadingsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.pipeline.ProcessEvent(&models.WearableEvent{DataType: "heart_rate", Value: 72.0, Unit: "bpm"})

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/automation/readings", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var readings map[string]models.LatestReading
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&readings))
	require.Equal(t, 72.0, readings["heart_rate"].Value)
}

func TestGoalStatusEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/automation/goals", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var summary models.GoalSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))
	require.Equal(t, 4, summary.TotalGoals)
}

func TestStreamAlertsSSE(t *testing.T) {
	env := newTestEnv(t)

	alert := models.NewAutomationAlert(models.AlertTypeAnomalyDetected, "A", "streamed", models.SeverityWarning)
	env.queue.Publish(alert)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/health/alerts/stream?history_count=5", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		env.router.ServeHTTP(rec, req)
	}()

	// 预载的历史告警从邮箱流出后结束连接
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	require.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	body := rec.Body.String()
	require.Contains(t, body, "event: alert\ndata: ")
	require.True(t, strings.Contains(body, alert.ID))

	var frame models.AutomationAlert
	payload := strings.TrimPrefix(strings.Split(body, "\n")[1], "data: ")
	require.NoError(t, json.Unmarshal([]byte(payload), &frame))
	require.Equal(t, "streamed", frame.Message)
}
