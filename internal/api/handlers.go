package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"wearable-automation/internal/alerts"
	"wearable-automation/internal/consumer"
	"wearable-automation/internal/evaluator"
	"wearable-automation/internal/models"
)

// Handler 管理接口处理器（看板消费的只读查询 + 测试告警注入 + SSE 流）
type Handler struct {
	detector      *evaluator.AnomalyDetector
	tracker       *evaluator.GoalTracker
	queue         *alerts.Queue
	pipeline      *consumer.Pipeline
	eventConsumer *consumer.EventConsumer
	logger        *zap.Logger
}

// NewHandler 创建处理器
func NewHandler(
	detector *evaluator.AnomalyDetector,
	tracker *evaluator.GoalTracker,
	queue *alerts.Queue,
	pipeline *consumer.Pipeline,
	eventConsumer *consumer.EventConsumer,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		detector:      detector,
		tracker:       tracker,
		queue:         queue,
		pipeline:      pipeline,
		eventConsumer: eventConsumer,
		logger:        logger,
	}
}

// StreamAlerts GET /api/health/alerts/stream
// 以 Server-Sent-Events 推送实时告警；连接永不在服务端关闭，
// 客户端断开（请求上下文取消）是唯一的结束方式
func (h *Handler) StreamAlerts(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	includeHistory := r.URL.Query().Get("include_history") != "false"
	historyCount := queryInt(r, "history_count", 10)
	if historyCount < 0 {
		historyCount = 0
	}
	if historyCount > 50 {
		historyCount = 50
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // 禁用反向代理缓冲
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.queue.Subscribe(includeHistory, historyCount)
	defer sub.Close()

	h.logger.Info("SSE subscriber connected",
		zap.String("remote", r.RemoteAddr),
	)

	for {
		select {
		case <-r.Context().Done():
			h.logger.Info("SSE subscriber disconnected",
				zap.String("remote", r.RemoteAddr),
			)
			return
		case alert := <-sub.Alerts():
			data, err := json.Marshal(alert)
			if err != nil {
				h.logger.Error("Failed to marshal alert", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: alert\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// AlertHistory GET /api/health/alerts/automation/history
// 返回最近的告警，从新到旧
func (h *Handler) AlertHistory(w http.ResponseWriter, r *http.Request) {
	count := queryInt(r, "count", 50)
	if count < 1 {
		count = 1
	}
	if count > 100 {
		count = 100
	}
	writeJSON(w, h.queue.GetHistory(count))
}

// AlertStats GET /api/health/alerts/automation/stats
func (h *Handler) AlertStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.queue.GetStats())
}

// TestAlert POST /api/health/alerts/automation/test
// 注入一条测试告警（开发/联调用）
func (h *Handler) TestAlert(w http.ResponseWriter, r *http.Request) {
	alertType := r.URL.Query().Get("alert_type")
	if alertType == "" {
		alertType = models.AlertTypeAnomalyDetected
	}
	message := r.URL.Query().Get("message")
	if message == "" {
		message = "This is a test alert"
	}

	alert := models.NewAutomationAlert(
		alertType,
		"Test Alert: "+alertType,
		message,
		models.SeverityInfo,
	)
	alert.DataType = "test"
	alert.Value = models.Float64Ptr(42.0)
	h.queue.Publish(alert)

	writeJSON(w, map[string]string{
		"status":   "published",
		"alert_id": alert.ID,
	})
}

// AutomationStatus GET /api/automation/status
// 监听器 + 异常检测 + 目标跟踪的组合状态
func (h *Handler) AutomationStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"event_consumer":   h.eventConsumer.Status(),
		"pipeline":         h.pipeline.Status(),
		"anomaly_detector": h.detector.GetStats(),
		"goal_tracker":     h.tracker.GetSummary(),
	})
}

// AnomalyStatus GET /api/automation/anomalies
// 检测器统计（含基线）和最近的异常历史
func (h *Handler) AnomalyStatus(w http.ResponseWriter, r *http.Request) {
	count := queryInt(r, "count", 10)
	writeJSON(w, map[string]interface{}{
		"stats":   h.detector.GetStats(),
		"history": h.detector.GetAnomalyHistory(count),
	})
}

// GoalStatus GET /api/automation/goals
func (h *Handler) GoalStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.tracker.GetSummary())
}

// LatestReadings GET /api/automation/readings
// 每个数据类型的最新读数快照（"我现在的心率是多少"类查询）
func (h *Handler) LatestReadings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.pipeline.GetLatestReadings())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func queryInt(r *http.Request, key string, defaultValue int) int {
	if value := r.URL.Query().Get(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
