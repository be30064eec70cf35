package api

import (
	"net/http"

	"go.uber.org/zap"
)

// NewRouter 注册所有路由
func NewRouter(h *Handler, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health/alerts/stream", methodGuard(http.MethodGet, h.StreamAlerts))
	mux.HandleFunc("/api/health/alerts/automation/history", methodGuard(http.MethodGet, h.AlertHistory))
	mux.HandleFunc("/api/health/alerts/automation/stats", methodGuard(http.MethodGet, h.AlertStats))
	mux.HandleFunc("/api/health/alerts/automation/test", methodGuard(http.MethodPost, h.TestAlert))
	mux.HandleFunc("/api/automation/status", methodGuard(http.MethodGet, h.AutomationStatus))
	mux.HandleFunc("/api/automation/anomalies", methodGuard(http.MethodGet, h.AnomalyStatus))
	mux.HandleFunc("/api/automation/goals", methodGuard(http.MethodGet, h.GoalStatus))
	mux.HandleFunc("/api/automation/readings", methodGuard(http.MethodGet, h.LatestReadings))

	return logMiddleware(mux, logger)
}

func methodGuard(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

func logMiddleware(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
		)
		next.ServeHTTP(w, r)
	})
}
