package consumer

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"wearable-automation/internal/models"
)

// Notifier 健康通知写入器
// elevated/critical 事件追加一行到通知日志文件，便于演示时 tail -f 观察
type Notifier struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewNotifier 创建通知写入器
func NewNotifier(path string, logger *zap.Logger) *Notifier {
	return &Notifier{
		path:   path,
		logger: logger,
	}
}

// Write 追加一条通知记录，失败只记日志不上抛
func (n *Notifier) Write(event *models.WearableEvent, alertLevel string) {
	timestamp := event.Timestamp
	if timestamp == "" {
		timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	source := event.SourceDevice
	if source == "" {
		source = "Unknown device"
	}
	message := event.Message
	if message == "" {
		message = "No message"
	}

	line := fmt.Sprintf("[%s] [%s] %s: %v %s (%s) - %s\n",
		timestamp, strings.ToUpper(alertLevel), event.DataType, event.Value, event.Unit, source, message)

	n.mu.Lock()
	defer n.mu.Unlock()

	f, err := os.OpenFile(n.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		n.logger.Error("Failed to open notification file",
			zap.String("path", n.path),
			zap.Error(err),
		)
		return
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		n.logger.Error("Failed to write notification",
			zap.String("path", n.path),
			zap.Error(err),
		)
		return
	}

	n.logger.Info("Health notification written",
		zap.String("path", n.path),
		zap.String("alert_level", alertLevel),
	)
}
