package alerts

import (
	"sync"

	"go.uber.org/zap"

	"wearable-automation/internal/models"
)

// Queue 线程安全的告警发布/订阅中心
// 历史环形缓冲 + 每订阅者有界邮箱；发布方持单锁广播，入箱使用非阻塞发送，
// 邮箱已满的订阅者被视为失效并从广播列表移除（背压策略：慢消费者丢弃并剔除，
// 需重新订阅才能继续接收；牺牲完整性换取内存有界和发布方不阻塞）
type Queue struct {
	logger      *zap.Logger
	maxHistory  int
	mailboxSize int

	mu               sync.Mutex
	history          []*models.AutomationAlert
	subscribers      map[*Subscription]struct{}
	totalPublished   int
	totalSubscribers int
	byType           map[string]int
}

// Subscription 一个订阅者的邮箱
// 消费方在锁外阻塞读取自己的通道；Close 注销邮箱（可重复调用）
type Subscription struct {
	queue *Queue
	ch    chan *models.AutomationAlert
}

// Stats 队列统计
type Stats struct {
	TotalPublished     int            `json:"total_published"`
	TotalSubscribers   int            `json:"total_subscribers"`
	AlertsByType       map[string]int `json:"alerts_by_type"`
	CurrentSubscribers int            `json:"current_subscribers"`
	HistorySize        int            `json:"history_size"`
}

// NewQueue 创建告警队列
func NewQueue(maxHistory, mailboxSize int, logger *zap.Logger) *Queue {
	return &Queue{
		logger:      logger,
		maxHistory:  maxHistory,
		mailboxSize: mailboxSize,
		subscribers: make(map[*Subscription]struct{}),
		byType:      make(map[string]int),
	}
}

// Publish 发布告警到所有订阅者
// 任意 goroutine 并发调用安全；锁内只做非阻塞入箱，绝不阻塞发布方
func (q *Queue) Publish(alert *models.AutomationAlert) {
	q.mu.Lock()
	defer q.mu.Unlock()

	// 追加历史，超出容量淘汰最旧
	q.history = append(q.history, alert)
	if len(q.history) > q.maxHistory {
		q.history = q.history[len(q.history)-q.maxHistory:]
	}

	q.totalPublished++
	q.byType[alert.AlertType]++

	// 广播：邮箱已满的订阅者直接剔除
	for sub := range q.subscribers {
		select {
		case sub.ch <- alert:
		default:
			delete(q.subscribers, sub)
			q.logger.Warn("Subscriber mailbox full, removed",
				zap.String("alert_type", alert.AlertType),
			)
		}
	}

	q.logger.Debug("Alert published",
		zap.String("alert_id", alert.ID),
		zap.String("alert_type", alert.AlertType),
		zap.String("severity", alert.Severity),
	)
}

// Subscribe 创建新订阅
// includeHistory 为 true 时按从旧到新预载最近 historyCount 条历史告警；
// 返回的订阅永不自行终止，取消的唯一方式是调用 Close
func (q *Queue) Subscribe(includeHistory bool, historyCount int) *Subscription {
	sub := &Subscription{
		queue: q,
		ch:    make(chan *models.AutomationAlert, q.mailboxSize),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.subscribers[sub] = struct{}{}
	q.totalSubscribers++

	if includeHistory && historyCount > 0 {
		if historyCount > len(q.history) {
			historyCount = len(q.history)
		}
		if historyCount > q.mailboxSize {
			historyCount = q.mailboxSize
		}
		for _, alert := range q.history[len(q.history)-historyCount:] {
			sub.ch <- alert // 预载数量已截到邮箱容量内，不会阻塞
		}
	}

	return sub
}

// Alerts 订阅者的告警通道
func (s *Subscription) Alerts() <-chan *models.AutomationAlert {
	return s.ch
}

// Close 注销订阅（幂等）
func (s *Subscription) Close() {
	s.queue.mu.Lock()
	defer s.queue.mu.Unlock()
	delete(s.queue.subscribers, s)
}

// GetHistory 获取最近 count 条告警，从新到旧
func (q *Queue) GetHistory(count int) []*models.AutomationAlert {
	q.mu.Lock()
	defer q.mu.Unlock()

	if count <= 0 || count > len(q.history) {
		count = len(q.history)
	}

	out := make([]*models.AutomationAlert, count)
	for i := 0; i < count; i++ {
		out[i] = q.history[len(q.history)-1-i]
	}
	return out
}

// GetStats 获取队列统计
func (q *Queue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	byType := make(map[string]int, len(q.byType))
	for k, v := range q.byType {
		byType[k] = v
	}

	return Stats{
		TotalPublished:     q.totalPublished,
		TotalSubscribers:   q.totalSubscribers,
		AlertsByType:       byType,
		CurrentSubscribers: len(q.subscribers),
		HistorySize:        len(q.history),
	}
}

// ClearHistory 清空历史缓冲
func (q *Queue) ClearHistory() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.history = nil
}
