package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"wearable-automation/internal/config"
	"wearable-automation/internal/models"
)

// EventConsumer 可穿戴事件消费者
// 订阅消息通道上的可穿戴事件主题，回调在 MQTT 客户端的工作线程上执行，
// 解码失败的报文记日志后丢弃，绝不中断订阅
type EventConsumer struct {
	config   *config.Config
	pipeline *Pipeline
	logger   *zap.Logger

	mu      sync.Mutex
	client  mqtt.Client
	running bool
}

// ConsumerStatus 消费者状态
type ConsumerStatus struct {
	Running      bool   `json:"running"`
	Broker       string `json:"broker"`
	TopicPattern string `json:"topic_pattern"`
}

// NewEventConsumer 创建事件消费者
func NewEventConsumer(cfg *config.Config, pipeline *Pipeline, logger *zap.Logger) *EventConsumer {
	return &EventConsumer{
		config:   cfg,
		pipeline: pipeline,
		logger:   logger,
	}
}

// Start 连接消息通道并订阅可穿戴事件主题
func (c *EventConsumer) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.config.MQTT.Broker)
	opts.SetClientID(c.config.MQTT.ClientID)
	if c.config.MQTT.Username != "" {
		opts.SetUsername(c.config.MQTT.Username)
	}
	if c.config.MQTT.Password != "" {
		opts.SetPassword(c.config.MQTT.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	// 重连后自动恢复订阅
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		if token := client.Subscribe(c.config.MQTT.TopicPattern, c.config.MQTT.QoS, c.handleMessage); token.Wait() && token.Error() != nil {
			c.logger.Error("Failed to subscribe",
				zap.String("topic", c.config.MQTT.TopicPattern),
				zap.Error(token.Error()),
			)
			return
		}
		c.logger.Info("Subscribed to wearable events",
			zap.String("topic", c.config.MQTT.TopicPattern),
		)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	c.mu.Lock()
	c.client = client
	c.running = true
	c.mu.Unlock()

	c.logger.Info("Event consumer started",
		zap.String("broker", c.config.MQTT.Broker),
		zap.String("topic", c.config.MQTT.TopicPattern),
	)
	return nil
}

// handleMessage 处理一条入站报文
func (c *EventConsumer) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	var event models.WearableEvent
	if err := json.Unmarshal(msg.Payload(), &event); err != nil {
		c.logger.Error("Failed to parse wearable event",
			zap.String("topic", msg.Topic()),
			zap.Error(err),
		)
		return
	}

	c.logger.Debug("Wearable event received",
		zap.String("topic", msg.Topic()),
		zap.String("data_type", event.DataType),
	)

	c.pipeline.ProcessEvent(&event)
}

// Stop 断开消息通道
func (c *EventConsumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		c.client.Unsubscribe(c.config.MQTT.TopicPattern)
		c.client.Disconnect(250)
		c.client = nil
	}
	c.running = false

	c.logger.Info("Event consumer stopped")
}

// Status 获取消费者状态
func (c *EventConsumer) Status() ConsumerStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	return ConsumerStatus{
		Running:      c.running,
		Broker:       c.config.MQTT.Broker,
		TopicPattern: c.config.MQTT.TopicPattern,
	}
}
