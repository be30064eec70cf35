package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"wearable-automation/internal/models"
)

// AnomalyThresholds 单个数据类型的异常检测阈值
// 绝对阈值（CriticalHigh/CriticalLow）优先于统计阈值
type AnomalyThresholds struct {
	SigmaThreshold float64  `yaml:"sigma_threshold"`
	CriticalHigh   *float64 `yaml:"critical_high"`
	CriticalLow    *float64 `yaml:"critical_low"`
	MinReadings    int      `yaml:"min_readings"`
}

// Config 可穿戴自动化服务配置
type Config struct {
	// MQTT 事件通道配置（上游可穿戴事件源）
	MQTT struct {
		Broker       string
		ClientID     string
		Username     string
		Password     string
		QoS          byte
		TopicPattern string // 如 "health/events/wearable/+/update"
	}

	// Redis 看板缓存配置（未配置 Addr 则禁用）
	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	// 看板缓存键配置
	Cache struct {
		ReadingsKey string // 最新读数快照缓存键
		AlertsKey   string // 活跃告警缓存键
		TTL         int    // 缓存 TTL（秒）
	}

	// 健身数据库配置（实时列更新；未配置路径则禁用）
	Fitness struct {
		DBPath string
	}

	// HTTP 管理接口配置
	HTTP struct {
		Addr string
	}

	// 告警队列配置
	Alerts struct {
		MaxHistory  int // 历史环形缓冲容量
		MailboxSize int // 每个订阅者邮箱容量
	}

	// 异常检测配置
	Anomaly struct {
		WindowHours        int     // 滚动基线窗口（小时）
		MaxSamples         int     // 每个数据类型最多保留的样本数
		DefaultSigma       float64 // 默认 sigma 阈值
		DefaultMinReadings int     // 默认最小样本数
		HistorySize        int     // 异常历史容量
		Thresholds         map[string]AnomalyThresholds
	}

	// 目标跟踪配置
	Goals struct {
		Definitions       []models.GoalDefinition
		AtRiskPollMinutes int    // at-risk 轮询间隔（分钟）
		NotificationFile  string // elevated/critical 事件的通知日志文件
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置（环境变量 + 可选 YAML 覆盖文件）
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "wearable-automation")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1
	cfg.MQTT.TopicPattern = getEnv("WEARABLE_TOPIC_PATTERN", "health/events/wearable/+/update")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.Cache.ReadingsKey = getEnv("CACHE_READINGS_KEY", "health:automation:readings")
	cfg.Cache.AlertsKey = getEnv("CACHE_ALERTS_KEY", "health:automation:alerts")
	cfg.Cache.TTL = getEnvInt("CACHE_TTL", 30)

	cfg.Fitness.DBPath = getEnv("FITNESS_DB_PATH", "")

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8082")

	cfg.Alerts.MaxHistory = getEnvInt("ALERT_MAX_HISTORY", 100)
	cfg.Alerts.MailboxSize = getEnvInt("ALERT_MAILBOX_SIZE", 100)

	cfg.Anomaly.WindowHours = getEnvInt("ANOMALY_WINDOW_HOURS", 24)
	cfg.Anomaly.MaxSamples = getEnvInt("ANOMALY_MAX_SAMPLES", 1000)
	cfg.Anomaly.DefaultSigma = getEnvFloat("ANOMALY_DEFAULT_SIGMA", 2.0)
	cfg.Anomaly.DefaultMinReadings = getEnvInt("ANOMALY_DEFAULT_MIN_READINGS", 5)
	cfg.Anomaly.HistorySize = getEnvInt("ANOMALY_HISTORY_SIZE", 100)
	cfg.Anomaly.Thresholds = DefaultThresholds()

	cfg.Goals.Definitions = DefaultGoals()
	cfg.Goals.AtRiskPollMinutes = getEnvInt("GOAL_AT_RISK_POLL_MINUTES", 30)
	cfg.Goals.NotificationFile = getEnv("HEALTH_NOTIFICATION_FILE", "health_notifications.log")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	// 可选的 YAML 覆盖文件
	if path := os.Getenv("ANOMALY_CONFIG_FILE"); path != "" {
		if err := loadThresholdsFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load anomaly config: %w", err)
		}
	}
	if path := os.Getenv("GOALS_CONFIG_FILE"); path != "" {
		if err := loadGoalsFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load goals config: %w", err)
		}
	}

	return cfg, nil
}

// DefaultThresholds 各数据类型的默认异常阈值
func DefaultThresholds() map[string]AnomalyThresholds {
	return map[string]AnomalyThresholds{
		models.DataTypeHeartRate: {
			SigmaThreshold: 2.0,
			CriticalHigh:   float64Ptr(120),
			CriticalLow:    float64Ptr(40),
			MinReadings:    10,
		},
		models.DataTypeSteps: {
			SigmaThreshold: 2.5, // 步数波动更大
			MinReadings:    5,
		},
		models.DataTypeSleep: {
			SigmaThreshold: 2.0,
			CriticalLow:    float64Ptr(4.0), // 少于 4 小时视为危急
			MinReadings:    7,
		},
		models.DataTypeStress: {
			SigmaThreshold: 2.0,
			CriticalHigh:   float64Ptr(9), // 10 分制 9 分以上视为危急
			MinReadings:    5,
		},
		models.DataTypeWorkout: {
			SigmaThreshold: 2.5,
			MinReadings:    3,
		},
	}
}

// DefaultGoals 默认目标集合
func DefaultGoals() []models.GoalDefinition {
	return []models.GoalDefinition{
		{
			Name:               "Daily Steps",
			DataType:           "steps",
			Target:             10000,
			Unit:               "steps",
			IsCumulative:       true,
			ReminderThreshold:  0.6,
			CelebrationMessage: "You hit your step goal! Great job staying active today!",
		},
		{
			Name:               "Active Minutes",
			DataType:           "active_minutes",
			Target:             30,
			Unit:               "minutes",
			IsCumulative:       true,
			ReminderThreshold:  0.5,
			CelebrationMessage: "You've been active for 30+ minutes today!",
		},
		{
			Name:               "Sleep Duration",
			DataType:           "sleep",
			Target:             7.0,
			Unit:               "hours",
			IsCumulative:       false, // 睡眠是单次读数，不累计
			ReminderThreshold:  0.8,
			CelebrationMessage: "Great sleep! You got the recommended 7+ hours.",
		},
		{
			Name:               "Water Intake",
			DataType:           "water",
			Target:             8,
			Unit:               "glasses",
			IsCumulative:       true,
			ReminderThreshold:  0.5,
			CelebrationMessage: "You've stayed hydrated today!",
		},
	}
}

// loadThresholdsFile 从 YAML 文件加载阈值覆盖（按数据类型合并）
func loadThresholdsFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	overrides := make(map[string]AnomalyThresholds)
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	for dataType, t := range overrides {
		cfg.Anomaly.Thresholds[dataType] = t
	}
	return nil
}

// loadGoalsFile 从 YAML 文件加载目标定义（整体替换默认集合）
func loadGoalsFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var goals []models.GoalDefinition
	if err := yaml.Unmarshal(data, &goals); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if len(goals) > 0 {
		cfg.Goals.Definitions = goals
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func float64Ptr(v float64) *float64 {
	return &v
}
