package evaluator

import (
	"math"
	"sync"
	"time"

	"wearable-automation/internal/models"
)

// sample 单个读数（不可变，由滚动窗口独占持有）
type sample struct {
	timestamp time.Time
	value     float64
}

// rollingStats 单个数据类型的滚动窗口与派生统计
type rollingStats struct {
	samples []sample
	mean    float64
	stdDev  float64
	minVal  float64
	maxVal  float64
}

// RollingBaselineStore 滚动基线存储
// 每个数据类型维护一个有界时间窗口的样本集，插入后重算 mean/stddev/min/max
type RollingBaselineStore struct {
	window     time.Duration
	maxSamples int

	mu    sync.Mutex
	stats map[string]*rollingStats

	now func() time.Time // 测试时可注入
}

// NewRollingBaselineStore 创建滚动基线存储
func NewRollingBaselineStore(windowHours, maxSamples int) *RollingBaselineStore {
	return &RollingBaselineStore{
		window:     time.Duration(windowHours) * time.Hour,
		maxSamples: maxSamples,
		stats:      make(map[string]*rollingStats),
		now:        time.Now,
	}
}

// AddReading 追加一个读数
// 超出窗口的旧样本被剔除，超出容量时淘汰最旧样本，然后重算统计
func (s *RollingBaselineStore) AddReading(dataType string, value float64, timestamp time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, ok := s.stats[dataType]
	if !ok {
		rs = &rollingStats{}
		s.stats[dataType] = rs
	}

	rs.samples = append(rs.samples, sample{timestamp: timestamp, value: value})

	// 容量上限：淘汰最旧样本
	if len(rs.samples) > s.maxSamples {
		rs.samples = rs.samples[len(rs.samples)-s.maxSamples:]
	}

	// 剔除窗口外的旧样本
	cutoff := s.now().Add(-s.window)
	idx := 0
	for idx < len(rs.samples) && rs.samples[idx].timestamp.Before(cutoff) {
		idx++
	}
	rs.samples = rs.samples[idx:]

	rs.recalculate()
}

// recalculate 重算统计量（调用方持锁）
func (rs *rollingStats) recalculate() {
	n := len(rs.samples)
	if n == 0 {
		rs.mean = 0
		rs.stdDev = 0
		rs.minVal = 0
		rs.maxVal = 0
		return
	}

	sum := 0.0
	rs.minVal = rs.samples[0].value
	rs.maxVal = rs.samples[0].value
	for _, smp := range rs.samples {
		sum += smp.value
		if smp.value < rs.minVal {
			rs.minVal = smp.value
		}
		if smp.value > rs.maxVal {
			rs.maxVal = smp.value
		}
	}
	rs.mean = sum / float64(n)

	// 标准差至少需要 2 个样本
	if n >= 2 {
		sumSq := 0.0
		for _, smp := range rs.samples {
			d := smp.value - rs.mean
			sumSq += d * d
		}
		rs.stdDev = math.Sqrt(sumSq / float64(n-1))
	} else {
		rs.stdDev = 0
	}
}

// Baseline 获取某个数据类型的基线统计，无数据时返回 nil
func (s *RollingBaselineStore) Baseline(dataType string) *models.BaselineStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, ok := s.stats[dataType]
	if !ok || len(rs.samples) == 0 {
		return nil
	}
	return s.baselineLocked(rs)
}

func (s *RollingBaselineStore) baselineLocked(rs *rollingStats) *models.BaselineStats {
	return &models.BaselineStats{
		Mean:        rs.mean,
		StdDev:      rs.stdDev,
		Min:         rs.minVal,
		Max:         rs.maxVal,
		Count:       len(rs.samples),
		WindowHours: s.window.Hours(),
	}
}

// AllBaselines 获取所有已跟踪数据类型的基线统计
func (s *RollingBaselineStore) AllBaselines() map[string]models.BaselineStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	baselines := make(map[string]models.BaselineStats)
	for dataType, rs := range s.stats {
		if len(rs.samples) == 0 {
			continue
		}
		baselines[dataType] = *s.baselineLocked(rs)
	}
	return baselines
}

// Count 某个数据类型的当前样本数
func (s *RollingBaselineStore) Count(dataType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rs, ok := s.stats[dataType]; ok {
		return len(rs.samples)
	}
	return 0
}

// TotalReadings 所有数据类型的样本总数
func (s *RollingBaselineStore) TotalReadings() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, rs := range s.stats {
		total += len(rs.samples)
	}
	return total
}

// DataTypes 已跟踪的数据类型列表
func (s *RollingBaselineStore) DataTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	types := make([]string, 0, len(s.stats))
	for dataType := range s.stats {
		types = append(types, dataType)
	}
	return types
}

// Reset 清除统计；dataType 为空时清除全部
func (s *RollingBaselineStore) Reset(dataType string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dataType == "" {
		s.stats = make(map[string]*rollingStats)
		return
	}
	delete(s.stats, dataType)
}
