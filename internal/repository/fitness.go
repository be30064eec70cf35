package repository

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"wearable-automation/internal/models"
)

// 可穿戴数据类型到 fitness_data 列的映射
// 只更新已有列，映射外的类型直接跳过
var fitnessColumns = map[string]string{
	models.DataTypeHeartRate: "avg_heart_rate",
	models.DataTypeSteps:     "steps",
	models.DataTypeSleep:     "sleep_hours",
}

// FitnessRepository 健身读库仓库
// 把实时可穿戴读数写入当天已有的 fitness_data 记录，
// 让读端代理在被查询时能返回实时数据
type FitnessRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewFitnessRepository 创建健身仓库
func NewFitnessRepository(db *sql.DB, logger *zap.Logger) *FitnessRepository {
	return &FitnessRepository{
		db:     db,
		logger: logger,
	}
}

// UpdateRealtime 用实时读数更新当天记录
// 只更新已存在的当天记录：可穿戴数据补充既有日记录，不创建新记录
// （创建全零记录会让看板显示异常）。返回是否实际更新
func (r *FitnessRepository) UpdateRealtime(dataType string, value float64, timestamp string) (bool, error) {
	column, ok := fitnessColumns[dataType]
	if !ok {
		r.logger.Debug("No fitness column mapping",
			zap.String("data_type", dataType),
		)
		return false, nil
	}

	date := dateFromTimestamp(timestamp)

	// 检查当天记录是否存在
	var recordID int64
	err := r.db.QueryRow("SELECT record_id FROM fitness_data WHERE date = ?", date).Scan(&recordID)
	if err == sql.ErrNoRows {
		r.logger.Debug("No fitness record for date, skipping realtime update",
			zap.String("date", date),
			zap.String("data_type", dataType),
		)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query fitness record: %w", err)
	}

	// column 来自固定映射，不存在注入风险
	query := fmt.Sprintf("UPDATE fitness_data SET %s = ? WHERE date = ?", column)
	if _, err := r.db.Exec(query, value, date); err != nil {
		return false, fmt.Errorf("failed to update fitness record: %w", err)
	}

	r.logger.Info("Updated fitness record",
		zap.String("date", date),
		zap.String("column", column),
		zap.Float64("value", value),
	)
	return true, nil
}

// dateFromTimestamp 从 ISO-8601 时间戳提取日期，无效时用今天
func dateFromTimestamp(timestamp string) string {
	if timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, timestamp); err == nil {
			return ts.Format("2006-01-02")
		}
	}
	return time.Now().Format("2006-01-02")
}
