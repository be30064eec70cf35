package repository

import (
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFitnessRepository_UpdateRealtime(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT record_id FROM fitness_data WHERE date = ?")).
		WithArgs("2026-03-10").
		WillReturnRows(sqlmock.NewRows([]string{"record_id"}).AddRow(42))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE fitness_data SET avg_heart_rate = ? WHERE date = ?")).
		WithArgs(78.0, "2026-03-10").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewFitnessRepository(db, zap.NewNop())
	updated, err := repo.UpdateRealtime("heart_rate", 78, "2026-03-10T14:30:00Z")
	require.NoError(t, err)
	require.True(t, updated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFitnessRepository_SkipsWhenNoRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// 当天没有记录：不创建新行，静默跳过
	mock.ExpectQuery(regexp.QuoteMeta("SELECT record_id FROM fitness_data WHERE date = ?")).
		WithArgs("2026-03-10").
		WillReturnRows(sqlmock.NewRows([]string{"record_id"}))

	repo := NewFitnessRepository(db, zap.NewNop())
	updated, err := repo.UpdateRealtime("steps", 5000, "2026-03-10T14:30:00Z")
	require.NoError(t, err)
	require.False(t, updated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFitnessRepository_SkipsUnmappedType(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// stress 没有对应列，不触发任何查询
	repo := NewFitnessRepository(db, zap.NewNop())
	updated, err := repo.UpdateRealtime("stress", 5, "2026-03-10T14:30:00Z")
	require.NoError(t, err)
	require.False(t, updated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDateFromTimestamp(t *testing.T) {
	require.Equal(t, "2026-03-10", dateFromTimestamp("2026-03-10T14:30:00Z"))

	// 无效时间戳回退到今天
	today := dateFromTimestamp("")
	require.Regexp(t, `^\d{4}-\d{2}-\d{2}$`, today)
	require.Equal(t, today, dateFromTimestamp("not-a-timestamp"))
}
