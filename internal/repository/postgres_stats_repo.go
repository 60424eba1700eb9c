package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/labquest/internal/model"
)

// PostgresStatsRepo はバッジ判定用の集計クエリを実行する。
type PostgresStatsRepo struct {
	db DBTX
}

// NewPostgresStatsRepo はPostgresStatsRepoを生成する。
func NewPostgresStatsRepo(db DBTX) *PostgresStatsRepo {
	return &PostgresStatsRepo{db: db}
}

// CountProjects はユーザーが所属するプロジェクト数を返す。
func (r *PostgresStatsRepo) CountProjects(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM project_memberships WHERE user_id = $1`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count projects: %w", err)
	}
	return n, nil
}

// CountWorkSessions はユーザーの作業セッション数を返す。
func (r *PostgresStatsRepo) CountWorkSessions(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM work_sessions WHERE user_id = $1`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count work sessions: %w", err)
	}
	return n, nil
}

// SumWorkHoursSince は指定時刻以降に開始した作業セッションの合計時間を返す。
// 終了していないセッションは集計しない。
func (r *PostgresStatsRepo) SumWorkHoursSince(ctx context.Context, userID string, since time.Time) (float64, error) {
	var hours float64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(EXTRACT(EPOCH FROM (ended_at - started_at)) / 3600.0), 0)
		 FROM work_sessions
		 WHERE user_id = $1 AND started_at >= $2 AND ended_at IS NOT NULL`,
		userID, since,
	).Scan(&hours)
	if err != nil {
		return 0, fmt.Errorf("failed to sum work hours: %w", err)
	}
	return hours, nil
}

// ListDailyLogDates は日報を記録した日付を重複なし・昇順で返す。
func (r *PostgresStatsRepo) ListDailyLogDates(ctx context.Context, userID string) ([]time.Time, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT log_date FROM daily_logs WHERE user_id = $1 ORDER BY log_date ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily log dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan log date: %w", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate log dates: %w", err)
	}
	return dates, nil
}

// CountOtherUsersAbove はexcludeUserID以外で metric > value のユーザー数を返す。
func (r *PostgresStatsRepo) CountOtherUsersAbove(ctx context.Context, metric Metric, value int, excludeUserID string) (int, error) {
	col, err := metricColumn(metric)
	if err != nil {
		return 0, err
	}
	var n int
	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE `+col+` > $1 AND id <> $2`,
		value, excludeUserID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// metricColumn はMetricを列名に変換する。SQLに埋め込むため許可リスト以外は拒否する。
func metricColumn(m Metric) (string, error) {
	switch m {
	case MetricPoints:
		return "points", nil
	case MetricCompletedTasks:
		return "completed_tasks", nil
	}
	return "", fmt.Errorf("unknown metric: %s", m)
}

// PostgresHistoryRepo は追記専用の履歴テーブルへ書き込む。
type PostgresHistoryRepo struct {
	db DBTX
}

// NewPostgresHistoryRepo はPostgresHistoryRepoを生成する。
func NewPostgresHistoryRepo(db DBTX) *PostgresHistoryRepo {
	return &PostgresHistoryRepo{db: db}
}

// Append は履歴レコードを追記する。
func (r *PostgresHistoryRepo) Append(ctx context.Context, rec *model.HistoryRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO history (id, entity_type, entity_id, action, performed_by, before_state, after_state, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.EntityType, rec.EntityID, rec.Action, rec.PerformedBy,
		nullJSON(rec.Before), nullJSON(rec.After), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// compile-time interface check
var (
	_ StatsRepository   = (*PostgresStatsRepo)(nil)
	_ HistoryRepository = (*PostgresHistoryRepo)(nil)
)
