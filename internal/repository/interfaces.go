// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hitoshi/labquest/internal/model"
)

// ErrDuplicate は一意制約違反を表す。(user_id, badge_id) の重複付与で返される。
var ErrDuplicate = errors.New("repository: duplicate key")

// DBTX は *sql.DB と *sql.Tx の共通インターフェース。
// リポジトリはトランザクション内外のどちらでも同じ実装を使う。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByIDForUpdate はトランザクション内で行ロックを取得してユーザーを取得する。
	// ポイント残高の読み取り・更新を1ステップで行うために使う。見つからない場合はnilを返す。
	FindByIDForUpdate(ctx context.Context, id string) (*model.User, error)

	// Update はロール、ステータス、ポイント残高、完了タスク数をまとめて更新する。
	Update(ctx context.Context, user *model.User) error

	// ListActiveIDs はステータスがactiveのユーザーID一覧を返す。
	ListActiveIDs(ctx context.Context) ([]string, error)
}

// TaskRepository はタスクデータの永続化インターフェース。
type TaskRepository interface {
	// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Task, error)

	// FindByIDForUpdate は行ロックを取得してタスクを取得する。見つからない場合はnilを返す。
	FindByIDForUpdate(ctx context.Context, id string) (*model.Task, error)

	// Create はタスクを作成する。
	Create(ctx context.Context, task *model.Task) error

	// Update はタスクを更新する。
	Update(ctx context.Context, task *model.Task) error
}

// ProjectRepository はプロジェクトと所属の参照インターフェース。
type ProjectRepository interface {
	// FindByID は指定IDのプロジェクトを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Project, error)

	// FindMembership はプロジェクトとユーザーで所属を検索する。見つからない場合はnilを返す。
	FindMembership(ctx context.Context, projectID, userID string) (*model.ProjectMembership, error)
}

// BadgeRepository はバッジ定義の参照インターフェース。
type BadgeRepository interface {
	// FindByID は指定IDのバッジを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Badge, error)

	// FindActiveCriteriaBadges は有効かつ獲得条件を持つバッジを返す。
	FindActiveCriteriaBadges(ctx context.Context) ([]*model.Badge, error)
}

// UserBadgeRepository はユーザー保持バッジの永続化インターフェース。
type UserBadgeRepository interface {
	// FindByUserID はユーザーの保持バッジ一覧を返す。
	FindByUserID(ctx context.Context, userID string) ([]*model.UserBadge, error)

	// Create は保持バッジを作成する。(user_id, badge_id) が既に存在する場合は ErrDuplicate を返す。
	Create(ctx context.Context, userBadge *model.UserBadge) error

	// Delete は保持バッジを削除する。削除対象がなかった場合はfalseを返す。
	Delete(ctx context.Context, userID, badgeID string) (bool, error)

	// CountHolders はexcludeUserID以外でbadgeIDを保持しているユーザー数を返す。
	CountHolders(ctx context.Context, badgeID, excludeUserID string) (int, error)
}

// Metric はユーザー間比較に使う集計項目を表す。
type Metric string

const (
	MetricPoints         Metric = "points"
	MetricCompletedTasks Metric = "completed_tasks"
)

// StatsRepository はバッジ判定に必要な集計クエリのインターフェース。
type StatsRepository interface {
	// CountProjects はユーザーが所属するプロジェクト数を返す。
	CountProjects(ctx context.Context, userID string) (int, error)

	// CountWorkSessions はユーザーの作業セッション数を返す。
	CountWorkSessions(ctx context.Context, userID string) (int, error)

	// SumWorkHoursSince は指定時刻以降に開始した作業セッションの合計時間を返す。
	SumWorkHoursSince(ctx context.Context, userID string, since time.Time) (float64, error)

	// ListDailyLogDates は日報を記録した日付（重複なし、昇順）を返す。
	ListDailyLogDates(ctx context.Context, userID string) ([]time.Time, error)

	// CountOtherUsersAbove はexcludeUserID以外で metric > value のユーザー数を返す。
	CountOtherUsersAbove(ctx context.Context, metric Metric, value int, excludeUserID string) (int, error)
}

// HistoryRepository は追記専用の履歴ストア。
type HistoryRepository interface {
	// Append は履歴レコードを追記する。
	Append(ctx context.Context, record *model.HistoryRecord) error
}

// Stores は1つのトランザクション（または接続）に束ねたリポジトリ群。
type Stores struct {
	Users      UserRepository
	Tasks      TaskRepository
	Projects   ProjectRepository
	Badges     BadgeRepository
	UserBadges UserBadgeRepository
}

// Transactor はトランザクション境界を提供する。
// fnがエラーを返した場合はロールバックし、何も永続化しない。
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error
}
