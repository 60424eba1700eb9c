package repository

import (
	"context"
	"fmt"

	"github.com/hitoshi/labquest/internal/model"
	"github.com/lib/pq"
)

const userColumns = `id, email, name, roles, status, points, completed_tasks,
	weekly_hours_target, weekly_hours_actual, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db DBTX
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db DBTX) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.find(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// FindByIDForUpdate は行ロック付きでユーザーを取得する。
func (r *PostgresUserRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.User, error) {
	return r.find(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresUserRepo) find(ctx context.Context, query, id string) (*model.User, error) {
	user := &model.User{}
	var roles []string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.Email, &user.Name, pq.Array(&roles), &user.Status,
		&user.Points, &user.CompletedTasks,
		&user.WeeklyHoursTarget, &user.WeeklyHoursActual,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	user.Roles = toRoles(roles)
	return user, nil
}

// Update はユーザーのロール、ステータス、ポイント残高、完了タスク数を1回のUPDATEで更新する。
func (r *PostgresUserRepo) Update(ctx context.Context, user *model.User) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET roles = $2, status = $3, points = $4, completed_tasks = $5,
		     weekly_hours_target = $6, weekly_hours_actual = $7, updated_at = NOW()
		 WHERE id = $1`,
		user.ID, pq.Array(fromRoles(user.Roles)), user.Status, user.Points, user.CompletedTasks,
		user.WeeklyHoursTarget, user.WeeklyHoursActual,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", user.ID)
	}
	return nil
}

// ListActiveIDs はactiveなユーザーのID一覧を作成日時順で返す。
func (r *PostgresUserRepo) ListActiveIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM users WHERE status = 'active' ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return ids, nil
}

func toRoles(tags []string) []model.Role {
	roles := make([]model.Role, 0, len(tags))
	for _, t := range tags {
		roles = append(roles, model.Role(t))
	}
	return roles
}

func fromRoles(roles []model.Role) []string {
	tags := make([]string, 0, len(roles))
	for _, r := range roles {
		tags = append(tags, string(r))
	}
	return tags
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
