package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/labquest/internal/model"
)

const taskColumns = `id, title, description, status, priority, assignee_id, project_id,
	created_by, due_date, points, completed, visibility, rejection_reason,
	completed_at, approved_by, approved_at, created_at, updated_at`

// PostgresTaskRepo はPostgreSQLを使用したタスクリポジトリ。
type PostgresTaskRepo struct {
	db DBTX
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db DBTX) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
func (r *PostgresTaskRepo) FindByID(ctx context.Context, id string) (*model.Task, error) {
	return r.find(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
}

// FindByIDForUpdate は行ロック付きでタスクを取得する。
func (r *PostgresTaskRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.Task, error) {
	return r.find(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresTaskRepo) find(ctx context.Context, query, id string) (*model.Task, error) {
	t := &model.Task{}
	var (
		assigneeID, projectID, approvedBy sql.NullString
		dueDate, completedAt, approvedAt  sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.Title, &t.Description, &t.Status, &t.Priority, &assigneeID, &projectID,
		&t.CreatedBy, &dueDate, &t.Points, &t.Completed, &t.Visibility, &t.RejectionReason,
		&completedAt, &approvedBy, &approvedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}

	t.AssigneeID = nullStringPtr(assigneeID)
	t.ProjectID = nullStringPtr(projectID)
	t.ApprovedBy = nullStringPtr(approvedBy)
	t.DueDate = nullTimePtr(dueDate)
	t.CompletedAt = nullTimePtr(completedAt)
	t.ApprovedAt = nullTimePtr(approvedAt)
	return t, nil
}

// Create はタスクを作成する。
func (r *PostgresTaskRepo) Create(ctx context.Context, t *model.Task) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		t.ID, t.Title, t.Description, t.Status, t.Priority, t.AssigneeID, t.ProjectID,
		t.CreatedBy, t.DueDate, t.Points, t.Completed, t.Visibility, t.RejectionReason,
		t.CompletedAt, t.ApprovedBy, t.ApprovedAt, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("タスクの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はタスクを更新する。
func (r *PostgresTaskRepo) Update(ctx context.Context, t *model.Task) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tasks
		 SET title = $2, description = $3, status = $4, priority = $5, assignee_id = $6,
		     due_date = $7, points = $8, completed = $9, visibility = $10,
		     rejection_reason = $11, completed_at = $12, approved_by = $13, approved_at = $14,
		     updated_at = $15
		 WHERE id = $1`,
		t.ID, t.Title, t.Description, t.Status, t.Priority, t.AssigneeID,
		t.DueDate, t.Points, t.Completed, t.Visibility,
		t.RejectionReason, t.CompletedAt, t.ApprovedBy, t.ApprovedAt,
		t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("タスクの更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("タスクが見つかりません: %s", t.ID)
	}
	return nil
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)
