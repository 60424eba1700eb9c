package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/labquest/internal/model"
	"github.com/lib/pq"
)

// PostgresProjectRepo はPostgreSQLを使用したプロジェクトリポジトリ。
type PostgresProjectRepo struct {
	db DBTX
}

// NewPostgresProjectRepo はPostgresProjectRepoを生成する。
func NewPostgresProjectRepo(db DBTX) *PostgresProjectRepo {
	return &PostgresProjectRepo{db: db}
}

// FindByID は指定IDのプロジェクトを取得する。見つからない場合はnilを返す。
func (r *PostgresProjectRepo) FindByID(ctx context.Context, id string) (*model.Project, error) {
	p := &model.Project{}
	var leaderID sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, leader_id, created_by, created_at FROM projects WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Name, &leaderID, &p.CreatedBy, &p.CreatedAt)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("プロジェクトの取得に失敗しました: %w", err)
	}
	p.LeaderID = nullStringPtr(leaderID)
	return p, nil
}

// FindMembership はプロジェクトとユーザーで所属を検索する。見つからない場合はnilを返す。
func (r *PostgresProjectRepo) FindMembership(ctx context.Context, projectID, userID string) (*model.ProjectMembership, error) {
	m := &model.ProjectMembership{}
	var roles []string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, project_id, user_id, roles, joined_at
		 FROM project_memberships
		 WHERE project_id = $1 AND user_id = $2`,
		projectID, userID,
	).Scan(&m.ID, &m.ProjectID, &m.UserID, pq.Array(&roles), &m.JoinedAt)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("プロジェクト所属の取得に失敗しました: %w", err)
	}
	m.Roles = toRoles(roles)
	return m, nil
}

// compile-time interface check
var _ ProjectRepository = (*PostgresProjectRepo)(nil)
