package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hitoshi/labquest/internal/model"
	"github.com/lib/pq"
)

// PostgresBadgeRepo はPostgreSQLを使用したバッジ定義リポジトリ。
// 獲得条件はjsonb列に格納する。
type PostgresBadgeRepo struct {
	db DBTX
}

// NewPostgresBadgeRepo はPostgresBadgeRepoを生成する。
func NewPostgresBadgeRepo(db DBTX) *PostgresBadgeRepo {
	return &PostgresBadgeRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBadge(row rowScanner) (*model.Badge, error) {
	b := &model.Badge{}
	var criteria []byte
	if err := row.Scan(&b.ID, &b.Name, &b.Description, &b.Category, &criteria, &b.Active, &b.CreatedAt); err != nil {
		return nil, err
	}
	if len(criteria) > 0 && string(criteria) != "null" {
		c := &model.BadgeCriteria{}
		if err := json.Unmarshal(criteria, c); err != nil {
			return nil, fmt.Errorf("failed to decode badge criteria: %w", err)
		}
		b.Criteria = c
	}
	return b, nil
}

// FindByID は指定IDのバッジを取得する。見つからない場合はnilを返す。
func (r *PostgresBadgeRepo) FindByID(ctx context.Context, id string) (*model.Badge, error) {
	b, err := scanBadge(r.db.QueryRowContext(ctx,
		`SELECT id, name, description, category, criteria, active, created_at
		 FROM badges WHERE id = $1`,
		id,
	))
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find badge by ID: %w", err)
	}
	return b, nil
}

// FindActiveCriteriaBadges は有効かつ獲得条件を持つバッジを作成日時順で返す。
func (r *PostgresBadgeRepo) FindActiveCriteriaBadges(ctx context.Context) ([]*model.Badge, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, description, category, criteria, active, created_at
		 FROM badges
		 WHERE active = TRUE AND criteria IS NOT NULL
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list badges: %w", err)
	}
	defer rows.Close()

	var badges []*model.Badge
	for rows.Next() {
		b, err := scanBadge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan badge: %w", err)
		}
		if b.Criteria != nil {
			badges = append(badges, b)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate badges: %w", err)
	}
	return badges, nil
}

// PostgresUserBadgeRepo はPostgreSQLを使用した保持バッジリポジトリ。
// (user_id, badge_id) の一意制約で重複付与を防ぐ。
type PostgresUserBadgeRepo struct {
	db DBTX
}

// NewPostgresUserBadgeRepo はPostgresUserBadgeRepoを生成する。
func NewPostgresUserBadgeRepo(db DBTX) *PostgresUserBadgeRepo {
	return &PostgresUserBadgeRepo{db: db}
}

// FindByUserID はユーザーの保持バッジを獲得日時順で返す。
func (r *PostgresUserBadgeRepo) FindByUserID(ctx context.Context, userID string) ([]*model.UserBadge, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, badge_id, earned_at, awarded_by
		 FROM user_badges WHERE user_id = $1
		 ORDER BY earned_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list user badges: %w", err)
	}
	defer rows.Close()

	var held []*model.UserBadge
	for rows.Next() {
		ub := &model.UserBadge{}
		var awardedBy sql.NullString
		if err := rows.Scan(&ub.ID, &ub.UserID, &ub.BadgeID, &ub.EarnedAt, &awardedBy); err != nil {
			return nil, fmt.Errorf("failed to scan user badge: %w", err)
		}
		ub.AwardedBy = nullStringPtr(awardedBy)
		held = append(held, ub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user badges: %w", err)
	}
	return held, nil
}

// Create は保持バッジを作成する。一意制約違反の場合は ErrDuplicate を返す。
func (r *PostgresUserBadgeRepo) Create(ctx context.Context, ub *model.UserBadge) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_badges (id, user_id, badge_id, earned_at, awarded_by)
		 VALUES ($1, $2, $3, $4, $5)`,
		ub.ID, ub.UserID, ub.BadgeID, ub.EarnedAt, ub.AwardedBy,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create user badge: %w", err)
	}
	return nil
}

// Delete は保持バッジを削除する。
func (r *PostgresUserBadgeRepo) Delete(ctx context.Context, userID, badgeID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM user_badges WHERE user_id = $1 AND badge_id = $2`,
		userID, badgeID,
	)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete user badge: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// CountHolders はexcludeUserID以外でbadgeIDを保持しているユーザー数を返す。
func (r *PostgresUserBadgeRepo) CountHolders(ctx context.Context, badgeID, excludeUserID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_badges WHERE badge_id = $1 AND user_id <> $2`,
		badgeID, excludeUserID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count badge holders: %w", err)
	}
	return n, nil
}

// isNotFound は行が見つからないか、IDがUUIDとして不正(22P02)かを判定する。
// 不正なIDは存在しないIDと同じくnil, nilで返す。
func isNotFound(err error) bool {
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "22P02"
}

// isUniqueViolation はPostgreSQLの一意制約違反(23505)かを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// compile-time interface check
var (
	_ BadgeRepository     = (*PostgresBadgeRepo)(nil)
	_ UserBadgeRepository = (*PostgresUserBadgeRepo)(nil)
)
