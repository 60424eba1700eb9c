package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// NewStores は1つの接続またはトランザクションにリポジトリ群を束ねる。
func NewStores(db DBTX) Stores {
	return Stores{
		Users:      NewPostgresUserRepo(db),
		Tasks:      NewPostgresTaskRepo(db),
		Projects:   NewPostgresProjectRepo(db),
		Badges:     NewPostgresBadgeRepo(db),
		UserBadges: NewPostgresUserBadgeRepo(db),
	}
}

// PostgresTransactor は *sql.DB 上でトランザクションを提供する。
type PostgresTransactor struct {
	db *sql.DB
}

// NewPostgresTransactor はPostgresTransactorを生成する。
func NewPostgresTransactor(db *sql.DB) *PostgresTransactor {
	return &PostgresTransactor{db: db}
}

// WithinTx はトランザクションを開始してfnを実行する。
// fnがエラーを返すかpanicした場合はロールバックする。
func (t *PostgresTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) (err error) {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, NewStores(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// compile-time interface check
var _ Transactor = (*PostgresTransactor)(nil)

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// nullJSON は空のJSONをNULLとして書き込む。
func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
