package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/semesterswap/internal/model"
	"github.com/jmoiron/sqlx"
)

type sessionRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
// 期限切れ行の削除はworker/cleanupが行う。
type PostgresSessionRepo struct {
	db *sqlx.DB
}

func NewPostgresSessionRepo(db *sqlx.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO sessions (id, user_id, expires_at, created_at)
		 VALUES (:id, :user_id, :expires_at, :created_at)`,
		sessionRow{
			ID:        session.ID,
			UserID:    session.UserID,
			ExpiresAt: session.ExpiresAt,
			CreatedAt: session.CreatedAt,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は有効期限内のセッションを返す。存在しないか期限切れの場合はnil。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var row sessionRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, user_id, expires_at, created_at FROM sessions WHERE id = $1 AND expires_at > now()`,
		id,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return &model.Session{
		ID:        row.ID,
		UserID:    row.UserID,
		ExpiresAt: row.ExpiresAt,
		CreatedAt: row.CreatedAt,
	}, nil
}

func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	return r.deleteWhere(ctx, "id", id)
}

// DeleteByUserID はユーザーの全端末のセッションを削除する。
func (r *PostgresSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	return r.deleteWhere(ctx, "user_id", userID)
}

// deleteWhere のcolumnは固定値のみを渡すこと。
func (r *PostgresSessionRepo) deleteWhere(ctx context.Context, column, value string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE `+column+` = $1`, value); err != nil {
		return fmt.Errorf("failed to delete sessions by %s: %w", column, err)
	}
	return nil
}

var _ SessionRepository = (*PostgresSessionRepo)(nil)
