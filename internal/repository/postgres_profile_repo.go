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

const profileColumns = `id, email, full_name, phone, department, is_admin, password_hash, created_at`

// profileRow はprofilesテーブルの1行。
type profileRow struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	FullName     string    `db:"full_name"`
	Phone        string    `db:"phone"`
	Department   string    `db:"department"`
	IsAdmin      bool      `db:"is_admin"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r profileRow) toModel() *model.Profile {
	return &model.Profile{
		ID:           r.ID,
		Email:        r.Email,
		FullName:     r.FullName,
		Phone:        r.Phone,
		Department:   r.Department,
		IsAdmin:      r.IsAdmin,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
	}
}

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sqlx.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sqlx.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	var row profileRow
	err := r.db.GetContext(ctx, &row, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by ID: %w", err)
	}
	return row.toModel(), nil
}

// FindByEmail はメールアドレスでプロフィールを検索する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByEmail(ctx context.Context, email string) (*model.Profile, error) {
	var row profileRow
	err := r.db.GetContext(ctx, &row, `SELECT `+profileColumns+` FROM profiles WHERE lower(email) = lower($1)`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by email: %w", err)
	}
	return row.toModel(), nil
}

// Create はパスワードログイン用のプロフィールを作成する。
func (r *PostgresProfileRepo) Create(ctx context.Context, p *model.Profile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (id, email, full_name, phone, department, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Email, p.FullName, p.Phone, p.Department, p.PasswordHash, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}
	return nil
}

// CreateWithIdentity はプロフィールとidentityを同一トランザクションで作成する。
func (r *PostgresProfileRepo) CreateWithIdentity(ctx context.Context, p *model.Profile, identity *model.Identity) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO profiles (id, email, full_name, phone, department, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Email, p.FullName, p.Phone, p.Department, p.PasswordHash, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO identities (id, user_id, provider, provider_user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		identity.ID, identity.UserID, identity.Provider, identity.ProviderUserID, identity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert identity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpdateContact は氏名と電話番号を更新する。
func (r *PostgresProfileRepo) UpdateContact(ctx context.Context, id, fullName, phone string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET full_name = $1, phone = $2 WHERE id = $3`,
		fullName, phone, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile contact: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("profile not found: %s", id)
	}
	return nil
}

// List は全プロフィールを作成日時の降順で返す。
func (r *PostgresProfileRepo) List(ctx context.Context) ([]*model.Profile, error) {
	var rows []profileRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at DESC`); err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	profiles := make([]*model.Profile, 0, len(rows))
	for _, row := range rows {
		profiles = append(profiles, row.toModel())
	}
	return profiles, nil
}

// Count はプロフィール数を返す。
func (r *PostgresProfileRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT count(*) FROM profiles`); err != nil {
		return 0, fmt.Errorf("failed to count profiles: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
