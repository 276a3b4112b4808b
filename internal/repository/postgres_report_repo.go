package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/semesterswap/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// reportRow は通報と出品・通報者をLEFT JOINした1行。
type reportRow struct {
	ID            string         `db:"id"`
	ItemID        *string        `db:"item_id"`
	ReporterID    string         `db:"reporter_id"`
	Reason        string         `db:"reason"`
	CreatedAt     time.Time      `db:"created_at"`
	ItemTitle     *string        `db:"item_title"`
	ItemImages    pq.StringArray `db:"item_images"`
	ReporterName  *string        `db:"reporter_name"`
	ReporterEmail *string        `db:"reporter_email"`
}

func (r reportRow) toModel() *model.Report {
	report := &model.Report{
		ID:         r.ID,
		ItemID:     deref(r.ItemID),
		ReporterID: r.ReporterID,
		Reason:     r.Reason,
		CreatedAt:  r.CreatedAt,
	}
	if r.ItemTitle != nil {
		report.Item = &model.ReportedItem{Title: *r.ItemTitle, Images: []string(r.ItemImages)}
	}
	if r.ReporterName != nil || r.ReporterEmail != nil {
		report.Reporter = &model.Reporter{FullName: deref(r.ReporterName), Email: deref(r.ReporterEmail)}
	}
	return report
}

// PostgresReportRepo はPostgreSQLを使用した通報リポジトリ。
type PostgresReportRepo struct {
	db *sqlx.DB
}

// NewPostgresReportRepo はPostgresReportRepoを生成する。
func NewPostgresReportRepo(db *sqlx.DB) *PostgresReportRepo {
	return &PostgresReportRepo{db: db}
}

// Create は通報を作成する。
func (r *PostgresReportRepo) Create(ctx context.Context, report *model.Report) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reports (id, item_id, reporter_id, reason, created_at) VALUES ($1, $2, $3, $4, $5)`,
		report.ID, report.ItemID, report.ReporterID, report.Reason, report.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

// Delete は通報を削除し、削除された行数を返す。対象の出品には触れない。
func (r *PostgresReportRepo) Delete(ctx context.Context, id string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM reports WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete report: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// ListWithDetails は全通報を出品と通報者情報付きで作成日時の降順に返す。
func (r *PostgresReportRepo) ListWithDetails(ctx context.Context) ([]*model.Report, error) {
	var rows []reportRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT r.id, r.item_id, r.reporter_id, r.reason, r.created_at,
		        i.title AS item_title, i.images AS item_images,
		        p.full_name AS reporter_name, p.email AS reporter_email
		 FROM reports r
		 LEFT JOIN items i ON i.id = r.item_id
		 LEFT JOIN profiles p ON p.id = r.reporter_id
		 ORDER BY r.created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	reports := make([]*model.Report, 0, len(rows))
	for _, row := range rows {
		reports = append(reports, row.toModel())
	}
	return reports, nil
}

// compile-time interface check
var _ ReportRepository = (*PostgresReportRepo)(nil)
