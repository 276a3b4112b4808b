package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/semesterswap/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// itemSelect は出品者情報を展開した出品のSELECT句。
const itemSelect = `SELECT i.id, i.seller_id, i.title, i.description, i.price, i.category, i.condition,
       i.images, i.is_sold, i.sold_at, i.created_at,
       p.full_name AS seller_name, p.department AS seller_department,
       p.email AS seller_email, p.phone AS seller_phone
FROM items i
JOIN profiles p ON p.id = i.seller_id`

// itemRow は出品者情報付きのitemsテーブルの1行。
type itemRow struct {
	ID               string         `db:"id"`
	SellerID         string         `db:"seller_id"`
	Title            string         `db:"title"`
	Description      string         `db:"description"`
	Price            float64        `db:"price"`
	Category         string         `db:"category"`
	Condition        string         `db:"condition"`
	Images           pq.StringArray `db:"images"`
	IsSold           bool           `db:"is_sold"`
	SoldAt           *time.Time     `db:"sold_at"`
	CreatedAt        time.Time      `db:"created_at"`
	SellerName       string         `db:"seller_name"`
	SellerDepartment string         `db:"seller_department"`
	SellerEmail      string         `db:"seller_email"`
	SellerPhone      string         `db:"seller_phone"`
}

func (r itemRow) toModel() *model.Item {
	return &model.Item{
		ID:          r.ID,
		SellerID:    r.SellerID,
		Title:       r.Title,
		Description: r.Description,
		Price:       r.Price,
		Category:    r.Category,
		Condition:   r.Condition,
		Images:      []string(r.Images),
		IsSold:      r.IsSold,
		SoldAt:      r.SoldAt,
		CreatedAt:   r.CreatedAt,
		Seller: &model.SellerContact{
			FullName:   r.SellerName,
			Department: r.SellerDepartment,
			Email:      r.SellerEmail,
			Phone:      r.SellerPhone,
		},
	}
}

func itemRowsToModels(rows []itemRow) []*model.Item {
	items := make([]*model.Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toModel())
	}
	return items
}

// PostgresItemRepo はPostgreSQLを使用した出品リポジトリ。
type PostgresItemRepo struct {
	db *sqlx.DB
}

// NewPostgresItemRepo はPostgresItemRepoを生成する。
func NewPostgresItemRepo(db *sqlx.DB) *PostgresItemRepo {
	return &PostgresItemRepo{db: db}
}

// FindByID は指定IDの出品を取得する。見つからない場合はnilを返す。
func (r *PostgresItemRepo) FindByID(ctx context.Context, id string) (*model.Item, error) {
	var row itemRow
	err := r.db.GetContext(ctx, &row, itemSelect+` WHERE i.id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find item by ID: %w", err)
	}
	return row.toModel(), nil
}

// Create は出品を作成する。画像URLはtext[]として保存される。
func (r *PostgresItemRepo) Create(ctx context.Context, item *model.Item) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO items (id, seller_id, title, description, price, category, condition, images, is_sold, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, $9)`,
		item.ID, item.SellerID, item.Title, item.Description, item.Price,
		item.Category, item.Condition, pq.Array(item.Images), item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}
	return nil
}

// ListActive は未売却の出品を作成日時の降順で出品者情報付きで返す。
func (r *PostgresItemRepo) ListActive(ctx context.Context, excludeSellerID, category string) ([]*model.Item, error) {
	conds := []string{"i.is_sold = false"}
	var args []any

	if excludeSellerID != "" {
		args = append(args, excludeSellerID)
		conds = append(conds, "i.seller_id <> $"+strconv.Itoa(len(args)))
	}
	if category != "" && !strings.EqualFold(category, model.CategoryAll) {
		args = append(args, category)
		conds = append(conds, "lower(i.category) = lower($"+strconv.Itoa(len(args))+")")
	}

	query := itemSelect + ` WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY i.created_at DESC`

	var rows []itemRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list active items: %w", err)
	}
	return itemRowsToModels(rows), nil
}

// ListActiveBySeller は指定出品者の未売却の出品を作成日時の降順で返す。
func (r *PostgresItemRepo) ListActiveBySeller(ctx context.Context, sellerID string) ([]*model.Item, error) {
	var rows []itemRow
	err := r.db.SelectContext(ctx, &rows,
		itemSelect+` WHERE i.seller_id = $1 AND i.is_sold = false ORDER BY i.created_at DESC`,
		sellerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list seller items: %w", err)
	}
	return itemRowsToModels(rows), nil
}

// CountActive は未売却の出品数を返す。
func (r *PostgresItemRepo) CountActive(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT count(*) FROM items WHERE is_sold = false`); err != nil {
		return 0, fmt.Errorf("failed to count active items: %w", err)
	}
	return n, nil
}

// MarkSold は出品を売却済みにし、同一トランザクションで販売履歴を1件追加する。
// is_sold = false を更新条件に含めるため、同じ出品に対する2回目の呼び出しは履歴を作らない。
func (r *PostgresItemRepo) MarkSold(ctx context.Context, itemID, sellerID, buyerID string) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE items SET is_sold = true, sold_at = $3
		 WHERE id = $1 AND seller_id = $2 AND is_sold = false`,
		itemID, sellerID, time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark item sold: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	var buyer sql.NullString
	if buyerID != "" {
		buyer = sql.NullString{String: buyerID, Valid: true}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sales_history
		   (id, item_id, title, category, price, seller_id, seller_name, seller_email,
		    buyer_id, buyer_name, buyer_email, sold_at)
		 SELECT $1, i.id, i.title, i.category, i.price, i.seller_id, s.full_name, s.email,
		        b.id, b.full_name, b.email, i.sold_at
		 FROM items i
		 JOIN profiles s ON s.id = i.seller_id
		 LEFT JOIN profiles b ON b.id = $3
		 WHERE i.id = $2`,
		uuid.New().String(), itemID, buyer,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert sales history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// Delete は出品とその通報を同一トランザクションで削除する。
// 出品が削除されなかった場合はロールバックし、通報も残す。
func (r *PostgresItemRepo) Delete(ctx context.Context, itemID, sellerID string) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reports WHERE item_id = $1`, itemID); err != nil {
		return 0, fmt.Errorf("failed to delete item reports: %w", err)
	}

	query := `DELETE FROM items WHERE id = $1`
	args := []any{itemID}
	if sellerID != "" {
		query += ` AND seller_id = $2`
		args = append(args, sellerID)
	}

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete item: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return 0, nil
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ ItemRepository = (*PostgresItemRepo)(nil)
