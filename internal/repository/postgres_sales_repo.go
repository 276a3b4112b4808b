package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/semesterswap/internal/model"
	"github.com/jmoiron/sqlx"
)

const salesSelect = `SELECT id, item_id, title, category, price, seller_id, seller_name, seller_email,
       buyer_id, buyer_name, buyer_email, sold_at
FROM sales_history`

type salesRow struct {
	ID          string    `db:"id"`
	ItemID      *string   `db:"item_id"`
	Title       string    `db:"title"`
	Category    string    `db:"category"`
	Price       float64   `db:"price"`
	SellerID    string    `db:"seller_id"`
	SellerName  string    `db:"seller_name"`
	SellerEmail string    `db:"seller_email"`
	BuyerID     *string   `db:"buyer_id"`
	BuyerName   *string   `db:"buyer_name"`
	BuyerEmail  *string   `db:"buyer_email"`
	SoldAt      time.Time `db:"sold_at"`
}

func (r salesRow) toModel() *model.SalesRecord {
	return &model.SalesRecord{
		ID:          r.ID,
		ItemID:      r.ItemID,
		Title:       r.Title,
		Category:    r.Category,
		Price:       r.Price,
		SellerID:    r.SellerID,
		SellerName:  r.SellerName,
		SellerEmail: r.SellerEmail,
		BuyerID:     r.BuyerID,
		BuyerName:   r.BuyerName,
		BuyerEmail:  r.BuyerEmail,
		SoldAt:      r.SoldAt,
	}
}

// PostgresSalesRepo はPostgreSQLを使用した販売履歴リポジトリ。
// 履歴は追記専用で、このリポジトリは参照のみを提供する。
type PostgresSalesRepo struct {
	db *sqlx.DB
}

// NewPostgresSalesRepo はPostgresSalesRepoを生成する。
func NewPostgresSalesRepo(db *sqlx.DB) *PostgresSalesRepo {
	return &PostgresSalesRepo{db: db}
}

func (r *PostgresSalesRepo) list(ctx context.Context, where string, args ...any) ([]*model.SalesRecord, error) {
	var rows []salesRow
	if err := r.db.SelectContext(ctx, &rows, salesSelect+where+` ORDER BY sold_at DESC`, args...); err != nil {
		return nil, fmt.Errorf("failed to list sales history: %w", err)
	}
	records := make([]*model.SalesRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toModel())
	}
	return records, nil
}

// ListBySeller は出品者の販売履歴を売却日時の降順で返す。
func (r *PostgresSalesRepo) ListBySeller(ctx context.Context, sellerID string) ([]*model.SalesRecord, error) {
	return r.list(ctx, ` WHERE seller_id = $1`, sellerID)
}

// ListByBuyer は買い手の購入履歴を売却日時の降順で返す。
func (r *PostgresSalesRepo) ListByBuyer(ctx context.Context, buyerID string) ([]*model.SalesRecord, error) {
	return r.list(ctx, ` WHERE buyer_id = $1`, buyerID)
}

// ListAll は全販売履歴を売却日時の降順で返す。
func (r *PostgresSalesRepo) ListAll(ctx context.Context) ([]*model.SalesRecord, error) {
	return r.list(ctx, "")
}

// Count は販売履歴の件数を返す。
func (r *PostgresSalesRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT count(*) FROM sales_history`); err != nil {
		return 0, fmt.Errorf("failed to count sales history: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ SalesRepository = (*PostgresSalesRepo)(nil)
