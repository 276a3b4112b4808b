package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/semesterswap/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// savedItemRow は保存と出品・出品者をLEFT JOINした1行。
// 出品が存在しない場合、出品側の列はすべてNULLになる。
type savedItemRow struct {
	UserID    string    `db:"user_id"`
	ItemID    string    `db:"item_id"`
	CreatedAt time.Time `db:"created_at"`

	FoundItemID      *string        `db:"found_item_id"`
	SellerID         *string        `db:"seller_id"`
	Title            *string        `db:"title"`
	Description      *string        `db:"description"`
	Price            *float64       `db:"price"`
	Category         *string        `db:"category"`
	Condition        *string        `db:"condition"`
	Images           pq.StringArray `db:"images"`
	IsSold           *bool          `db:"is_sold"`
	SoldAt           *time.Time     `db:"sold_at"`
	ItemCreatedAt    *time.Time     `db:"item_created_at"`
	SellerName       *string        `db:"seller_name"`
	SellerDepartment *string        `db:"seller_department"`
	SellerEmail      *string        `db:"seller_email"`
	SellerPhone      *string        `db:"seller_phone"`
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func (r savedItemRow) toModel() *model.SavedItem {
	saved := &model.SavedItem{
		UserID:    r.UserID,
		ItemID:    r.ItemID,
		CreatedAt: r.CreatedAt,
	}
	if r.FoundItemID == nil {
		return saved
	}
	saved.Item = &model.Item{
		ID:          *r.FoundItemID,
		SellerID:    deref(r.SellerID),
		Title:       deref(r.Title),
		Description: deref(r.Description),
		Price:       deref(r.Price),
		Category:    deref(r.Category),
		Condition:   deref(r.Condition),
		Images:      []string(r.Images),
		IsSold:      deref(r.IsSold),
		SoldAt:      r.SoldAt,
		CreatedAt:   deref(r.ItemCreatedAt),
		Seller: &model.SellerContact{
			FullName:   deref(r.SellerName),
			Department: deref(r.SellerDepartment),
			Email:      deref(r.SellerEmail),
			Phone:      deref(r.SellerPhone),
		},
	}
	return saved
}

// PostgresSavedItemRepo はPostgreSQLを使用した保存リポジトリ。
type PostgresSavedItemRepo struct {
	db *sqlx.DB
}

// NewPostgresSavedItemRepo はPostgresSavedItemRepoを生成する。
func NewPostgresSavedItemRepo(db *sqlx.DB) *PostgresSavedItemRepo {
	return &PostgresSavedItemRepo{db: db}
}

// Save は保存を追加する。既に保存済みの場合は何もしない。
func (r *PostgresSavedItemRepo) Save(ctx context.Context, userID, itemID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO saved_items (user_id, item_id, created_at) VALUES ($1, $2, now())
		 ON CONFLICT (user_id, item_id) DO NOTHING`,
		userID, itemID,
	)
	if err != nil {
		return fmt.Errorf("failed to save item: %w", err)
	}
	return nil
}

// Unsave は保存を削除する。
func (r *PostgresSavedItemRepo) Unsave(ctx context.Context, userID, itemID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM saved_items WHERE user_id = $1 AND item_id = $2`,
		userID, itemID,
	)
	if err != nil {
		return fmt.Errorf("failed to unsave item: %w", err)
	}
	return nil
}

// ListWithItems はユーザーの保存を出品と出品者情報付きで保存日時の降順に返す。
func (r *PostgresSavedItemRepo) ListWithItems(ctx context.Context, userID string) ([]*model.SavedItem, error) {
	var rows []savedItemRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT s.user_id, s.item_id, s.created_at,
		        i.id AS found_item_id, i.seller_id, i.title, i.description, i.price,
		        i.category, i.condition, i.images, i.is_sold, i.sold_at,
		        i.created_at AS item_created_at,
		        p.full_name AS seller_name, p.department AS seller_department,
		        p.email AS seller_email, p.phone AS seller_phone
		 FROM saved_items s
		 LEFT JOIN items i ON i.id = s.item_id
		 LEFT JOIN profiles p ON p.id = i.seller_id
		 WHERE s.user_id = $1
		 ORDER BY s.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved items: %w", err)
	}

	saved := make([]*model.SavedItem, 0, len(rows))
	for _, row := range rows {
		saved = append(saved, row.toModel())
	}
	return saved, nil
}

// compile-time interface check
var _ SavedItemRepository = (*PostgresSavedItemRepo)(nil)
