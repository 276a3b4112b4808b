// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/semesterswap/internal/model"
)

// ProfileRepository はプロフィールデータの永続化インターフェース。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// FindByEmail はメールアドレスでプロフィールを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Profile, error)

	// Create はパスワードログイン用のプロフィールを作成する。
	Create(ctx context.Context, profile *model.Profile) error

	// CreateWithIdentity はプロフィールとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, profile *model.Profile, identity *model.Identity) error

	// UpdateContact は氏名と電話番号を更新する。
	UpdateContact(ctx context.Context, id, fullName, phone string) error

	// List は全プロフィールを作成日時の降順で返す。
	List(ctx context.Context) ([]*model.Profile, error)

	// Count はプロフィール数を返す。
	Count(ctx context.Context) (int, error)
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// ItemRepository は出品データの永続化インターフェース。
type ItemRepository interface {
	// FindByID は指定IDの出品を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Item, error)

	// Create は出品を作成する。
	Create(ctx context.Context, item *model.Item) error

	// ListActive は未売却の出品を作成日時の降順で出品者情報付きで返す。
	// excludeSellerIDが空でない場合はその出品者の出品を除外する。
	// categoryは大文字小文字を区別しない一致で絞り込み、空または"All"は全件。
	ListActive(ctx context.Context, excludeSellerID, category string) ([]*model.Item, error)

	// ListActiveBySeller は指定出品者の未売却の出品を作成日時の降順で返す。
	ListActiveBySeller(ctx context.Context, sellerID string) ([]*model.Item, error)

	// CountActive は未売却の出品数を返す。
	CountActive(ctx context.Context) (int, error)

	// MarkSold は出品を売却済みにし、同一トランザクションで販売履歴を1件追加する。
	// 出品者本人の未売却の出品でない場合は何もせずfalseを返す。
	// buyerIDが空でない場合は買い手情報を履歴に含める。
	MarkSold(ctx context.Context, itemID, sellerID, buyerID string) (bool, error)

	// Delete は出品とその通報を同一トランザクションで削除し、削除された出品の行数を返す。
	// sellerIDが空でない場合はその出品者の出品のみを対象とする。
	Delete(ctx context.Context, itemID, sellerID string) (int64, error)
}

// SavedItemRepository は保存（checkoutリスト）の永続化インターフェース。
type SavedItemRepository interface {
	// Save は保存を追加する。既に保存済みの場合は何もしない。
	Save(ctx context.Context, userID, itemID string) error

	// Unsave は保存を削除する。
	Unsave(ctx context.Context, userID, itemID string) error

	// ListWithItems はユーザーの保存を出品と出品者情報付きで返す。
	// 出品が削除済みの場合SavedItem.Itemはnil。売却済みの判定は呼び出し側で行う。
	ListWithItems(ctx context.Context, userID string) ([]*model.SavedItem, error)
}

// ReportRepository は通報の永続化インターフェース。
type ReportRepository interface {
	// Create は通報を作成する。
	Create(ctx context.Context, report *model.Report) error

	// Delete は通報を削除し、削除された行数を返す。
	Delete(ctx context.Context, id string) (int64, error)

	// ListWithDetails は全通報を出品と通報者情報付きで作成日時の降順に返す。
	// 出品が削除済みの場合Report.Itemはnil。
	ListWithDetails(ctx context.Context) ([]*model.Report, error)
}

// SalesRepository は販売履歴の参照インターフェース。
// 販売履歴の追加はItemRepository.MarkSoldでのみ行われる。
type SalesRepository interface {
	// ListBySeller は出品者の販売履歴を売却日時の降順で返す。
	ListBySeller(ctx context.Context, sellerID string) ([]*model.SalesRecord, error)

	// ListByBuyer は買い手の購入履歴を売却日時の降順で返す。
	ListByBuyer(ctx context.Context, buyerID string) ([]*model.SalesRecord, error)

	// ListAll は全販売履歴を売却日時の降順で返す。
	ListAll(ctx context.Context) ([]*model.SalesRecord, error)

	// Count は販売履歴の件数を返す。
	Count(ctx context.Context) (int, error)
}
