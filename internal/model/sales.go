package model

import "time"

// SalesRecord は販売履歴（売上台帳）の1行を表す。
// 出品が売却済みに遷移したときに1回だけ作成され、以後変更・削除されない。
// Itemへの参照ではなくスナップショットであり、出品削除後も残る。
type SalesRecord struct {
	ID          string
	ItemID      *string // 参考情報。出品削除後はnil
	Title       string
	Category    string
	Price       float64
	SellerID    string
	SellerName  string
	SellerEmail string
	BuyerID     *string
	BuyerName   *string
	BuyerEmail  *string
	SoldAt      time.Time
}

// AdminStats は管理画面の集計値。
type AdminStats struct {
	Total  int // Active + Sold
	Sold   int
	Active int
	Users  int
}
