package model

import "time"

// SavedItem はユーザーのcheckoutリストへの保存を表す。
// (UserID, ItemID) が自然キー。
type SavedItem struct {
	UserID    string
	ItemID    string
	CreatedAt time.Time

	// Item はリレーション展開時のみ設定される。出品が削除済みの場合はnil。
	Item *Item
}

// IsActiveSave は保存エントリが有効かを判定する。
// 参照先の出品が存在し、かつ売却済みでない場合のみ有効。
// 売却済みの保存は削除せず、読み出し時にこの判定で除外する。
func IsActiveSave(item *Item) bool {
	return item != nil && !item.IsSold
}
