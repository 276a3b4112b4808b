package model

import "time"

// DeletedItemLabel は通報対象の出品が存在しない場合に表示するタイトル。
const DeletedItemLabel = "Deleted Item"

// Report は出品に対する通報を表す。
// ステータスを持たず、存在すること自体が未対応であることを意味する。
type Report struct {
	ID         string
	ItemID     string
	ReporterID string
	Reason     string
	CreatedAt  time.Time

	// 以下はリレーション展開時のみ設定される。
	Item     *ReportedItem
	Reporter *Reporter
}

// ReportedItem は通報対象の出品の要約。
type ReportedItem struct {
	Title  string
	Images []string
}

// Reporter は通報者の要約。
type Reporter struct {
	FullName string
	Email    string
}

// ItemTitle は通報対象のタイトルを返す。出品が削除済みならDeletedItemLabelを返す。
func (r *Report) ItemTitle() string {
	if r.Item == nil {
		return DeletedItemLabel
	}
	return r.Item.Title
}
