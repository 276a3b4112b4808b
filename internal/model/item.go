package model

import (
	"strings"
	"time"
)

// MaxItemImages は1出品あたりの画像の上限枚数。
const MaxItemImages = 5

// PlaceholderImageURL は画像を持たない出品に表示する代替画像。
const PlaceholderImageURL = "https://images.unsplash.com/photo-1544644181-1484b3fdfc62?q=80&w=200&auto=format&fit=crop"

// CategoryAll はカテゴリ絞り込みを行わないことを表すフィルタ値。
const CategoryAll = "All"

// Categories は出品フォームで選択可能なカテゴリ。
var Categories = []string{"Textbooks", "Tools", "Stationery", "Electronics", "Lab Gear", "Others"}

// Conditions は出品フォームで選択可能な状態。
var Conditions = []string{"New", "Like New", "Used", "Well Worn"}

// Item は出品（リスティング）を表す。
// IsSoldがtrueになった出品はアクティブな一覧に現れない。
type Item struct {
	ID          string
	SellerID    string
	Title       string
	Description string
	Price       float64
	Category    string
	Condition   string
	Images      []string
	IsSold      bool
	SoldAt      *time.Time
	CreatedAt   time.Time

	// Seller はリレーション展開時のみ設定される。
	Seller *SellerContact
}

// SellerContact は出品者の連絡先。checkout画面で買い手に提示する。
type SellerContact struct {
	FullName   string
	Department string
	Email      string
	Phone      string
}

// CoverImage は一覧表示用の先頭画像URLを返す。
// 画像リストがnilまたは空の場合はPlaceholderImageURLを返す。
func (i *Item) CoverImage() string {
	if len(i.Images) == 0 || i.Images[0] == "" {
		return PlaceholderImageURL
	}
	return i.Images[0]
}

// MatchesSearch はタイトルまたは説明文にqが含まれるかを大文字小文字を区別せずに判定する。
// 空のqは常にtrue。
func (i *Item) MatchesSearch(q string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(i.Title), q) ||
		strings.Contains(strings.ToLower(i.Description), q)
}

// IsValidCategory は出品カテゴリとして有効かを返す。
func IsValidCategory(c string) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// IsValidCategoryFilter はカテゴリ絞り込み値として有効かを大文字小文字を区別せずに返す。
func IsValidCategoryFilter(c string) bool {
	if c == "" || strings.EqualFold(c, CategoryAll) {
		return true
	}
	for _, v := range Categories {
		if strings.EqualFold(v, c) {
			return true
		}
	}
	return false
}

// IsValidCondition は状態として有効かを返す。
func IsValidCondition(c string) bool {
	for _, v := range Conditions {
		if v == c {
			return true
		}
	}
	return false
}
