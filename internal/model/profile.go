// Package model はドメインモデルを定義する。
package model

import "time"

// Profile は認証済みユーザーのプロフィールを表す。
// 1つのidentityにつき1つのプロフィールが存在する。IsAdminはアプリ外で設定される。
type Profile struct {
	ID           string
	FullName     string
	Email        string
	Phone        string
	Department   string
	IsAdmin      bool
	PasswordHash string // パスワードログイン未設定の場合は空
	CreatedAt    time.Time
}

// HasContact は出品に必要な氏名と電話番号が揃っているかを返す。
func (p *Profile) HasContact() bool {
	return p.FullName != "" && p.Phone != ""
}

// Identity は外部IdPとの紐付け情報を表す。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
