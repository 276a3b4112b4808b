// Package guard はページ入場時の認証・ロール判定（セッションガード）を提供する。
//
// 識別情報と管理者フラグはキャッシュせず、保護されたページに入るたびに
// ストアから引き直す。解決結果はSessionとして明示的に各ハンドラへ渡す。
package guard

import (
	"context"
	"log/slog"

	"github.com/hitoshi/semesterswap/internal/model"
)

// Page は保護されたページを表す。
type Page string

const (
	PageMarketplace Page = "marketplace"
	PageInventory   Page = "inventory"
	PageCheckout    Page = "checkout"
	PageListItem    Page = "list-item"
	PageAdmin       Page = "admin"
)

// ParsePage はパス要素をPageに変換する。未知のページはfalseを返す。
func ParsePage(s string) (Page, bool) {
	switch p := Page(s); p {
	case PageMarketplace, PageInventory, PageCheckout, PageListItem, PageAdmin:
		return p, true
	}
	return "", false
}

// Decision はページ入場の判定結果。
type Decision int

const (
	// Allow は入場を許可する。
	Allow Decision = iota
	// RedirectSignIn は未認証のためサインインページへ誘導する。データ取得は行わない。
	RedirectSignIn
	// RedirectAdmin は管理者が一般ユーザー向けページに来たため管理ページへ誘導する。
	RedirectAdmin
	// AccessDenied は一般ユーザーが管理ページに来たため拒否状態を表示する。
	AccessDenied
)

const (
	SignInPath = "/auth"
	AdminPath  = "/admin"
)

// String はJSONレスポンスに載せる判定名を返す。
func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RedirectSignIn:
		return "redirect_sign_in"
	case RedirectAdmin:
		return "redirect_admin"
	case AccessDenied:
		return "access_denied"
	}
	return "unknown"
}

// Location はリダイレクト先を返す。リダイレクトを伴わない判定では空文字。
func (d Decision) Location() string {
	switch d {
	case RedirectSignIn:
		return SignInPath
	case RedirectAdmin:
		return AdminPath
	}
	return ""
}

// Session はリクエストごとに解決された認証済みユーザーのコンテキスト。
type Session struct {
	ID       string
	UserID   string
	Email    string
	FullName string
	IsAdmin  bool
}

// Check はセッションとページから入場判定を行う。
func Check(s *Session, page Page) Decision {
	if s == nil {
		return RedirectSignIn
	}
	if page == PageAdmin {
		if !s.IsAdmin {
			return AccessDenied
		}
		return Allow
	}
	if s.IsAdmin {
		return RedirectAdmin
	}
	return Allow
}

// SessionFinder はセッションの検索に必要なインターフェース。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// ProfileFinder はプロフィールの検索に必要なインターフェース。
type ProfileFinder interface {
	FindByID(ctx context.Context, id string) (*model.Profile, error)
}

// Guard はセッションIDから現在のユーザーとロールを解決する。
type Guard struct {
	sessions SessionFinder
	profiles ProfileFinder
}

// New はGuardを生成する。
func New(sessions SessionFinder, profiles ProfileFinder) *Guard {
	return &Guard{sessions: sessions, profiles: profiles}
}

// Resolve はセッションIDから現在のユーザーを解決する。
// 取得に失敗した場合はリトライせず未認証（nil）として扱う。
func (g *Guard) Resolve(ctx context.Context, sessionID string) *Session {
	if sessionID == "" {
		return nil
	}

	sess, err := g.sessions.FindByID(ctx, sessionID)
	if err != nil {
		slog.Warn("session lookup failed, treating as unauthenticated",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if sess == nil {
		return nil
	}

	profile, err := g.profiles.FindByID(ctx, sess.UserID)
	if err != nil {
		slog.Warn("profile lookup failed, treating as unauthenticated",
			slog.String("user_id", sess.UserID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if profile == nil {
		return nil
	}

	return &Session{
		ID:       sess.ID,
		UserID:   profile.ID,
		Email:    profile.Email,
		FullName: profile.FullName,
		IsAdmin:  profile.IsAdmin,
	}
}

// Enter はページ入場時の解決と判定をまとめて行う。
func (g *Guard) Enter(ctx context.Context, sessionID string, page Page) (*Session, Decision) {
	s := g.Resolve(ctx, sessionID)
	return s, Check(s, page)
}

type contextKey struct{}

// WithSession はコンテキストにセッションを注入する。
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext はコンテキストからセッションを取得する。未認証の場合はnil。
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(contextKey{}).(*Session)
	return s
}
