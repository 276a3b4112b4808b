// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/semesterswap/internal/guard"
	"github.com/hitoshi/semesterswap/internal/model"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// SessionResolver はセッションIDから現在のユーザーを解決するインターフェース。
// guard.Guardが実装する。
type SessionResolver interface {
	Resolve(ctx context.Context, sessionID string) *guard.Session
}

// NewSessionMiddleware はHTTP Only Cookieからセッションを読み取り、
// 解決できた場合はguard.Sessionとユーザーをリクエストコンテキストに注入するミドルウェアを返す。
// 未認証でもリクエストは拒否しない。拒否はRequireAuth/RequireAdminとページガードが行う。
func NewSessionMiddleware(resolver SessionResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			s := resolver.Resolve(r.Context(), cookie.Value)
			if s == nil {
				next.ServeHTTP(w, r)
				return
			}

			annotateRequestLog(r.Context(), s)
			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), s)))
		})
	}
}

// NewRequireAuthMiddleware は認証済みセッションがないリクエストに401を返すミドルウェアを返す。
func NewRequireAuthMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if guard.FromContext(r.Context()) == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewRequireAdminMiddleware は管理者以外のリクエストを拒否するミドルウェアを返す。
// 未認証は401、一般ユーザーは403 ACCESS_DENIED。
func NewRequireAdminMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := guard.FromContext(r.Context())
			if s == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if !s.IsAdmin {
				WriteErrorResponse(w, http.StatusForbidden, model.NewAccessDeniedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアで解決済みのリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// ContextWithSession はコンテキストにセッションとユーザーIDを注入する。
func ContextWithSession(ctx context.Context, s *guard.Session) context.Context {
	ctx = guard.WithSession(ctx, s)
	return context.WithValue(ctx, userIDContextKey, s.UserID)
}
