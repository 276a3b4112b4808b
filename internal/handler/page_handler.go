package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/hitoshi/semesterswap/internal/guard"
	"github.com/hitoshi/semesterswap/internal/middleware"
	"github.com/hitoshi/semesterswap/internal/model"
	"github.com/hitoshi/semesterswap/internal/synchronizer"
	"github.com/hitoshi/semesterswap/internal/view"
)

// ViewBuilder はページのビューモデルを組み立てるインターフェース。
type ViewBuilder interface {
	Build(page guard.Page, s *guard.Session) (*view.View, error)
}

// ProfileFinder はプロフィールの参照に必要なインターフェース。
type ProfileFinder interface {
	FindByID(ctx context.Context, id string) (*model.Profile, error)
}

// PageHandlerConfig はページハンドラーの設定。
type PageHandlerConfig struct {
	// AllowedOrigin はWebSocket接続を許可するOrigin。空の場合はOriginを検査しない。
	AllowedOrigin string
}

// PageHandler はページのスナップショットとライブ更新を提供する。
type PageHandler struct {
	builder  ViewBuilder
	profiles ProfileFinder
	upgrader websocket.Upgrader
}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler(builder ViewBuilder, profiles ProfileFinder, config PageHandlerConfig) *PageHandler {
	return &PageHandler{
		builder:  builder,
		profiles: profiles,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return config.AllowedOrigin == "" || origin == "" || origin == config.AllowedOrigin
			},
		},
	}
}

// decisionResponse はガードが入場を許可しなかった場合のレスポンスボディ。
type decisionResponse struct {
	Decision string `json:"decision"`
	Location string `json:"location,omitempty"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
	Category string `json:"category,omitempty"`
	Action   string `json:"action,omitempty"`
}

type pageContextKey struct{}

// pageFromContext はガードを通過したページを返す。
func pageFromContext(ctx context.Context) guard.Page {
	p, _ := ctx.Value(pageContextKey{}).(guard.Page)
	return p
}

// PageGuard はURLの{page}に対してセッションガードの判定を適用するミドルウェア。
// 未認証は401、一般ページに来た管理者は303、管理ページに来た一般ユーザーは403を返し、
// いずれの場合もデータ取得は行わない。
func PageGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "page")
		page, ok := guard.ParsePage(raw)
		if !ok {
			writeJSON(w, http.StatusNotFound, decisionResponse{
				Decision: "not_found",
				Code:     "PAGE_NOT_FOUND",
				Message:  "ページが見つかりません: " + raw,
				Category: "validation",
				Action:   "URLを確認してください。",
			})
			return
		}

		d := guard.Check(guard.FromContext(r.Context()), page)
		switch d {
		case guard.Allow:
			ctx := context.WithValue(r.Context(), pageContextKey{}, page)
			next.ServeHTTP(w, r.WithContext(ctx))
		case guard.RedirectSignIn:
			writeJSON(w, http.StatusUnauthorized, decisionResponse{Decision: d.String(), Location: d.Location()})
		case guard.RedirectAdmin:
			w.Header().Set("Location", d.Location())
			writeJSON(w, http.StatusSeeOther, decisionResponse{Decision: d.String(), Location: d.Location()})
		default:
			apiErr := model.NewAccessDeniedError()
			writeJSON(w, http.StatusForbidden, decisionResponse{
				Decision: d.String(),
				Code:     apiErr.Code,
				Message:  apiErr.Message,
				Category: apiErr.Category,
				Action:   apiErr.Action,
			})
		}
	})
}

// GetPage はページの現在のスナップショットを返す。
// GET /api/pages/{page}?category=xxx&q=yyy
func (h *PageHandler) GetPage(w http.ResponseWriter, r *http.Request) {
	v, ok := h.buildView(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	category := query.Get("category")
	if !model.IsValidCategoryFilter(category) {
		handleServiceError(w, model.NewInvalidCategoryError(category))
		return
	}

	var (
		snap synchronizer.Snapshot
		err  error
	)
	if category != "" {
		snap, err = v.Sync.SetCategory(r.Context(), category)
	} else {
		snap, err = v.Sync.Load(r.Context())
	}
	if err != nil {
		// 失敗したクエリは空のまま返す。次の変更通知で再取得される。
		slog.Warn("page load incomplete",
			slog.String("page", string(v.Page)),
			slog.String("error", err.Error()),
		)
	}

	if q := query.Get("q"); q != "" {
		snap = v.Sync.SetSearch(q)
	}

	writeJSON(w, http.StatusOK, v.Present(snap))
}

// Live はWebSocketでページのスナップショットを再同期のたびに送信する。
// GET /api/live/{page}
func (h *PageHandler) Live(w http.ResponseWriter, r *http.Request) {
	v, ok := h.buildView(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgradeがエラーレスポンスを書き込み済み
		slog.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	userID, _ := middleware.UserIDFromContext(r.Context())
	newLiveClient(conn, v, userID).run(r.Context())
}

// GetProfile は出品フォームの初期値として現在のユーザーのプロフィールを返す。
// GET /api/profile
func (h *PageHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUserID(w, r)
	if !ok {
		return
	}

	profile, err := h.profiles.FindByID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if profile == nil {
		handleServiceError(w, model.NewUserNotFoundError())
		return
	}

	writeJSON(w, http.StatusOK, view.NewProfileResponse(profile))
}

func (h *PageHandler) buildView(w http.ResponseWriter, r *http.Request) (*view.View, bool) {
	v, err := h.builder.Build(pageFromContext(r.Context()), guard.FromContext(r.Context()))
	if err != nil {
		handleServiceError(w, err)
		return nil, false
	}
	return v, true
}
