package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/hitoshi/semesterswap/internal/guard"
	"github.com/hitoshi/semesterswap/internal/middleware"
	"github.com/hitoshi/semesterswap/internal/model"
	"github.com/hitoshi/semesterswap/internal/repository"
	"github.com/hitoshi/semesterswap/internal/view"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeItemRepo struct {
	repository.ItemRepository

	mu       sync.Mutex
	items    []*model.Item
	err      error
	excluded []string
	category []string
}

func (f *fakeItemRepo) ListActive(_ context.Context, excludeSellerID, category string) ([]*model.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.excluded = append(f.excluded, excludeSellerID)
	f.category = append(f.category, category)
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

type fakeSavedRepo struct {
	repository.SavedItemRepository
	saved []*model.SavedItem
}

func (f *fakeSavedRepo) ListWithItems(context.Context, string) ([]*model.SavedItem, error) {
	return f.saved, nil
}

type fakeProfileFinder struct {
	profile *model.Profile
	err     error
}

func (f *fakeProfileFinder) FindByID(context.Context, string) (*model.Profile, error) {
	return f.profile, f.err
}

// countingBuilder はBuildの呼び出し回数を数える。
type countingBuilder struct {
	inner ViewBuilder
	mu    sync.Mutex
	calls int
}

func (b *countingBuilder) Build(page guard.Page, s *guard.Session) (*view.View, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	return b.inner.Build(page, s)
}

func (b *countingBuilder) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// --- helpers ---

var (
	studentSession = &guard.Session{ID: "sess-1", UserID: "user-1", Email: "aiko@uni.edu"}
	adminSession   = &guard.Session{ID: "sess-2", UserID: "admin-1", Email: "ops@uni.edu", IsAdmin: true}
)

func marketplaceItems() []*model.Item {
	return []*model.Item{
		{ID: "i1", SellerID: "seller-1", Title: "Drafter set", Category: "Tools", Price: 500},
		{ID: "i2", SellerID: "seller-2", Title: "Calculus textbook", Category: "Textbooks", Price: 1200},
		{ID: "i3", SellerID: "seller-2", Title: "Desk lamp", Description: "LED", Category: "Electronics", Price: 800},
	}
}

func newTestPageHandler(items *fakeItemRepo, saved *fakeSavedRepo) (*PageHandler, *countingBuilder) {
	builder := &countingBuilder{inner: view.NewBuilder(view.Deps{Items: items, Saved: saved}, nil, nil)}
	return NewPageHandler(builder, &fakeProfileFinder{}, PageHandlerConfig{}), builder
}

// withSession はテスト用にセッションをコンテキストへ注入するミドルウェアを返す。
func withSession(s *guard.Session) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s != nil {
				r = r.WithContext(middleware.ContextWithSession(r.Context(), s))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func newPageRouter(h *PageHandler, s *guard.Session) http.Handler {
	r := chi.NewRouter()
	r.Use(withSession(s))
	r.With(PageGuard).Get("/api/pages/{page}", h.GetPage)
	r.With(PageGuard).Get("/api/live/{page}", h.Live)
	r.Get("/api/profile", h.GetProfile)
	return r
}

func getPage(t *testing.T, router http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

// --- PageGuard ---

func TestPageGuard_Decisions(t *testing.T) {
	tests := []struct {
		name         string
		session      *guard.Session
		page         string
		wantStatus   int
		wantDecision string
		wantLocation string
	}{
		{name: "anonymous on marketplace", session: nil, page: "marketplace", wantStatus: http.StatusUnauthorized, wantDecision: "redirect_sign_in", wantLocation: guard.SignInPath},
		{name: "anonymous on admin", session: nil, page: "admin", wantStatus: http.StatusUnauthorized, wantDecision: "redirect_sign_in", wantLocation: guard.SignInPath},
		{name: "admin on checkout", session: adminSession, page: "checkout", wantStatus: http.StatusSeeOther, wantDecision: "redirect_admin", wantLocation: guard.AdminPath},
		{name: "student on admin", session: studentSession, page: "admin", wantStatus: http.StatusForbidden, wantDecision: "access_denied"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := &fakeItemRepo{items: marketplaceItems()}
			h, builder := newTestPageHandler(items, &fakeSavedRepo{})

			w := getPage(t, newPageRouter(h, tt.session), "/api/pages/"+tt.page)

			assert.Equal(t, tt.wantStatus, w.Code)
			var body decisionResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tt.wantDecision, body.Decision)
			assert.Equal(t, tt.wantLocation, body.Location)
			assert.Zero(t, builder.Calls(), "no view should be built when entry is refused")
			assert.Empty(t, items.excluded, "no data should be fetched when entry is refused")
		})
	}
}

func TestPageGuard_AccessDeniedCarriesErrorFields(t *testing.T) {
	h, _ := newTestPageHandler(&fakeItemRepo{}, &fakeSavedRepo{})

	w := getPage(t, newPageRouter(h, studentSession), "/api/pages/admin")

	require.Equal(t, http.StatusForbidden, w.Code)
	var body decisionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, model.ErrCodeAccessDenied, body.Code)
	assert.Equal(t, "auth", body.Category)
	assert.NotEmpty(t, body.Message)
}

func TestPageGuard_AdminRedirectSetsLocationHeader(t *testing.T) {
	h, _ := newTestPageHandler(&fakeItemRepo{}, &fakeSavedRepo{})

	w := getPage(t, newPageRouter(h, adminSession), "/api/pages/marketplace")

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, guard.AdminPath, w.Header().Get("Location"))
}

func TestPageGuard_UnknownPage(t *testing.T) {
	h, builder := newTestPageHandler(&fakeItemRepo{}, &fakeSavedRepo{})

	w := getPage(t, newPageRouter(h, studentSession), "/api/pages/settings")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Zero(t, builder.Calls())
}

// --- GetPage ---

func TestGetPage_MarketplaceSnapshot(t *testing.T) {
	items := &fakeItemRepo{items: marketplaceItems()}
	saved := &fakeSavedRepo{saved: []*model.SavedItem{
		{UserID: "user-1", ItemID: "i2", Item: &model.Item{ID: "i2"}},
		{UserID: "user-1", ItemID: "gone"},
	}}
	h, _ := newTestPageHandler(items, saved)

	w := getPage(t, newPageRouter(h, studentSession), "/api/pages/marketplace")

	require.Equal(t, http.StatusOK, w.Code)
	var body view.MarketplaceView
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Len(t, body.Items, 3)
	assert.Equal(t, model.CategoryAll, body.Category)
	assert.Equal(t, []string{"i2"}, body.SavedIDs)
	assert.Equal(t, []string{"user-1"}, items.excluded)
}

func TestGetPage_CategoryAndSearch(t *testing.T) {
	items := &fakeItemRepo{items: marketplaceItems()}
	h, _ := newTestPageHandler(items, &fakeSavedRepo{})

	w := getPage(t, newPageRouter(h, studentSession), "/api/pages/marketplace?category=Electronics&q=LAMP")

	require.Equal(t, http.StatusOK, w.Code)
	var body view.MarketplaceView
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, []string{"Electronics"}, items.category)
	assert.Equal(t, "Electronics", body.Category)
	assert.Equal(t, "LAMP", body.Search)
	require.Len(t, body.Items, 1)
	assert.Equal(t, "i3", body.Items[0].ID)
}

func TestGetPage_InvalidCategory(t *testing.T) {
	items := &fakeItemRepo{}
	h, _ := newTestPageHandler(items, &fakeSavedRepo{})

	w := getPage(t, newPageRouter(h, studentSession), "/api/pages/marketplace?category=Food")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, model.ErrCodeInvalidCategory, decodeErrorCode(t, w))
	assert.Empty(t, items.excluded)
}

func TestGetPage_FailedQueryStillRenders(t *testing.T) {
	items := &fakeItemRepo{err: errors.New("connection reset")}
	saved := &fakeSavedRepo{saved: []*model.SavedItem{
		{UserID: "user-1", ItemID: "i9", Item: &model.Item{ID: "i9"}},
	}}
	h, _ := newTestPageHandler(items, saved)

	w := getPage(t, newPageRouter(h, studentSession), "/api/pages/marketplace")

	require.Equal(t, http.StatusOK, w.Code)
	var body view.MarketplaceView
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Empty(t, body.Items)
	assert.Equal(t, []string{"i9"}, body.SavedIDs)
}

// --- GetProfile ---

func TestGetProfile(t *testing.T) {
	tests := []struct {
		name       string
		finder     *fakeProfileFinder
		session    *guard.Session
		wantStatus int
	}{
		{name: "found", finder: &fakeProfileFinder{profile: &model.Profile{ID: "user-1", FullName: "Aiko", Phone: "090", PasswordHash: "secret"}}, session: studentSession, wantStatus: http.StatusOK},
		{name: "missing profile", finder: &fakeProfileFinder{}, session: studentSession, wantStatus: http.StatusNotFound},
		{name: "store failure", finder: &fakeProfileFinder{err: errors.New("db down")}, session: studentSession, wantStatus: http.StatusInternalServerError},
		{name: "no session", finder: &fakeProfileFinder{}, session: nil, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewPageHandler(&countingBuilder{}, tt.finder, PageHandlerConfig{})

			w := getPage(t, newPageRouter(h, tt.session), "/api/profile")

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Contains(t, w.Body.String(), `"full_name":"Aiko"`)
				assert.NotContains(t, w.Body.String(), "secret")
			}
		})
	}
}

// --- Live ---

func TestLive_PushesSnapshotsAndAppliesSearch(t *testing.T) {
	items := &fakeItemRepo{items: marketplaceItems()}
	h, _ := newTestPageHandler(items, &fakeSavedRepo{})
	srv := httptest.NewServer(newPageRouter(h, studentSession))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/live/marketplace"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first view.MarketplaceView
	require.NoError(t, conn.ReadJSON(&first))
	assert.Len(t, first.Items, 3)

	require.NoError(t, conn.WriteJSON(map[string]string{"search": "drafter"}))

	var second view.MarketplaceView
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, "drafter", second.Search)
	require.Len(t, second.Items, 1)
	assert.Equal(t, "i1", second.Items[0].ID)
	assert.Greater(t, second.Version, first.Version)
}

func TestLive_IgnoresInvalidCategoryFrame(t *testing.T) {
	items := &fakeItemRepo{items: marketplaceItems()}
	h, _ := newTestPageHandler(items, &fakeSavedRepo{})
	srv := httptest.NewServer(newPageRouter(h, studentSession))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/live/marketplace"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first view.MarketplaceView
	require.NoError(t, conn.ReadJSON(&first))

	// LIKEのワイルドカードはカテゴリとして受け付けない
	require.NoError(t, conn.WriteJSON(map[string]string{"category": "T%"}))
	require.NoError(t, conn.WriteJSON(map[string]string{"category": "Tools"}))

	var next view.MarketplaceView
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, "Tools", next.Category)

	items.mu.Lock()
	defer items.mu.Unlock()
	assert.NotContains(t, items.category, "T%")
	assert.Contains(t, items.category, "Tools")
}

func TestLive_RefusedBeforeUpgrade(t *testing.T) {
	h, _ := newTestPageHandler(&fakeItemRepo{}, &fakeSavedRepo{})
	srv := httptest.NewServer(newPageRouter(h, nil))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/live/inventory"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
