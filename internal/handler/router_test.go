package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/semesterswap/internal/guard"
	"github.com/hitoshi/semesterswap/internal/middleware"
	"github.com/hitoshi/semesterswap/internal/model"
	"github.com/hitoshi/semesterswap/internal/view"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver map[string]*guard.Session

func (s stubResolver) Resolve(_ context.Context, sessionID string) *guard.Session {
	return s[sessionID]
}

type stubHealthChecker struct{ err error }

func (s stubHealthChecker) PingContext(context.Context) error { return s.err }

const testCSRFToken = "csrf-token-value"

func newTestRouter(t *testing.T, mutations MutationService, health HealthChecker, googleEnabled bool) http.Handler {
	t.Helper()
	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	items := &fakeItemRepo{items: marketplaceItems()}
	return NewRouter(&RouterDeps{
		HealthChecker: health,
		SessionResolver: stubResolver{
			"student-session": studentSession,
			"admin-session":   adminSession,
		},
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		AuthService: &mockAuthService{
			getLoginURLFn: func(state string) string {
				return "https://accounts.google.com/o/oauth2/auth?state=" + state
			},
		},
		AuthConfig:        AuthHandlerConfig{BaseURL: "http://localhost:3000", SessionMaxAge: 3600},
		GoogleEnabled:     googleEnabled,
		ViewBuilder:       view.NewBuilder(view.Deps{Items: items, Saved: &fakeSavedRepo{}}, nil, nil),
		Profiles:          &fakeProfileFinder{profile: &model.Profile{ID: "user-1"}},
		Mutations:         mutations,
		ItemConfig:        ItemHandlerConfig{MaxUploadSize: 1 << 20},
	})
}

// request はセッションCookieとCSRFトークンを付けたリクエストを生成する。
func request(method, target, sessionID string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: sessionID})
	}
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: testCSRFToken})
	req.Header.Set("X-CSRF-Token", testCSRFToken)
	return req
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRouter_Health(t *testing.T) {
	ok := newTestRouter(t, &mockMutationService{}, stubHealthChecker{}, false)
	w := serve(ok, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	down := newTestRouter(t, &mockMutationService{}, stubHealthChecker{err: errors.New("refused")}, false)
	w = serve(down, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_SecurityHeadersApplied(t *testing.T) {
	router := newTestRouter(t, &mockMutationService{}, nil, false)
	w := serve(router, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestRouter_PageDecisions(t *testing.T) {
	router := newTestRouter(t, &mockMutationService{}, nil, false)

	tests := []struct {
		name       string
		session    string
		page       string
		wantStatus int
	}{
		{name: "anonymous", session: "", page: "checkout", wantStatus: http.StatusUnauthorized},
		{name: "expired session", session: "stale", page: "checkout", wantStatus: http.StatusUnauthorized},
		{name: "student marketplace", session: "student-session", page: "marketplace", wantStatus: http.StatusOK},
		{name: "student admin", session: "student-session", page: "admin", wantStatus: http.StatusForbidden},
		{name: "admin marketplace", session: "admin-session", page: "marketplace", wantStatus: http.StatusSeeOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, request(http.MethodGet, "/api/pages/"+tt.page, tt.session))
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRouter_MutationsRequireAuthAndCSRF(t *testing.T) {
	saved := false
	router := newTestRouter(t, &mockMutationService{
		saveFn: func(ctx context.Context, userID, itemID string) error {
			saved = true
			return nil
		},
	}, nil, false)

	// CSRFトークンなし
	req := httptest.NewRequest(http.MethodPost, "/api/items/i1/save", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "student-session"})
	w := serve(router, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// 未認証
	w = serve(router, request(http.MethodPost, "/api/items/i1/save", ""))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.False(t, saved)

	w = serve(router, request(http.MethodPost, "/api/items/i1/save", "student-session"))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, saved)
}

func TestRouter_AdminRoutes(t *testing.T) {
	var deleted string
	router := newTestRouter(t, &mockMutationService{
		adminDeleteListingFn: func(ctx context.Context, itemID string) error {
			deleted = itemID
			return nil
		},
	}, nil, false)

	w := serve(router, request(http.MethodDelete, "/api/admin/items/i1", "student-session"))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, deleted)

	w = serve(router, request(http.MethodDelete, "/api/admin/items/i1", "admin-session"))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "i1", deleted)
}

func TestRouter_GoogleRoutesOnlyWhenEnabled(t *testing.T) {
	disabled := newTestRouter(t, &mockMutationService{}, nil, false)
	w := serve(disabled, request(http.MethodGet, "/auth/google/login", ""))
	assert.Equal(t, http.StatusNotFound, w.Code)

	enabled := newTestRouter(t, &mockMutationService{}, nil, true)
	w = serve(enabled, request(http.MethodGet, "/auth/google/login", ""))
	require.Equal(t, http.StatusTemporaryRedirect, w.Code)
}

func TestRouter_ProfileRequiresSession(t *testing.T) {
	router := newTestRouter(t, &mockMutationService{}, nil, false)

	w := serve(router, request(http.MethodGet, "/api/profile", ""))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(router, request(http.MethodGet, "/api/profile", "student-session"))
	assert.Equal(t, http.StatusOK, w.Code)
}
