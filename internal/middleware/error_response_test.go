package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/semesterswap/internal/model"
)

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) ErrorResponseBody {
	t.Helper()
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

func TestWriteErrorResponse_CopiesEveryField(t *testing.T) {
	tests := []struct {
		status int
		err    *model.APIError
	}{
		{http.StatusUnauthorized, model.NewUnauthorizedError()},
		{http.StatusForbidden, model.NewAccessDeniedError()},
		{http.StatusForbidden, model.NewPermissionDeniedError()},
		{http.StatusNotFound, model.NewItemNotFoundError("item-9")},
		{http.StatusBadRequest, model.NewTooManyImagesError(6)},
		{http.StatusTooManyRequests, model.NewRateLimitExceededError()},
	}

	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteErrorResponse(w, tt.status, tt.err)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			body := decodeErrorBody(t, w)
			want := ErrorResponseBody{Code: tt.err.Code, Message: tt.err.Message, Category: tt.err.Category, Action: tt.err.Action}
			if body != want {
				t.Errorf("body = %+v, want %+v", body, want)
			}
		})
	}
}

func TestWriteInternalServerError_HidesCause(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternalServerError(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	body := decodeErrorBody(t, w)
	if body.Code != model.ErrCodeInternal || body.Category != "system" {
		t.Errorf("body = %+v, want INTERNAL_ERROR/system", body)
	}
	if body.Action == "" {
		t.Error("action should not be empty")
	}
}
