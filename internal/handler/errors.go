package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/hitoshi/semesterswap/internal/middleware"
	"github.com/hitoshi/semesterswap/internal/model"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeItemNotFound, model.ErrCodeReportNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodePermissionDenied, model.ErrCodeAccessDenied, model.ErrCodeDomainNotAllowed:
		return http.StatusForbidden
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeInvalidListing, model.ErrCodeInvalidImage, model.ErrCodeTooManyImages,
		model.ErrCodeProfileIncomplete, model.ErrCodeInvalidCategory, errCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeEmailAlreadyInUse:
		return http.StatusConflict
	case model.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// errCodeInvalidRequest はリクエスト形式の不備を表すエラーコード。
const errCodeInvalidRequest = "INVALID_REQUEST"

// newInvalidRequestError はリクエスト形式エラーを生成する。
func newInvalidRequestError(message string) *model.APIError {
	return &model.APIError{
		Code:     errCodeInvalidRequest,
		Message:  message,
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// newValidationError はvalidatorのエラーを最初の不正フィールド名を含むAPIErrorに変換する。
func newValidationError(err error) *model.APIError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return newInvalidRequestError("入力値が不正です: " + verrs[0].Field())
	}
	return newInvalidRequestError("入力値が不正です。")
}

// sessionUserID はリクエストコンテキストからユーザーIDを取り出す。
// 取得できない場合は401を書き込みfalseを返す。
func sessionUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return userID, true
}
