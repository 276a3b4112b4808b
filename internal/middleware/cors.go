package middleware

import (
	"net/http"
	"strings"
)

// corsAllowedMethods はAPIが受け付けるメソッド。
var corsAllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}

// NewCORSMiddleware はフロントエンドのオリジンからのcredentials付きリクエストを許可する。
// Originヘッダーが別オリジンのプリフライトは403で終了し、後続ハンドラーには渡さない。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	methods := strings.Join(corsAllowedMethods, ", ")
	headers := strings.Join([]string{"Content-Type", csrfHeaderName}, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Origin", allowedOrigin)
			h.Set("Access-Control-Allow-Credentials", "true")

			if r.Method != http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			if origin := r.Header.Get("Origin"); origin != "" && origin != allowedOrigin {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			h.Set("Access-Control-Allow-Methods", methods)
			h.Set("Access-Control-Allow-Headers", headers)
			h.Set("Access-Control-Max-Age", "86400")
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
