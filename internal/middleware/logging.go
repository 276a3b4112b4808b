package middleware

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/semesterswap/internal/guard"
)

// statusRecorder はステータスコードと書き込みバイト数を記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int
	written    bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

// Hijack はWebSocketアップグレードのために下位のhttp.Hijackerへ委譲する。
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	if !sr.written {
		sr.statusCode = http.StatusSwitchingProtocols
		sr.written = true
	}
	return h.Hijack()
}

// requestLog はログミドルウェアより内側で判明するリクエスト情報。
// セッションミドルウェアはチェーンの後段にあるため、コンテキスト経由で書き戻す。
type requestLog struct {
	userID string
	role   string
}

type requestLogKey struct{}

// annotateRequestLog は解決済みセッションをアクセスログに反映する。
func annotateRequestLog(ctx context.Context, s *guard.Session) {
	rl, ok := ctx.Value(requestLogKey{}).(*requestLog)
	if !ok || s == nil {
		return
	}
	rl.userID = s.UserID
	rl.role = "student"
	if s.IsAdmin {
		rl.role = "admin"
	}
}

// NewLoggingMiddleware はリクエストごとに1行のアクセスログを出力する。
// 4xxはWARN、5xxはERROR。成功した/healthはDEBUG。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rl := &requestLog{}
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestLogKey{}, rl)))

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Int("bytes", rec.bytes),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
			}

			userID := rl.userID
			if userID == "" {
				userID, _ = UserIDFromContext(r.Context())
			}
			if userID != "" {
				attrs = append(attrs, slog.String("user_id", userID))
			}
			if rl.role != "" {
				attrs = append(attrs, slog.String("role", rl.role))
			}

			logger.LogAttrs(r.Context(), accessLogLevel(r.URL.Path, rec.statusCode), "http_request", attrs...)
		})
	}
}

func accessLogLevel(path string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case strings.HasPrefix(path, "/health"):
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
