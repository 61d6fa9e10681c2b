package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/MorseWayne/stock_guard/internal/resp"
)

// Timeout 在给定时长后取消请求上下文并写出超时响应。
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "")
	}
}

// HandleTimeout 在上下文已超时/取消时写出统一的超时响应，返回是否已处理。
func HandleTimeout(w http.ResponseWriter, r *http.Request) bool {
	if err := r.Context().Err(); err == context.DeadlineExceeded || err == context.Canceled {
		reqID := RequestIDFromContext(r.Context())
		resp.Error(w, resp.HTTPStatusFromCode(resp.CodeTimeout), resp.CodeTimeout, "request timeout", reqID, "")
		return true
	}
	return false
}
