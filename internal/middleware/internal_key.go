package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/hitoshi/tasktracker/internal/model"
)

// InternalKeyHeader は内部APIキーを受け渡すヘッダー名。
const InternalKeyHeader = "X-Internal-Key"

// NewInternalKeyMiddleware はX-Internal-Keyヘッダーを定数時間で照合するミドルウェアを返す。
// keyが空の場合は内部APIを無効とみなし、常に403を返す。
func NewInternalKeyMiddleware(key string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			given := r.Header.Get(InternalKeyHeader)
			if key == "" || subtle.ConstantTimeCompare([]byte(given), []byte(key)) != 1 {
				slog.Warn("invalid internal key",
					slog.String("path", r.URL.Path),
					slog.String("reason", "internal_key_mismatch"),
				)
				WriteError(w, model.NewInvalidInternalKeyError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
