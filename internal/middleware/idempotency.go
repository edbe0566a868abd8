package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/tasktracker/internal/gate"
	"github.com/hitoshi/tasktracker/internal/model"
)

// 冪等再生に関わるヘッダー
const (
	IdempotencyKeyHeader = "Idempotency-Key"
	ReplayedHeader       = "Idempotent-Replayed"
)

// maxIdempotencyKeyLength を超えるキーはValidationエラー（422）にする。
const maxIdempotencyKeyLength = 255

// Replayer は冪等キーに対応するレスポンスを保存・再生するインターフェース。
// gate.Gateが満たす。
type Replayer interface {
	Replay(ctx context.Context, identity model.Identity, key string) (*gate.CachedResponse, bool, error)
	Remember(ctx context.Context, identity model.Identity, key string, resp gate.CachedResponse) error
}

// NewIdempotencyMiddleware はIdempotency-Key付きの変更系リクエストに冪等性を与えるミドルウェアを返す。
// 保存済みのレスポンスがあればハンドラーを呼ばずにそのまま返す。
// 未保存の場合はハンドラーの応答をバッファし、2xxであれば保存してからクライアントへ送る。
// 認証・流量制限ミドルウェアの後に配置する。
func NewIdempotencyMiddleware(replayer Replayer) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" || !isMutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxIdempotencyKeyLength {
				WriteError(w, model.NewValidationError("Idempotency-Key is too long"))
				return
			}

			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				WriteError(w, model.NewInvalidCredentialError())
				return
			}

			cached, hit, err := replayer.Replay(r.Context(), identity, key)
			if err != nil {
				WriteError(w, err)
				return
			}
			if hit {
				writeCached(w, cached)
				return
			}

			buf := &bufferedResponse{header: w.Header(), status: http.StatusOK}
			next.ServeHTTP(buf, r)

			if buf.status >= 200 && buf.status < 300 {
				resp := gate.CachedResponse{
					Status:      buf.status,
					ContentType: buf.header.Get("Content-Type"),
					Body:        buf.body.Bytes(),
				}
				if err := replayer.Remember(r.Context(), identity, key, resp); err != nil {
					slog.Warn("failed to store idempotent response",
						slog.Int64("user_id", identity.ID),
						slog.String("error", err.Error()),
					)
				}
			}

			w.WriteHeader(buf.status)
			w.Write(buf.body.Bytes())
		})
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// writeCached は保存済みレスポンスをそのまま書き込む。
func writeCached(w http.ResponseWriter, cached *gate.CachedResponse) {
	if cached.ContentType != "" {
		w.Header().Set("Content-Type", cached.ContentType)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(cached.Status)
	w.Write(cached.Body)
}

// bufferedResponse はハンドラーの応答をメモリに溜める。
// ヘッダーは元のResponseWriterと共有する。
type bufferedResponse struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (b *bufferedResponse) Header() http.Header {
	return b.header
}

func (b *bufferedResponse) WriteHeader(code int) {
	if b.wroteHeader {
		return
	}
	b.status = code
	b.wroteHeader = true
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	b.wroteHeader = true
	return b.body.Write(p)
}
