// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/tasktracker/internal/middleware"
	"github.com/hitoshi/tasktracker/internal/model"
)

// maxBodyBytes はリクエストボディの上限サイズ。
const maxBodyBytes = 1 << 20

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON はリクエストボディをJSONとしてvに読み込む。
// 解析に失敗した場合はInvalidRequestエラーを返す。
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return model.NewInvalidRequestError()
	}
	return nil
}

// handleServiceError はサービス層から返されたエラーを統一フォーマットで書き込む。
func handleServiceError(w http.ResponseWriter, err error) {
	middleware.WriteError(w, err)
}

// identityOrUnauthorized は認証主体を取り出す。存在しない場合は401を書き込んでfalseを返す。
func identityOrUnauthorized(w http.ResponseWriter, r *http.Request) (model.Identity, bool) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, model.NewInvalidCredentialError())
		return model.Identity{}, false
	}
	return identity, true
}

// pathID はURLパラメータを正の整数IDとして解析する。
// 解析できない場合はnotFoundを返す。
func pathID(r *http.Request, key string, notFound func() *model.APIError) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		return 0, notFound()
	}
	return id, nil
}

// pageFromQuery はlimit/offsetクエリパラメータからPageを生成する。
func pageFromQuery(r *http.Request) (model.Page, error) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		return model.Page{}, err
	}
	offset, err := intParam(q.Get("offset"))
	if err != nil {
		return model.Page{}, err
	}
	return model.NewPage(limit, offset)
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, model.NewValidationError("limit and offset must be integers")
	}
	return n, nil
}

// formatTime はレスポンス用にUTCのRFC3339で時刻を整形する。
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// formatTimePtr はnil許容の時刻を整形する。
func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
