package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/tasktracker/internal/model"
)

// StatsReader は内部API向けの集計を取得するインターフェース。
// repository.StatsRepositoryが満たす。
type StatsReader interface {
	Totals(ctx context.Context) (*model.Stats, error)
}

// StatsHandler は内部統計APIのHTTPハンドラー。
// X-Internal-Keyで保護し、トークン認証とレート制限の対象外とする。
type StatsHandler struct {
	stats StatsReader
}

// NewStatsHandler はStatsHandlerを生成する。
func NewStatsHandler(stats StatsReader) *StatsHandler {
	return &StatsHandler{stats: stats}
}

type statsResponse struct {
	TotalUsers    int64 `json:"total_users"`
	TotalProjects int64 `json:"total_projects"`
	TotalTasks    int64 `json:"total_tasks"`
	TotalComments int64 `json:"total_comments"`
}

// Get は全体の件数を返す。
// GET /api/internal/stats
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.stats.Totals(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		TotalUsers:    s.TotalUsers,
		TotalProjects: s.TotalProjects,
		TotalTasks:    s.TotalTasks,
		TotalComments: s.TotalComments,
	})
}
