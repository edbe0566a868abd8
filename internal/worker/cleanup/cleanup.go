// Package cleanup はゲートが保持する一時データの定期掃除ジョブを提供する。
// 過去ウィンドウの流量カウンタと期限切れの冪等性記録を削除する。
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/tasktracker/internal/metrics"
)

// Sweeper は期限切れデータを削除して件数を返すインターフェース。
// ratelimit.Limiterとidempotency.Cacheが満たす。
type Sweeper interface {
	Sweep() int
}

// Target は掃除対象とメトリクス上の名前の組。
type Target struct {
	Name    string
	Sweeper Sweeper
}

// Job は登録された掃除対象を順に掃除するジョブ。
type Job struct {
	targets []Target
	logger  *slog.Logger
	metrics metrics.MetricsCollector
}

// NewJob は新しいJobを生成する。mcがnilの場合はメトリクスを記録しない。
func NewJob(logger *slog.Logger, mc metrics.MetricsCollector, targets ...Target) *Job {
	return &Job{
		targets: targets,
		logger:  logger,
		metrics: mc,
	}
}

// Run は全ての掃除対象を1回ずつ掃除し、合計削除件数を返す。
// 冪等: 削除対象がなくてもエラーにならない。
func (j *Job) Run(ctx context.Context) int {
	start := time.Now()
	total := 0

	for _, t := range j.targets {
		if ctx.Err() != nil {
			break
		}
		n := t.Sweeper.Sweep()
		total += n
		if j.metrics != nil {
			j.metrics.RecordSwept(t.Name, n)
		}
		if n > 0 {
			j.logger.Debug("期限切れデータを削除しました",
				slog.String("store", t.Name),
				slog.Int("deleted_count", n),
			)
		}
	}

	j.logger.Info("掃除ジョブが完了しました",
		slog.Int("deleted_count", total),
		slog.Int("targets", len(j.targets)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return total
}

// Start はinterval間隔でRunを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("掃除ジョブを開始しました",
		slog.Duration("interval", interval),
	)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("掃除ジョブを停止しました")
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}
