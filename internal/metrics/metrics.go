// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ゲート判定の段階
const (
	StageAuthenticate = "authenticate"
	StageAdmit        = "admit"
	StageReplay       = "replay"
)

// ゲート判定の結果
const (
	OutcomeAllowed = "allowed"
	OutcomeDenied  = "denied"
	OutcomeHit     = "hit"
	OutcomeMiss    = "miss"
	OutcomeStored  = "stored"
	OutcomeError   = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// リクエストゲート、ミドルウェア、掃除ジョブから利用する。
type MetricsCollector interface {
	RecordGateDecision(stage, outcome string)
	RecordHTTPStatus(statusCode int)
	RecordRequestDuration(duration time.Duration)
	RecordSwept(store string, count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	gateDecisions   *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
	requestDuration prometheus.Histogram
	swept           *prometheus.CounterVec
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tasktracker_gate_decisions_total",
			Help: "リクエストゲートの段階・結果別の判定数",
		}, []string{"stage", "outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tasktracker_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tasktracker_http_request_duration_seconds",
			Help:    "APIリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		swept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tasktracker_state_swept_total",
			Help: "掃除ジョブが削除した期限切れ状態の件数",
		}, []string{"store"}),
	}

	reg.MustRegister(
		c.gateDecisions,
		c.httpStatus,
		c.requestDuration,
		c.swept,
	)

	return c
}

// RecordGateDecision はゲートの判定結果を記録する。
func (c *Collector) RecordGateDecision(stage, outcome string) {
	c.gateDecisions.WithLabelValues(stage, outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestDuration はリクエストの処理時間を記録する。
func (c *Collector) RecordRequestDuration(duration time.Duration) {
	c.requestDuration.Observe(duration.Seconds())
}

// RecordSwept は掃除ジョブの削除件数を記録する。
func (c *Collector) RecordSwept(store string, count int) {
	c.swept.WithLabelValues(store).Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// 収集中のエラーは該当メトリクスを除いて応答を続ける。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
