// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EngineRecorder はタスク・ポイント・バッジの処理結果を記録するインターフェース。
// サービス層とワーカーから利用する。
type EngineRecorder interface {
	RecordTransition(event, from, to string)
	RecordCompletion(netPoints, penalty, daysLate int)
	RecordPointsDeducted(amount int)
	RecordBadgeAwarded(source string)
	RecordDuplicateAward()
	RecordEvaluation(duration time.Duration, awarded int)
}

// バッジ付与の経路
const (
	SourceAutomatic = "automatic"
	SourceManual    = "manual"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	transitions     *prometheus.CounterVec
	completions     prometheus.Counter
	latePenalties   prometheus.Counter
	penaltyPoints   prometheus.Counter
	daysLate        prometheus.Histogram
	pointsAwarded   prometheus.Counter
	pointsDeducted  prometheus.Counter
	badgesAwarded   *prometheus.CounterVec
	duplicateAwards prometheus.Counter
	evalLatency     prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labquest_task_transitions_total",
			Help: "タスク状態遷移の合計数",
		}, []string{"event", "from", "to"}),
		completions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "labquest_task_completions_total",
			Help: "doneに遷移したタスクの合計数",
		}),
		latePenalties: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "labquest_late_penalties_total",
			Help: "期限超過ペナルティが発生した完了の合計数",
		}),
		penaltyPoints: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "labquest_penalty_points_total",
			Help: "期限超過ペナルティで差し引かれたポイントの合計",
		}),
		daysLate: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "labquest_task_days_late",
			Help:    "期限超過で完了したタスクの遅延日数",
			Buckets: []float64{1, 2, 3, 5, 7, 14, 30},
		}),
		pointsAwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "labquest_points_awarded_total",
			Help: "タスク完了で付与された正味ポイント（正の値のみ）の合計",
		}),
		pointsDeducted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "labquest_points_deducted_total",
			Help: "管理者によって減算されたポイントの合計",
		}),
		badgesAwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labquest_badges_awarded_total",
			Help: "付与経路別のバッジ付与数",
		}, []string{"source"}),
		duplicateAwards: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "labquest_badge_duplicate_awards_total",
			Help: "一意制約により棄却された重複付与の数",
		}),
		evalLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "labquest_badge_evaluation_seconds",
			Help:    "ユーザー1人あたりのバッジ判定時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.transitions,
		c.completions,
		c.latePenalties,
		c.penaltyPoints,
		c.daysLate,
		c.pointsAwarded,
		c.pointsDeducted,
		c.badgesAwarded,
		c.duplicateAwards,
		c.evalLatency,
	)

	return c
}

// RecordTransition は状態遷移を記録する。
func (c *Collector) RecordTransition(event, from, to string) {
	c.transitions.WithLabelValues(event, from, to).Inc()
}

// RecordCompletion はdoneへの遷移時のポイント内訳を記録する。
func (c *Collector) RecordCompletion(netPoints, penalty, daysLate int) {
	c.completions.Inc()
	if penalty > 0 {
		c.latePenalties.Inc()
		c.penaltyPoints.Add(float64(penalty))
		c.daysLate.Observe(float64(daysLate))
	}
	if netPoints > 0 {
		c.pointsAwarded.Add(float64(netPoints))
	}
}

// RecordPointsDeducted は管理者による減算を記録する。
func (c *Collector) RecordPointsDeducted(amount int) {
	c.pointsDeducted.Add(float64(amount))
}

// RecordBadgeAwarded はバッジ付与を記録する。
func (c *Collector) RecordBadgeAwarded(source string) {
	c.badgesAwarded.WithLabelValues(source).Inc()
}

// RecordDuplicateAward は重複付与の棄却を記録する。
func (c *Collector) RecordDuplicateAward() {
	c.duplicateAwards.Inc()
}

// RecordEvaluation はユーザー1人分のバッジ判定を記録する。
func (c *Collector) RecordEvaluation(duration time.Duration, awarded int) {
	c.evalLatency.Observe(duration.Seconds())
}

// Nop は何も記録しないEngineRecorder。
type Nop struct{}

func (Nop) RecordTransition(event, from, to string) {}
func (Nop) RecordCompletion(netPoints, penalty, daysLate int) {}
func (Nop) RecordPointsDeducted(amount int) {}
func (Nop) RecordBadgeAwarded(source string) {}
func (Nop) RecordDuplicateAward() {}
func (Nop) RecordEvaluation(duration time.Duration, awarded int) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ EngineRecorder = (*Collector)(nil)
	_ EngineRecorder = Nop{}
)
