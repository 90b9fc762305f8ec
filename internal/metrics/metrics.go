// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// todoリポジトリやプロフィールリゾルバから利用する。
type MetricsCollector interface {
	RecordFetchSuccess(role string)
	RecordFetchFailure(role string)
	RecordFetchLatency(duration time.Duration)
	RecordMutation(action string, success bool)
	RecordChangeEventApplied(collection string)
	RecordChangeEventDropped(collection string)
	RecordProfileSelfHeal()
	SetActiveSessions(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	fetchTotal     *prometheus.CounterVec
	fetchLatency   prometheus.Histogram
	mutationTotal  *prometheus.CounterVec
	changeEvents   *prometheus.CounterVec
	selfHealTotal  prometheus.Counter
	activeSessions prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todoman_fetch_total",
			Help: "可視todoセット取得の合計数（ロール・結果別）",
		}, []string{"role", "result"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "todoman_fetch_latency_seconds",
			Help:    "可視todoセット取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		mutationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todoman_mutation_total",
			Help: "todo変更操作の合計数（操作・結果別）",
		}, []string{"action", "result"}),
		changeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todoman_change_events_total",
			Help: "変更フィードイベントの合計数（コレクション・処理別）",
		}, []string{"collection", "outcome"}),
		selfHealTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todoman_profile_self_heal_total",
			Help: "欠損プロフィール自動作成の合計数",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "todoman_active_sessions",
			Help: "アクティブセッション数",
		}),
	}

	reg.MustRegister(
		c.fetchTotal,
		c.fetchLatency,
		c.mutationTotal,
		c.changeEvents,
		c.selfHealTotal,
		c.activeSessions,
	)

	return c
}

// RecordFetchSuccess は可視セット取得成功を記録する。
func (c *Collector) RecordFetchSuccess(role string) {
	c.fetchTotal.WithLabelValues(role, "success").Inc()
}

// RecordFetchFailure は可視セット取得失敗を記録する。
func (c *Collector) RecordFetchFailure(role string) {
	c.fetchTotal.WithLabelValues(role, "failure").Inc()
}

// RecordFetchLatency は可視セット取得のレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordMutation はtodo変更操作の結果を記録する。
// actionはcreate, update, toggle, deleteのいずれか。
func (c *Collector) RecordMutation(action string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.mutationTotal.WithLabelValues(action, result).Inc()
}

// RecordChangeEventApplied は可視セットへ反映された変更イベントを記録する。
func (c *Collector) RecordChangeEventApplied(collection string) {
	c.changeEvents.WithLabelValues(collection, "applied").Inc()
}

// RecordChangeEventDropped は無関係として破棄された変更イベントを記録する。
func (c *Collector) RecordChangeEventDropped(collection string) {
	c.changeEvents.WithLabelValues(collection, "dropped").Inc()
}

// RecordProfileSelfHeal は欠損プロフィールの自動作成を記録する。
func (c *Collector) RecordProfileSelfHeal() {
	c.selfHealTotal.Inc()
}

// SetActiveSessions はアクティブセッション数を記録する。
func (c *Collector) SetActiveSessions(count int) {
	c.activeSessions.Set(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// NopCollector は何も記録しないMetricsCollector実装。テスト用。
type NopCollector struct{}

func (NopCollector) RecordFetchSuccess(string)        {}
func (NopCollector) RecordFetchFailure(string)        {}
func (NopCollector) RecordFetchLatency(time.Duration) {}
func (NopCollector) RecordMutation(string, bool)      {}
func (NopCollector) RecordChangeEventApplied(string)  {}
func (NopCollector) RecordChangeEventDropped(string)  {}
func (NopCollector) RecordProfileSelfHeal()           {}
func (NopCollector) SetActiveSessions(int)            {}

var _ MetricsCollector = (*Collector)(nil)
var _ MetricsCollector = NopCollector{}
