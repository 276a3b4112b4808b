// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 同期・変更操作・変更通知の各層から利用する。
type MetricsCollector interface {
	RecordMutation(action, outcome string)
	RecordSyncReload(page string, duration time.Duration)
	RecordNotification(table string)
	RecordImagesUploaded(count int)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	mutations      *prometheus.CounterVec
	syncReloads    *prometheus.CounterVec
	syncLatency    prometheus.Histogram
	notifications  *prometheus.CounterVec
	imagesUploaded prometheus.Counter
	httpStatus     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "semesterswap_mutations_total",
			Help: "変更操作の実行数（操作種別・結果別）",
		}, []string{"action", "outcome"}),
		syncReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "semesterswap_sync_reloads_total",
			Help: "ページごとの全件再取得の回数",
		}, []string{"page"}),
		syncLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "semesterswap_sync_reload_seconds",
			Help:    "全件再取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "semesterswap_change_notifications_total",
			Help: "受信した変更通知の数（テーブル別）",
		}, []string{"table"}),
		imagesUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "semesterswap_images_uploaded_total",
			Help: "アップロードされた出品画像の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "semesterswap_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.mutations,
		c.syncReloads,
		c.syncLatency,
		c.notifications,
		c.imagesUploaded,
		c.httpStatus,
	)

	return c
}

// RecordMutation は変更操作の結果を記録する。outcomeは "ok"、"error"、"noop" のいずれか。
func (c *Collector) RecordMutation(action, outcome string) {
	c.mutations.WithLabelValues(action, outcome).Inc()
}

// RecordSyncReload はページの全件再取得を記録する。
func (c *Collector) RecordSyncReload(page string, duration time.Duration) {
	c.syncReloads.WithLabelValues(page).Inc()
	c.syncLatency.Observe(duration.Seconds())
}

// RecordNotification は変更通知の受信を記録する。
func (c *Collector) RecordNotification(table string) {
	c.notifications.WithLabelValues(table).Inc()
}

// RecordImagesUploaded はアップロードされた画像数を記録する。
func (c *Collector) RecordImagesUploaded(count int) {
	c.imagesUploaded.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordMutation(string, string) {}
func (Nop) RecordSyncReload(string, time.Duration) {}
func (Nop) RecordNotification(string) {}
func (Nop) RecordImagesUploaded(int) {}
func (Nop) RecordHTTPStatus(int) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
