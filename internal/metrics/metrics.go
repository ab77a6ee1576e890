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
// リゾルバー、同期エンジン、ワーカーから利用する。
type MetricsCollector interface {
	RecordSourceSync(kind string, success bool)
	RecordResolutionFailure(platform string, stage string)
	RecordHTTPStatus(statusCode int)
	RecordSyncLatency(duration time.Duration)
	RecordItemsUpserted(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
// resolver.FailureRecorderとsync.SyncRecorderの両方を満たす。
type Collector struct {
	sourceSync     *prometheus.CounterVec
	resolutionFail *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	syncLatency    prometheus.Histogram
	itemsUpserted  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sourceSync: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unifeed_source_sync_total",
			Help: "ソース同期の実行回数（種別・成否別）",
		}, []string{"kind", "result"}),
		resolutionFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unifeed_resolution_fail_total",
			Help: "プラットフォーム解決失敗の合計数（プラットフォーム・段階別）",
		}, []string{"platform", "stage"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unifeed_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		syncLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "unifeed_sync_latency_seconds",
			Help:    "1ソース同期のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		itemsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "unifeed_items_upserted_total",
			Help: "アップサートされたコンテンツの合計数",
		}),
	}

	reg.MustRegister(
		c.sourceSync,
		c.resolutionFail,
		c.httpStatus,
		c.syncLatency,
		c.itemsUpserted,
	)

	return c
}

// RecordSourceSync はソース同期の結果を記録する。
func (c *Collector) RecordSourceSync(kind string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.sourceSync.WithLabelValues(kind, result).Inc()
}

// RecordResolutionFailure はプラットフォーム解決の失敗を段階別に記録する。
func (c *Collector) RecordResolutionFailure(platform string, stage string) {
	c.resolutionFail.WithLabelValues(platform, stage).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordSyncLatency は1ソース同期のレイテンシを記録する。
func (c *Collector) RecordSyncLatency(duration time.Duration) {
	c.syncLatency.Observe(duration.Seconds())
}

// RecordItemsUpserted はアップサートされたコンテンツ数を記録する。
func (c *Collector) RecordItemsUpserted(count int) {
	c.itemsUpserted.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// アプリケーション本体とは別ポートで公開する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
