// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// プレビュー、エディタ、ストアの各層から利用する。
type MetricsCollector interface {
	RecordRender(trigger string)
	RecordRenderSkipped(reason string)
	RecordRenderLatency(duration time.Duration)
	RecordDebounceReschedule()
	RecordScriptError()
	RecordStoreOperation(op string, ok bool)
	RecordExport()
	SetOpenSessions(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	renders       *prometheus.CounterVec
	renderSkipped *prometheus.CounterVec
	renderLatency prometheus.Histogram
	reschedules   prometheus.Counter
	scriptErrors  prometheus.Counter
	storeOps      *prometheus.CounterVec
	exports       prometheus.Counter
	openSessions  prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codepad_preview_renders_total",
			Help: "プレビュー描画の合計数（トリガー別）",
		}, []string{"trigger"}),
		renderSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codepad_preview_render_skipped_total",
			Help: "描画先を取得できずスキップした描画の合計数",
		}, []string{"reason"}),
		renderLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "codepad_preview_render_seconds",
			Help:    "ドキュメント合成と描画にかかった時間（秒）",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		reschedules: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codepad_preview_debounce_reschedules_total",
			Help: "待機中の描画タイマーを置き換えた回数",
		}),
		scriptErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codepad_preview_script_errors_total",
			Help: "プレビュー内で捕捉されたスクリプトエラーの合計数",
		}),
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codepad_store_operations_total",
			Help: "ローカルストア操作の合計数",
		}, []string{"op", "result"}),
		exports: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codepad_exports_total",
			Help: "HTMLエクスポートの合計数",
		}),
		openSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "codepad_editor_sessions_open",
			Help: "開いているエディタセッション数",
		}),
	}

	reg.MustRegister(
		c.renders,
		c.renderSkipped,
		c.renderLatency,
		c.reschedules,
		c.scriptErrors,
		c.storeOps,
		c.exports,
		c.openSessions,
	)

	return c
}

// RecordRender は描画を記録する。
func (c *Collector) RecordRender(trigger string) {
	c.renders.WithLabelValues(trigger).Inc()
}

// RecordRenderSkipped はスキップされた描画を記録する。
func (c *Collector) RecordRenderSkipped(reason string) {
	c.renderSkipped.WithLabelValues(reason).Inc()
}

// RecordRenderLatency は描画時間を記録する。
func (c *Collector) RecordRenderLatency(duration time.Duration) {
	c.renderLatency.Observe(duration.Seconds())
}

// RecordDebounceReschedule はタイマーの置き換えを記録する。
func (c *Collector) RecordDebounceReschedule() {
	c.reschedules.Inc()
}

// RecordScriptError はスクリプトエラーを記録する。
func (c *Collector) RecordScriptError() {
	c.scriptErrors.Inc()
}

// RecordStoreOperation はストア操作の結果を記録する。
func (c *Collector) RecordStoreOperation(op string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	c.storeOps.WithLabelValues(op, result).Inc()
}

// RecordExport はエクスポートを記録する。
func (c *Collector) RecordExport() {
	c.exports.Inc()
}

// SetOpenSessions は開いているセッション数を設定する。
func (c *Collector) SetOpenSessions(count int) {
	c.openSessions.Set(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。
// メトリクスが不要なテストや組み立てで使用する。
type Nop struct{}

func (Nop) RecordRender(string)               {}
func (Nop) RecordRenderSkipped(string)        {}
func (Nop) RecordRenderLatency(time.Duration) {}
func (Nop) RecordDebounceReschedule()         {}
func (Nop) RecordScriptError()                {}
func (Nop) RecordStoreOperation(string, bool) {}
func (Nop) RecordExport()                     {}
func (Nop) SetOpenSessions(int)               {}
