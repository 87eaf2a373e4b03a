// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder はメトリクス収集のインターフェース。
// Action Runner、ポータルクライアント、スケジューラから利用する。
type Recorder interface {
	RecordAction(action string, outcome string, duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordNotifyFailure()
	SetScheduledEvents(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	actions         *prometheus.CounterVec
	actionLatency   *prometheus.HistogramVec
	httpStatus      *prometheus.CounterVec
	notifyFail      prometheus.Counter
	scheduledEvents prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autosign_actions_total",
			Help: "アクション種別・結果別の打刻実行数",
		}, []string{"action", "outcome"}),
		actionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autosign_action_duration_seconds",
			Help:    "ログインから通知までの打刻実行時間（秒）",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"action"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autosign_portal_http_status_total",
			Help: "ポータルから受信したHTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		notifyFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autosign_notify_fail_total",
			Help: "通知送信失敗の合計数",
		}),
		scheduledEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autosign_scheduled_events",
			Help: "現在の計画サイクルで待機中の打刻予定数",
		}),
	}

	reg.MustRegister(
		c.actions,
		c.actionLatency,
		c.httpStatus,
		c.notifyFail,
		c.scheduledEvents,
	)

	return c
}

// RecordAction は1回の打刻実行の結果と所要時間を記録する。
func (c *Collector) RecordAction(action string, outcome string, duration time.Duration) {
	c.actions.WithLabelValues(action, outcome).Inc()
	c.actionLatency.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordNotifyFailure は通知送信失敗を記録する。
func (c *Collector) RecordNotifyFailure() {
	c.notifyFail.Inc()
}

// SetScheduledEvents は待機中の打刻予定数を設定する。
func (c *Collector) SetScheduledEvents(count int) {
	c.scheduledEvents.Set(float64(count))
}

// Nop は何も記録しないRecorder。
type Nop struct{}

func (Nop) RecordAction(string, string, time.Duration) {}
func (Nop) RecordHTTPStatus(int)                       {}
func (Nop) RecordNotifyFailure()                       {}
func (Nop) SetScheduledEvents(int)                     {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
