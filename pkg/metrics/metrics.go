// Package metrics はchatsyncのPrometheusメトリクスを提供する。
//
// 全てのメソッドはnilレシーバで何もしないため、テストではnilを渡してよい。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics はchatsyncのメトリクス一式を保持する。
type Metrics struct {
	registry      *prometheus.Registry
	invocations   *prometheus.CounterVec
	notifications *prometheus.CounterVec
	purgePages    prometheus.Counter
	purgedChats   prometheus.Counter
	deactivated   prometheus.Counter
}

// New は専用レジストリに登録したメトリクスを生成する。
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatsync_trigger_invocations_total",
			Help: "Number of trigger handler invocations by event kind and outcome.",
		}, []string{"kind", "outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatsync_notifications_total",
			Help: "Number of per-recipient notification dispatches by status.",
		}, []string{"status"}),
		purgePages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_purge_pages_total",
			Help: "Number of message pages deleted by the purge engine.",
		}),
		purgedChats: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_purged_chats_total",
			Help: "Number of chats fully deleted by the purge engine.",
		}),
		deactivated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_stories_deactivated_total",
			Help: "Number of stories deactivated by the expiry sweeper.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.invocations,
		m.notifications,
		m.purgePages,
		m.purgedChats,
		m.deactivated,
	)
	return m
}

// Handler は /metrics で公開するHTTPハンドラを返す。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry は内部のレジストリを返す。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Invocation はトリガーハンドラの実行結果を記録する。
func (m *Metrics) Invocation(kind, outcome string) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(kind, outcome).Inc()
}

// Notification は宛先ごとの通知結果を記録する。
func (m *Metrics) Notification(status string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(status).Inc()
}

// PurgePage は削除したメッセージページを記録する。
func (m *Metrics) PurgePage() {
	if m == nil {
		return
	}
	m.purgePages.Inc()
}

// PurgedChat は削除したチャットを記録する。
func (m *Metrics) PurgedChat() {
	if m == nil {
		return
	}
	m.purgedChats.Inc()
}

// StoriesDeactivated は無効化したストーリー数を記録する。
func (m *Metrics) StoriesDeactivated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.deactivated.Add(float64(n))
}
