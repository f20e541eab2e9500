// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordResumoSuccess(grupoID string)
	RecordResumoFailure(grupoID string, reason string)
	RecordGatewayStatus(statusCode int)
	RecordGatewayLatency(duration time.Duration)
	RecordChatProxy(fallback bool)
	RecordQuotaRejection()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	resumoSuccess  prometheus.Counter
	resumoFail     *prometheus.CounterVec
	gatewayStatus  *prometheus.CounterVec
	gatewayLatency prometheus.Histogram
	chatProxy      *prometheus.CounterVec
	quotaRejected  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		resumoSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "resumefy_resumo_success_total",
			Help: "グループ要約生成成功の合計数",
		}),
		resumoFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resumefy_resumo_fail_total",
			Help: "グループ要約生成失敗の合計数（理由別）",
		}, []string{"reason"}),
		gatewayStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resumefy_gateway_status_total",
			Help: "ゲートウェイのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		gatewayLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "resumefy_gateway_latency_seconds",
			Help:    "ゲートウェイ呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		chatProxy: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resumefy_chat_proxy_total",
			Help: "チャットWebhook仲介の合計数（fallback別）",
		}, []string{"fallback"}),
		quotaRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "resumefy_quota_rejected_total",
			Help: "グループ登録枠超過による拒否の合計数",
		}),
	}

	reg.MustRegister(
		c.resumoSuccess,
		c.resumoFail,
		c.gatewayStatus,
		c.gatewayLatency,
		c.chatProxy,
		c.quotaRejected,
	)

	return c
}

// RecordResumoSuccess は要約生成成功を記録する。
func (c *Collector) RecordResumoSuccess(grupoID string) {
	c.resumoSuccess.Inc()
}

// RecordResumoFailure は要約生成失敗を記録する。
func (c *Collector) RecordResumoFailure(grupoID string, reason string) {
	c.resumoFail.WithLabelValues(reason).Inc()
}

// RecordGatewayStatus はゲートウェイのHTTPステータスコードを記録する。
func (c *Collector) RecordGatewayStatus(statusCode int) {
	c.gatewayStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordGatewayLatency はゲートウェイ呼び出しのレイテンシを記録する。
func (c *Collector) RecordGatewayLatency(duration time.Duration) {
	c.gatewayLatency.Observe(duration.Seconds())
}

// RecordChatProxy はチャットWebhook仲介を記録する。
func (c *Collector) RecordChatProxy(fallback bool) {
	c.chatProxy.WithLabelValues(strconv.FormatBool(fallback)).Inc()
}

// RecordQuotaRejection は登録枠超過による拒否を記録する。
func (c *Collector) RecordQuotaRejection() {
	c.quotaRejected.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// HealthChecker はヘルスチェックに必要なインターフェース。実体は*sql.DB。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// SetupMetricsRoute は/metricsと/healthを提供するHTTPハンドラーを返す。
// APIサーバーを持たないワーカープロセスの運用エンドポイントとして使う。
func SetupMetricsRoute(gatherer prometheus.Gatherer, health HealthChecker) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health.PingContext(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
