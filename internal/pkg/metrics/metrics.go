package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 全局指标。必须先调用 InitMetrics 再使用。
var (
	// 一次性绑定码
	CodesIssuedTotal   prometheus.Counter // 签发总数
	CodesRedeemedTotal prometheus.Counter // 兑换成功总数
	CodesRejectedTotal prometheus.Counter // 兑换失败（无效/过期）总数

	// 通知派发
	NotifyEnqueuedTotal prometheus.Counter // 入队总数
	NotifyDroppedTotal  prometheus.Counter // 队列满被丢弃总数
	NotifySentTotal     prometheus.Counter // 投递成功总数
	NotifyFailedTotal   prometheus.Counter // 投递失败总数（已吞掉）
	NotifySkippedTotal  prometheus.Counter // 用户未绑定而跳过总数
	NotifyDLQTotal      prometheus.Counter // 进入死信流的坏消息总数

	// 限流
	RateLimitRejectedTotal prometheus.Counter // 签发限流拒绝总数
)

var initOnce sync.Once

// InitMetrics 注册 Prometheus 指标（幂等）。
func InitMetrics() {
	initOnce.Do(func() {
		CodesIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "tracker_login_codes_issued_total",
			Help: "Total number of one-time telegram link codes issued.",
		})
		CodesRedeemedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "tracker_login_codes_redeemed_total",
			Help: "Total number of one-time codes successfully redeemed.",
		})
		CodesRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "tracker_login_codes_rejected_total",
			Help: "Total number of invalid or expired code redemptions.",
		})

		NotifyEnqueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "tracker_notify_enqueued_total",
			Help: "Total number of notification events enqueued.",
		})
		NotifyDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "tracker_notify_dropped_total",
			Help: "Total number of notification events dropped on full queue.",
		})
		NotifySentTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "tracker_notify_sent_total",
			Help: "Total number of notifications delivered.",
		})
		NotifyFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "tracker_notify_failed_total",
			Help: "Total number of notification deliveries that failed.",
		})
		NotifySkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "tracker_notify_skipped_total",
			Help: "Total number of notifications skipped (no linked identity).",
		})
		NotifyDLQTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "tracker_notify_dlq_total",
			Help: "Total number of poison notification messages dead-lettered.",
		})

		RateLimitRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "tracker_code_ratelimit_rejected_total",
			Help: "Total number of code issuance requests rejected by the rate limiter.",
		})
	})
}
