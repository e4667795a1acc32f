package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/actionartem/taskganttback/internal/pkg/metrics"
	"github.com/actionartem/taskganttback/internal/pkg/queue"
)

// Deliverer 执行一次实际投递：解析绑定身份，发送，吞掉所有失败。
type Deliverer struct {
	resolver ChatResolver
	notifier Notifier
	logger   *slog.Logger
	timeout  time.Duration
}

// NewDeliverer 创建投递执行器。notifier 为 nil 时只记日志。
func NewDeliverer(resolver ChatResolver, notifier Notifier, timeout time.Duration, logger *slog.Logger) *Deliverer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Deliverer{
		resolver: resolver,
		notifier: notifier,
		logger:   logger,
		timeout:  timeout,
	}
}

// Deliver 向用户投递一条通知。
//
// 用户未绑定身份是静默无操作；任何投递失败只记日志并计数，
// 永远返回给上层 nil 以外的错误只用于队列统计。
func (d *Deliverer) Deliver(ctx context.Context, userID uint, text string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	chatID, linked, err := d.resolver.TelegramChatID(ctx, userID)
	if err != nil {
		metrics.NotifyFailedTotal.Inc()
		d.logger.Warn("resolve chat id failed",
			slog.Uint64("user_id", uint64(userID)),
			slog.String("error", err.Error()))
		return err
	}
	if !linked {
		metrics.NotifySkippedTotal.Inc()
		return nil
	}
	if d.notifier == nil {
		d.logger.Info("notifier not configured, drop notification",
			slog.Uint64("user_id", uint64(userID)))
		metrics.NotifySkippedTotal.Inc()
		return nil
	}

	if err := d.notifier.Send(ctx, chatID, text); err != nil {
		metrics.NotifyFailedTotal.Inc()
		d.logger.Warn("notification send failed",
			slog.Uint64("user_id", uint64(userID)),
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()))
		return err
	}

	metrics.NotifySentTotal.Inc()
	d.logger.Info("notification sent",
		slog.Uint64("user_id", uint64(userID)),
		slog.Int64("chat_id", chatID))
	return nil
}

// QueueDispatcher 把通知事件丢进内存队列，由 worker 池异步投递。
type QueueDispatcher struct {
	q         *queue.Queue
	deliverer *Deliverer
}

// NewQueueDispatcher 创建内存队列派发器。
func NewQueueDispatcher(q *queue.Queue, deliverer *Deliverer) *QueueDispatcher {
	return &QueueDispatcher{q: q, deliverer: deliverer}
}

// Dispatch 非阻塞入队；队列满时事件被丢弃并计数。
func (d *QueueDispatcher) Dispatch(userID uint, text string) {
	ok := d.q.Enqueue(func(ctx context.Context) error {
		return d.deliverer.Deliver(ctx, userID, text)
	})
	if ok {
		metrics.NotifyEnqueuedTotal.Inc()
	} else {
		metrics.NotifyDroppedTotal.Inc()
	}
}
