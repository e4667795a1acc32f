package notifyqueue

import (
	"context"
	"log/slog"
	"time"

	"github.com/actionartem/taskganttback/internal/pkg/metrics"
)

// StreamDispatcher 把通知事件发布到 Redis Stream，由独立消费者投递。
//
// Dispatch 同步执行一次 XADD（带短超时），失败只记日志。
type StreamDispatcher struct {
	queue  *NotifyQueue
	logger *slog.Logger
	source string
}

// NewStreamDispatcher 创建 Stream 派发器。
func NewStreamDispatcher(q *NotifyQueue, logger *slog.Logger) *StreamDispatcher {
	return &StreamDispatcher{
		queue:  q,
		logger: logger,
		source: "api",
	}
}

// Dispatch 发布事件。发布失败时事件被丢弃并计数。
func (d *StreamDispatcher) Dispatch(userID uint, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := d.queue.Publish(ctx, NewEvent(userID, text, d.source)); err != nil {
		metrics.NotifyDroppedTotal.Inc()
		d.logger.Error("publish notification event failed",
			slog.Uint64("user_id", uint64(userID)),
			slog.String("error", err.Error()))
		return
	}
	metrics.NotifyEnqueuedTotal.Inc()
}
