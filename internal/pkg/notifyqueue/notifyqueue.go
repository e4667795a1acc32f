package notifyqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event 是通知队列中的消息结构。
type Event struct {
	UserID     uint      `json:"user_id"`     // 接收用户
	Text       string    `json:"text"`        // 消息正文
	Source     string    `json:"source"`      // 事件来源: "task_create" / "task_reassign" / "reminder"
	EnqueuedAt time.Time `json:"enqueued_at"` // 入队时间
}

// NewEvent 创建通知事件。
func NewEvent(userID uint, text string, source string) *Event {
	if source == "" {
		source = "unknown"
	}
	return &Event{
		UserID:     userID,
		Text:       text,
		Source:     source,
		EnqueuedAt: time.Now(),
	}
}

// NotifyQueue 封装 Redis Streams 的通知队列操作。
type NotifyQueue struct {
	rdb        *redis.Client
	logger     *slog.Logger
	streamName string
}

// NewNotifyQueue 创建队列实例。
func NewNotifyQueue(rdb *redis.Client, logger *slog.Logger, streamName string) *NotifyQueue {
	if streamName == "" {
		streamName = "tracker:notify:queue"
	}
	return &NotifyQueue{
		rdb:        rdb,
		logger:     logger,
		streamName: streamName,
	}
}

// Publish 发布一条通知事件（XADD）。
func (q *NotifyQueue) Publish(ctx context.Context, ev *Event) error {
	if ev == nil {
		return fmt.Errorf("event is nil")
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	return q.publishRaw(ctx, q.streamName, map[string]interface{}{
		"data": string(data),
	})
}

func (q *NotifyQueue) publishRaw(ctx context.Context, stream string, values map[string]interface{}) error {
	args := &redis.XAddArgs{
		Stream: stream,
		MaxLen: 10000,
		Approx: true,
		Values: values,
	}

	msgID, err := q.rdb.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("xadd failed: %w", err)
	}

	q.logger.Debug("notification event published",
		slog.String("stream", stream),
		slog.String("msg_id", msgID))
	return nil
}

// CreateConsumerGroup 创建消费者组，已存在则忽略。
func (q *NotifyQueue) CreateConsumerGroup(ctx context.Context, groupName string) error {
	err := q.rdb.XGroupCreateMkStream(ctx, q.streamName, groupName, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// Len 返回 Stream 中消息数量。
func (q *NotifyQueue) Len(ctx context.Context) (int64, error) {
	length, err := q.rdb.XLen(ctx, q.streamName).Result()
	if err != nil {
		return 0, fmt.Errorf("xlen failed: %w", err)
	}
	return length, nil
}

func parseEvent(data string) (*Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return &ev, nil
}
