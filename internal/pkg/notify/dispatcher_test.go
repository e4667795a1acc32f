package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/actionartem/taskganttback/internal/pkg/metrics"
	"github.com/actionartem/taskganttback/internal/pkg/queue"
)

type mockResolver struct {
	chats map[uint]int64
	err   error
}

func (m *mockResolver) TelegramChatID(ctx context.Context, userID uint) (int64, bool, error) {
	if m.err != nil {
		return 0, false, m.err
	}
	chat, ok := m.chats[userID]
	return chat, ok, nil
}

type mockNotifier struct {
	mu    sync.Mutex
	sent  []sentMessage
	err   error
	calls int
}

type sentMessage struct {
	ChatID int64
	Text   string
}

func (m *mockNotifier) Send(ctx context.Context, chatID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (m *mockNotifier) messages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDeliverer_SendsToLinkedUser(t *testing.T) {
	metrics.InitMetrics()
	notifier := &mockNotifier{}
	d := NewDeliverer(&mockResolver{chats: map[uint]int64{7: 700}}, notifier, time.Second, testLogger())

	if err := d.Deliver(context.Background(), 7, "hello"); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	got := notifier.messages()
	if len(got) != 1 || got[0].ChatID != 700 || got[0].Text != "hello" {
		t.Fatalf("unexpected sends: %+v", got)
	}
}

func TestDeliverer_SkipsUnlinkedUser(t *testing.T) {
	metrics.InitMetrics()
	notifier := &mockNotifier{}
	d := NewDeliverer(&mockResolver{chats: map[uint]int64{}}, notifier, time.Second, testLogger())

	if err := d.Deliver(context.Background(), 7, "hello"); err != nil {
		t.Fatalf("unlinked user must be a silent no-op, got %v", err)
	}
	if notifier.calls != 0 {
		t.Fatalf("expected no send attempts, got %d", notifier.calls)
	}
}

func TestDeliverer_NilNotifierIsNoop(t *testing.T) {
	metrics.InitMetrics()
	d := NewDeliverer(&mockResolver{chats: map[uint]int64{7: 700}}, nil, time.Second, testLogger())

	if err := d.Deliver(context.Background(), 7, "hello"); err != nil {
		t.Fatalf("nil notifier must be a no-op, got %v", err)
	}
}

func TestDeliverer_SendFailureIsSwallowedByQueue(t *testing.T) {
	metrics.InitMetrics()
	notifier := &mockNotifier{err: errors.New("telegram down")}
	d := NewDeliverer(&mockResolver{chats: map[uint]int64{7: 700}}, notifier, time.Second, testLogger())

	q := queue.NewQueue(testLogger(), 1, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	disp := NewQueueDispatcher(q, d)
	disp.Dispatch(7, "hello")

	if err := q.ShutdownWithTimeout(2 * time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if notifier.calls != 1 {
		t.Fatalf("expected one attempt, got %d", notifier.calls)
	}
}

func TestQueueDispatcher_DeliversAsync(t *testing.T) {
	metrics.InitMetrics()
	notifier := &mockNotifier{}
	d := NewDeliverer(&mockResolver{chats: map[uint]int64{1: 10, 2: 20}}, notifier, time.Second, testLogger())

	q := queue.NewQueue(testLogger(), 2, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	disp := NewQueueDispatcher(q, d)
	disp.Dispatch(1, "first")
	disp.Dispatch(2, "second")

	if err := q.ShutdownWithTimeout(2 * time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if len(notifier.messages()) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(notifier.messages()))
	}
}

func TestNopDispatcher(t *testing.T) {
	NopDispatcher{}.Dispatch(1, "dropped") // 不应 panic
}
