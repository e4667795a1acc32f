package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQueue_ExecutesJobs(t *testing.T) {
	q := NewQueue(testLogger(), 3, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	var completed atomic.Int32
	for i := 0; i < 5; i++ {
		ok := q.Enqueue(func(ctx context.Context) error {
			completed.Add(1)
			return nil
		})
		if !ok {
			t.Fatalf("enqueue %d rejected", i)
		}
	}

	if err := q.ShutdownWithTimeout(2 * time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if completed.Load() != 5 {
		t.Fatalf("expected 5 completed jobs, got %d", completed.Load())
	}
}

func TestQueue_DropsWhenFull(t *testing.T) {
	q := NewQueue(testLogger(), 1, 2)
	// 未启动 worker：队列只能装下容量内的任务

	for i := 0; i < 2; i++ {
		if !q.Enqueue(func(ctx context.Context) error { return nil }) {
			t.Fatalf("enqueue %d must fit", i)
		}
	}
	if q.Enqueue(func(ctx context.Context) error { return nil }) {
		t.Fatal("third enqueue must be dropped")
	}
	if q.Dropped() != 1 {
		t.Fatalf("expected 1 dropped, got %d", q.Dropped())
	}
	if q.Len() != 2 {
		t.Fatalf("expected 2 pending, got %d", q.Len())
	}
}

func TestQueue_RejectsAfterShutdown(t *testing.T) {
	q := NewQueue(testLogger(), 1, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	if err := q.ShutdownWithTimeout(time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if q.Enqueue(func(ctx context.Context) error { return nil }) {
		t.Fatal("enqueue after shutdown must be rejected")
	}
	if err := q.ShutdownWithTimeout(time.Second); err == nil {
		t.Fatal("second shutdown must error")
	}
}

func TestQueue_RecoversFromPanic(t *testing.T) {
	q := NewQueue(testLogger(), 1, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	var after atomic.Bool
	q.Enqueue(func(ctx context.Context) error {
		panic("boom")
	})
	q.Enqueue(func(ctx context.Context) error {
		after.Store(true)
		return nil
	})

	if err := q.ShutdownWithTimeout(2 * time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !after.Load() {
		t.Fatal("worker must survive a panicking job")
	}
}

func TestQueue_CountsFailures(t *testing.T) {
	q := NewQueue(testLogger(), 1, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	q.Enqueue(func(ctx context.Context) error {
		return errors.New("delivery failed")
	})

	if err := q.ShutdownWithTimeout(2 * time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if q.failed.Load() != 1 {
		t.Fatalf("expected 1 failed job, got %d", q.failed.Load())
	}
}
