package eventloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingLogger) Printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func TestQueueDrainRunsOnlyQueuedTasks(t *testing.T) {
	q := NewQueue(nil)
	var ran []int
	q.Defer(func() {
		ran = append(ran, 1)
		q.Defer(func() { ran = append(ran, 3) })
	})
	q.Defer(func() { ran = append(ran, 2) })
	if n := q.Drain(); n != 2 {
		t.Fatalf("first drain ran %d tasks, want 2", n)
	}
	if q.Pending() != 1 {
		t.Fatalf("rescheduled task should wait for next drain")
	}
	q.Drain()
	if len(ran) != 3 || ran[2] != 3 {
		t.Fatalf("unexpected run order %v", ran)
	}
}

func TestQueueRecoversPanics(t *testing.T) {
	logger := &recordingLogger{}
	q := NewQueue(logger)
	ran := false
	q.Defer(func() { panic("boom") })
	q.Defer(func() { ran = true })
	q.Drain()
	if !ran {
		t.Fatalf("task after panic should still run")
	}
	if len(logger.lines) != 1 {
		t.Fatalf("expected one logged panic, got %v", logger.lines)
	}
}

func TestLoopSerializesAndDrains(t *testing.T) {
	loop := New()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(ctx) }()

	var order []string
	if err := loop.Do(ctx, func() {
		order = append(order, "post")
		loop.Defer(func() { order = append(order, "deferred") })
	}); err != nil {
		t.Fatalf("do: %v", err)
	}
	if err := loop.Do(ctx, func() { order = append(order, "second") }); err != nil {
		t.Fatalf("do: %v", err)
	}
	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("loop did not stop")
	}
	want := []string{"post", "deferred", "second"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if err := loop.Post(func() {}); !errors.Is(err, ErrStopped) {
		t.Fatalf("post after stop = %v, want ErrStopped", err)
	}
}

func TestFlushWaitsForChainedDeferrals(t *testing.T) {
	loop := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx) }()

	var ran []string
	if err := loop.Do(ctx, func() {
		loop.Defer(func() {
			ran = append(ran, "first")
			loop.Defer(func() { ran = append(ran, "second") })
		})
	}); err != nil {
		t.Fatalf("do: %v", err)
	}
	if err := loop.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	var got []string
	if err := loop.Do(ctx, func() { got = append(got, ran...) }); err != nil {
		t.Fatalf("do: %v", err)
	}
	if len(got) != 2 || got[1] != "second" {
		t.Fatalf("ran = %v, want [first second]", got)
	}
}
