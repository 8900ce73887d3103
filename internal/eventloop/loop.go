// Package eventloop provides the single sequential loop the order engine runs
// on, and the deferred-task queue used for fire-and-forget work scheduled
// "for the next tick" (resyncs, notifications).
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrStopped is returned when posting to a loop that is no longer running.
var ErrStopped = errors.New("eventloop: loop stopped")

// Logger records task failures. It matches logbook.Logbook's Printf.
type Logger interface {
	Printf(format string, args ...any)
}

// Queue holds deferred tasks until the owner drains them. Defer is safe from
// any goroutine; Drain must only be called by the owning loop.
type Queue struct {
	mu     sync.Mutex
	tasks  []func()
	notify chan struct{}
	logger Logger
}

// NewQueue returns an empty queue.
func NewQueue(logger Logger) *Queue {
	return &Queue{notify: make(chan struct{}, 1), logger: logger}
}

// Defer schedules task to run on the next drain.
func (q *Queue) Defer(task func()) {
	if task == nil {
		return
	}
	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pending reports how many tasks wait for the next drain.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Ready fires after Defer so a loop can wake up and drain.
func (q *Queue) Ready() <-chan struct{} {
	return q.notify
}

// Drain runs the tasks queued before the call. Tasks deferred while draining
// wait for the next drain, so a task that reschedules itself cannot spin.
func (q *Queue) Drain() int {
	q.mu.Lock()
	batch := q.tasks
	q.tasks = nil
	q.mu.Unlock()
	for _, task := range batch {
		q.run(task)
	}
	return len(batch)
}

func (q *Queue) run(task func()) {
	defer func() {
		if r := recover(); r != nil && q.logger != nil {
			q.logger.Printf("eventloop: deferred task panicked: %v", r)
		}
	}()
	task()
}

// Loop serializes posted functions onto one goroutine and drains its queue
// after each of them.
type Loop struct {
	posts   chan func()
	queue   *Queue
	logger  Logger
	mu      sync.Mutex
	running bool
	stopped chan struct{}
}

// Option customizes a Loop.
type Option func(*Loop)

// WithLogger records panics raised by posted functions.
func WithLogger(logger Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithBacklog sets how many posts may wait before Post blocks.
func WithBacklog(size int) Option {
	return func(l *Loop) {
		if size > 0 {
			l.posts = make(chan func(), size)
		}
	}
}

// New builds a loop. Call Run to start it.
func New(opts ...Option) *Loop {
	l := &Loop{
		posts:   make(chan func(), 64),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	l.queue = NewQueue(l.logger)
	return l
}

// Queue exposes the deferred-task queue.
func (l *Loop) Queue() *Queue { return l.queue }

// Defer schedules a task for after the current post.
func (l *Loop) Defer(task func()) { l.queue.Defer(task) }

// Post enqueues fn for the loop goroutine without waiting.
func (l *Loop) Post(fn func()) error {
	if fn == nil {
		return nil
	}
	select {
	case <-l.stopped:
		return ErrStopped
	default:
	}
	select {
	case l.posts <- fn:
		return nil
	case <-l.stopped:
		return ErrStopped
	}
}

// Do runs fn on the loop goroutine and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := l.Post(func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		return ErrStopped
	}
}

// Flush waits until every deferred task, including tasks those tasks
// deferred in turn, has run.
func (l *Loop) Flush(ctx context.Context) error {
	for {
		pending := 0
		if err := l.Do(ctx, func() { pending = l.queue.Pending() }); err != nil {
			return err
		}
		if pending == 0 {
			return nil
		}
	}
}

// Run processes posts until ctx is cancelled. It returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return fmt.Errorf("eventloop: already running")
	}
	l.running = true
	l.mu.Unlock()
	defer close(l.stopped)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.posts:
			l.run(fn)
			l.queue.Drain()
		case <-l.queue.Ready():
			l.queue.Drain()
		}
	}
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil && l.logger != nil {
			l.logger.Printf("eventloop: posted task panicked: %v", r)
		}
	}()
	fn()
}
