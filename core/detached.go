package core

import (
	"context"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

const defaultDetachedTimeout = 15 * time.Second

// DetachedRunner executes fire-and-forget background work: a spawned unit
// whose result is only ever logged, never awaited by the caller. A detached
// write may complete after the logically-dependent foreground operation has
// already returned; that is allowed to win silently.
type DetachedRunner struct {
	logger   Logger
	enqueuer TaskEnqueuer
	timeout  time.Duration
	now      func() time.Time

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func NewDetachedRunner(logger Logger, enqueuer TaskEnqueuer) *DetachedRunner {
	return &DetachedRunner{
		logger:   glog.Ensure(logger),
		enqueuer: enqueuer,
		timeout:  defaultDetachedTimeout,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Spawn runs fn on its own goroutine. Failures are logged and, when a task
// enqueuer is configured, handed to the durable queue for host-level replay.
func (r *DetachedRunner) Spawn(kind string, params map[string]any, fn func(ctx context.Context) error) {
	if r == nil || fn == nil {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	taskID := uuid.NewString()
	kind = strings.TrimSpace(kind)
	startedAt := r.now()

	go func() {
		defer r.wg.Done()

		ctx := context.Background()
		cancel := func() {}
		if r.timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
		}
		defer cancel()

		err := fn(ctx)
		fields := []any{
			"task_id", taskID,
			"task_kind", kind,
			"duration_ms", time.Since(startedAt).Milliseconds(),
		}
		if err == nil {
			r.logger.Info("detached task completed", fields...)
			return
		}
		r.logger.Error("detached task failed", append(fields, "error", err.Error())...)
		r.replay(kind, taskID, params, err)
	}()
}

func (r *DetachedRunner) replay(kind string, taskID string, params map[string]any, cause error) {
	if r.enqueuer == nil {
		return
	}
	msg := &TaskExecutionMessage{
		TaskID:         taskID,
		Kind:           kind,
		Parameters:     copyAnyMap(params),
		IdempotencyKey: kind + ":" + taskID,
		DedupPolicy:    "drop_duplicates",
	}
	if msg.Parameters == nil {
		msg.Parameters = map[string]any{}
	}
	msg.Parameters["failure"] = cause.Error()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.enqueuer.Enqueue(ctx, msg); err != nil {
		r.logger.Error("detached task replay enqueue failed",
			"task_id", taskID,
			"task_kind", kind,
			"error", err.Error(),
		)
	}
}

// Close stops accepting new work and waits for in-flight tasks up to the
// context deadline.
func (r *DetachedRunner) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
