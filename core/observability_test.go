package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

type recordingMetrics struct {
	mu         sync.Mutex
	counters   map[string]int64
	histograms map[string]int
	tags       map[string]map[string]string
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		counters:   map[string]int64{},
		histograms: map[string]int{},
		tags:       map[string]map[string]string{},
	}
}

func (m *recordingMetrics) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += value
	m.tags[name] = tags
}

func (m *recordingMetrics) ObserveHistogram(_ context.Context, name string, _ float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms[name]++
	m.tags[name] = tags
}

func TestObserveOperationRecordsMetrics(t *testing.T) {
	metrics := newRecordingMetrics()
	client := &stubIdentityClient{
		signIn: func(context.Context, string, string) (SignInResult, error) {
			return SignInResult{
				Identity: confirmedIdentity("user-1", "user@example.com"),
				Session:  validSession("token-1"),
			}, nil
		},
	}
	service := newTestService(t, client, WithMetricsRecorder(metrics))

	if _, err := service.SignIn(context.Background(), "user@example.com", "secret"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if metrics.counters["appstate.sign_in.total"] != 1 {
		t.Fatalf("counters = %v, want appstate.sign_in.total = 1", metrics.counters)
	}
	if metrics.histograms["appstate.sign_in.duration_ms"] != 1 {
		t.Fatalf("histograms = %v, want one sign_in duration sample", metrics.histograms)
	}
	tags := metrics.tags["appstate.sign_in.total"]
	if tags["status"] != "success" {
		t.Fatalf("tags = %v, want status success", tags)
	}
	if tags["phase"] != string(SessionPhaseAuthenticated) {
		t.Fatalf("tags = %v, want authenticated phase", tags)
	}
}

func TestObserveOperationTagsFailures(t *testing.T) {
	metrics := newRecordingMetrics()
	client := &stubIdentityClient{
		signIn: func(context.Context, string, string) (SignInResult, error) {
			return SignInResult{}, errors.New("invalid login credentials")
		},
	}
	service := newTestService(t, client, WithMetricsRecorder(metrics))

	if _, err := service.SignIn(context.Background(), "user@example.com", "wrong"); err == nil {
		t.Fatal("expected sign-in failure")
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if got := metrics.tags["appstate.sign_in.total"]["status"]; got != "failure" {
		t.Fatalf("status tag = %q, want failure", got)
	}
}

func TestDetachedRunnerClosesCleanly(t *testing.T) {
	runner := NewDetachedRunner(nil, nil)
	done := make(chan struct{})
	runner.Spawn("test.task", nil, func(context.Context) error {
		close(done)
		return nil
	})
	<-done
	if err := runner.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// A closed runner silently drops new work.
	runner.Spawn("test.task", nil, func(context.Context) error {
		t.Error("spawn after close must not run")
		return nil
	})
}

func TestDetachedRunnerReplaysFailures(t *testing.T) {
	enqueued := make(chan *TaskExecutionMessage, 1)
	runner := NewDetachedRunner(nil, enqueuerFunc(func(_ context.Context, msg *TaskExecutionMessage) error {
		enqueued <- msg
		return nil
	}))

	runner.Spawn("onboarding.sync", map[string]any{"identity_key": "user-1"}, func(context.Context) error {
		return fmt.Errorf("stub: write failed")
	})
	if err := runner.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	msg := <-enqueued
	if msg.Kind != "onboarding.sync" {
		t.Fatalf("kind = %q", msg.Kind)
	}
	if msg.IdempotencyKey != "onboarding.sync:"+msg.TaskID {
		t.Fatalf("idempotency key = %q", msg.IdempotencyKey)
	}
	if msg.DedupPolicy != "drop_duplicates" {
		t.Fatalf("dedup policy = %q", msg.DedupPolicy)
	}
	if msg.Parameters["identity_key"] != "user-1" {
		t.Fatalf("parameters = %v", msg.Parameters)
	}
	if msg.Parameters["failure"] == "" {
		t.Fatalf("parameters = %v, want failure reason", msg.Parameters)
	}
}

type enqueuerFunc func(ctx context.Context, msg *TaskExecutionMessage) error

func (f enqueuerFunc) Enqueue(ctx context.Context, msg *TaskExecutionMessage) error {
	return f(ctx, msg)
}
