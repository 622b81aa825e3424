package gojob

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-appstate/core"

	job "github.com/goliatone/go-job"
)

func TestExecutionMessageMappingRoundTrip(t *testing.T) {
	original := &core.TaskExecutionMessage{
		TaskID:         "task-1",
		Kind:           TaskIDOnboardingSync,
		Parameters:     map[string]any{"identity_key": "user-1"},
		IdempotencyKey: TaskIDOnboardingSync + ":task-1",
		DedupPolicy:    "drop_duplicates",
	}

	mapped := ToExecutionMessage(original)
	if mapped.JobID != TaskIDOnboardingSync {
		t.Fatalf("job id = %q, want %q", mapped.JobID, TaskIDOnboardingSync)
	}
	if mapped.Parameters[taskIDParameter] != "task-1" {
		t.Fatalf("parameters = %v, want task id carried through", mapped.Parameters)
	}
	if mapped.DedupPolicy != job.DeduplicationPolicy("drop_duplicates") {
		t.Fatalf("dedup policy = %q", mapped.DedupPolicy)
	}

	back := FromExecutionMessage(mapped)
	if back.TaskID != "task-1" || back.Kind != TaskIDOnboardingSync {
		t.Fatalf("round trip = %+v", back)
	}
	if _, leaked := back.Parameters[taskIDParameter]; leaked {
		t.Fatal("task id parameter must be stripped on reverse mapping")
	}
	if back.Parameters["identity_key"] != "user-1" {
		t.Fatalf("parameters = %v", back.Parameters)
	}
}

func TestExecutionMessageMappingNil(t *testing.T) {
	if ToExecutionMessage(nil) != nil {
		t.Fatal("nil message must map to nil")
	}
	if FromExecutionMessage(nil) != nil {
		t.Fatal("nil message must map to nil")
	}
}

func TestRetryPolicyNormalizeAttempt(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, MaxDelay: time.Minute, DeadLetterOnMax: true}

	cases := []struct {
		name           string
		opts           core.TaskNackOptions
		attempt        int
		wantRequeue    bool
		wantDeadLetter bool
		wantDelay      time.Duration
	}{
		{
			name:        "first attempt requeues",
			opts:        core.TaskNackOptions{Requeue: true, Delay: 5 * time.Second},
			attempt:     1,
			wantRequeue: true,
			wantDelay:   5 * time.Second,
		},
		{
			name:        "delay clamped to max",
			opts:        core.TaskNackOptions{Requeue: true, Delay: time.Hour},
			attempt:     1,
			wantRequeue: true,
			wantDelay:   time.Minute,
		},
		{
			name:        "negative delay reset",
			opts:        core.TaskNackOptions{Requeue: true, Delay: -time.Second},
			attempt:     1,
			wantRequeue: true,
		},
		{
			name:           "max attempts dead-letters",
			opts:           core.TaskNackOptions{Requeue: true},
			attempt:        3,
			wantRequeue:    false,
			wantDeadLetter: true,
		},
		{
			name:           "explicit dead letter wins over requeue",
			opts:           core.TaskNackOptions{Requeue: true, DeadLetter: true},
			attempt:        1,
			wantRequeue:    false,
			wantDeadLetter: true,
		},
		{
			name:        "neither flag defaults to requeue",
			opts:        core.TaskNackOptions{},
			attempt:     1,
			wantRequeue: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := policy.NormalizeAttempt(tc.opts, tc.attempt)
			if got.Requeue != tc.wantRequeue {
				t.Fatalf("requeue = %v, want %v", got.Requeue, tc.wantRequeue)
			}
			if got.DeadLetter != tc.wantDeadLetter {
				t.Fatalf("dead letter = %v, want %v", got.DeadLetter, tc.wantDeadLetter)
			}
			if got.Delay != tc.wantDelay {
				t.Fatalf("delay = %v, want %v", got.Delay, tc.wantDelay)
			}
		})
	}
}

func TestEnqueuerAdapterGuards(t *testing.T) {
	var adapter *EnqueuerAdapter
	if err := adapter.Enqueue(context.Background(), &core.TaskExecutionMessage{Kind: "x"}); err == nil {
		t.Fatal("nil adapter must error")
	}
	if err := NewEnqueuerAdapter(nil).Enqueue(context.Background(), nil); err == nil {
		t.Fatal("missing enqueuer must error")
	}
}
