package core

import (
	"context"
	"errors"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// ErrKeyNotFound is returned by KVStore implementations when no value exists
// for the requested key.
var ErrKeyNotFound = errors.New("core: key not found")

// KVStore is the durable key-value surface shared by the session state,
// onboarding map, and rate-limit entries. Partitions are keyed by prefix and
// carry no cross-partition transactionality.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// IdentityClient is the consumed identity-provider capability. Wire formats
// are the provider's concern; implementations normalize into core types.
type IdentityClient interface {
	GetSession(ctx context.Context) (*Session, error)
	GetUser(ctx context.Context) (*Identity, error)
	SignInWithPassword(ctx context.Context, email, password string) (SignInResult, error)
	SignUp(ctx context.Context, email, password string) (SignUpResult, error)
	SignOut(ctx context.Context) error
	ResetPasswordForEmail(ctx context.Context, email string, redirectTo string) error
	ResendConfirmation(ctx context.Context, email string) error
	VerifyEmail(ctx context.Context, token string) (*Identity, error)
	// ExchangeCodeForSession must be safe to call with an already-consumed
	// code: the second call returns an error without corrupting the
	// established session.
	ExchangeCodeForSession(ctx context.Context, code string) (*Session, error)
	// OnSessionChange registers a push-style listener and returns its
	// unsubscribe handle.
	OnSessionChange(callback func(session *Session)) (unsubscribe func())
}

// EntitlementClient is the consumed entitlement-provider capability.
type EntitlementClient interface {
	Configure(ctx context.Context, options map[string]any) error
	LogIn(ctx context.Context, identityKey string) error
	LogOut(ctx context.Context) error
	GetEntitlementSnapshot(ctx context.Context) (EntitlementSnapshot, error)
	Purchase(ctx context.Context, productRef string) (EntitlementSnapshot, error)
	Restore(ctx context.Context) (EntitlementSnapshot, error)
}

// EntitlementSessionControl is the slice of the entitlement capability the
// session machine needs: binding and unbinding the provider to an identity.
type EntitlementSessionControl interface {
	LogIn(ctx context.Context, identityKey string) error
	LogOut(ctx context.Context) error
}

// OnboardingStore is the remote authoritative source for per-identity
// onboarding completion.
type OnboardingStore interface {
	GetCompleted(ctx context.Context, identityKey string) (bool, error)
	SetCompleted(ctx context.Context, identityKey string, completed bool) error
}

// LifecyclePublisher fans a non-nil lifecycle event out to registered
// listeners.
type LifecyclePublisher interface {
	Publish(event LifecycleEvent)
}

// RateLimitPolicy guards sensitive operation attempts. Implementations fail
// open on storage errors: availability of the protected operation wins over
// strict enforcement on a client-side control.
type RateLimitPolicy interface {
	Allow(ctx context.Context, class RateLimitClass, subject string) (RateLimitDecision, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// TaskExecutionMessage describes a detached unit of background work (an
// onboarding or preference write whose result is only ever logged).
type TaskExecutionMessage struct {
	TaskID         string
	Kind           string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type TaskNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type TaskEnqueuer interface {
	Enqueue(ctx context.Context, msg *TaskExecutionMessage) error
}

type TaskDelivery interface {
	Message() *TaskExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts TaskNackOptions) error
}

type TaskDequeuer interface {
	Dequeue(ctx context.Context) (TaskDelivery, error)
}

type TaskWorkerHook interface {
	OnStart(ctx context.Context, event TaskWorkerEvent)
	OnSuccess(ctx context.Context, event TaskWorkerEvent)
	OnFailure(ctx context.Context, event TaskWorkerEvent)
	OnRetry(ctx context.Context, event TaskWorkerEvent)
}

type TaskWorkerEvent struct {
	Message   *TaskExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}
