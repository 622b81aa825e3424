package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-appstate/core"
)

// State is the persisted per-(class, subject) window counter. The window is
// fixed, not sliding: the first attempt opens it and sets ResetAt, and every
// attempt inside it increments Attempts.
type State struct {
	Attempts int       `json:"attempts"`
	ResetAt  time.Time `json:"reset_at"`
}

// Limiter enforces fixed-window attempt budgets on top of a KVStore. It is a
// client-side friction control, not a security boundary, so every storage
// failure resolves to allow.
type Limiter struct {
	store  core.KVStore
	config core.RateLimitConfig
	logger core.Logger
	prefix string
	now    func() time.Time
}

type Option func(*Limiter)

func WithLogger(logger core.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

func WithKeyPrefix(prefix string) Option {
	return func(l *Limiter) {
		if strings.TrimSpace(prefix) != "" {
			l.prefix = prefix
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

func New(store core.KVStore, config core.RateLimitConfig, options ...Option) *Limiter {
	limiter := &Limiter{
		store:  store,
		config: config,
		logger: glog.Ensure(nil),
		prefix: "appstate::ratelimit",
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(limiter)
	}
	return limiter
}

// Allow consumes one attempt for (class, subject) and reports the decision.
// A denied attempt does not increment the counter, so hammering a denied
// subject cannot push ResetAt further out.
func (l *Limiter) Allow(ctx context.Context, class core.RateLimitClass, subject string) (core.RateLimitDecision, error) {
	if l == nil || l.store == nil {
		return core.RateLimitDecision{Allowed: true}, nil
	}
	rule := l.config.Rule(class)
	if rule.MaxAttempts <= 0 || rule.WindowMinutes <= 0 {
		return core.RateLimitDecision{Allowed: true}, nil
	}

	now := l.now()
	key := l.stateKey(class, subject)

	state, err := l.loadState(ctx, key)
	if err != nil {
		l.logger.Error("rate limit state read failed, allowing attempt",
			"class", string(class),
			"error", err.Error(),
		)
		return core.RateLimitDecision{Allowed: true, Remaining: rule.MaxAttempts}, nil
	}

	if state == nil || !now.Before(state.ResetAt) {
		state = &State{Attempts: 0, ResetAt: now.Add(rule.Window())}
	}

	if state.Attempts >= rule.MaxAttempts {
		return core.RateLimitDecision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: state.ResetAt.Sub(now),
		}, nil
	}

	state.Attempts++
	if err := l.saveState(ctx, key, state); err != nil {
		l.logger.Error("rate limit state write failed, allowing attempt",
			"class", string(class),
			"error", err.Error(),
		)
		return core.RateLimitDecision{Allowed: true, Remaining: rule.MaxAttempts - state.Attempts}, nil
	}

	return core.RateLimitDecision{
		Allowed:    true,
		Remaining:  rule.MaxAttempts - state.Attempts,
		RetryAfter: 0,
	}, nil
}

// Reset clears the window for (class, subject). A successful sign-in calls
// this so a later legitimate retry starts fresh.
func (l *Limiter) Reset(ctx context.Context, class core.RateLimitClass, subject string) error {
	if l == nil || l.store == nil {
		return nil
	}
	err := l.store.Delete(ctx, l.stateKey(class, subject))
	if err != nil && !errors.Is(err, core.ErrKeyNotFound) {
		return err
	}
	return nil
}

func (l *Limiter) loadState(ctx context.Context, key string) (*State, error) {
	raw, err := l.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, core.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		// Corrupted entry: treat as a fresh window rather than failing.
		l.logger.Error("rate limit state corrupted, resetting window", "error", err.Error())
		return nil, nil
	}
	return &state, nil
}

func (l *Limiter) saveState(ctx context.Context, key string, state *State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return l.store.Set(ctx, key, raw)
}

func (l *Limiter) stateKey(class core.RateLimitClass, subject string) string {
	return l.prefix + "::" + string(class) + "::" + strings.ToLower(strings.TrimSpace(subject))
}

var _ core.RateLimitPolicy = (*Limiter)(nil)
