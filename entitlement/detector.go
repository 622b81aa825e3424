package entitlement

import (
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-appstate/core"
)

// transitionRule pairs a predicate with the event it produces. Rules are
// evaluated top to bottom and the first match wins, which resolves
// ambiguous simultaneous transitions deterministically: a renewal that also
// clears a billing issue reports renewed, not restored.
type transitionRule struct {
	kind    core.LifecycleEventKind
	matches func(previous *core.EntitlementSnapshot, current core.EntitlementSnapshot) bool
}

var transitionRules = []transitionRule{
	{
		kind: core.LifecycleTrialStarted,
		matches: func(previous *core.EntitlementSnapshot, current core.EntitlementSnapshot) bool {
			return previous == nil && current.IsActive() && current.IsTrial
		},
	},
	{
		kind: core.LifecycleSubscriptionStarted,
		matches: func(previous *core.EntitlementSnapshot, current core.EntitlementSnapshot) bool {
			return previous == nil && current.IsActive() && !current.IsTrial
		},
	},
	{
		kind: core.LifecycleTrialConverted,
		matches: func(previous *core.EntitlementSnapshot, current core.EntitlementSnapshot) bool {
			return previous != nil && previous.IsTrial && current.IsActive() && !current.IsTrial
		},
	},
	{
		kind: core.LifecycleTrialCancelled,
		matches: func(previous *core.EntitlementSnapshot, current core.EntitlementSnapshot) bool {
			return previous != nil && previous.IsTrial && previous.IsActive() && !current.IsActive()
		},
	},
	{
		kind: core.LifecycleSubscriptionRenewed,
		matches: func(previous *core.EntitlementSnapshot, current core.EntitlementSnapshot) bool {
			return previous != nil && previous.IsActive() && current.IsActive() &&
				expiresLater(current.ExpiresAt, previous.ExpiresAt)
		},
	},
	{
		kind: core.LifecycleSubscriptionCancelled,
		matches: func(previous *core.EntitlementSnapshot, current core.EntitlementSnapshot) bool {
			return previous != nil && previous.WillRenew && !current.WillRenew && current.IsActive()
		},
	},
	{
		// Paused sits between cancelled and expired: the provider reports a
		// pause while the entitlement has not lapsed outright.
		kind: core.LifecycleSubscriptionPaused,
		matches: func(previous *core.EntitlementSnapshot, current core.EntitlementSnapshot) bool {
			return previous != nil && previous.IsActive() &&
				current.Status == core.EntitlementStatusPaused
		},
	},
	{
		kind: core.LifecycleSubscriptionExpired,
		matches: func(previous *core.EntitlementSnapshot, current core.EntitlementSnapshot) bool {
			return previous != nil && previous.IsActive() && !current.IsActive() && !current.WillRenew
		},
	},
	{
		kind: core.LifecycleBillingIssue,
		matches: func(previous *core.EntitlementSnapshot, current core.EntitlementSnapshot) bool {
			return previous != nil && previous.BillingIssueAt == nil && current.BillingIssueAt != nil
		},
	},
	{
		kind: core.LifecycleSubscriptionRestored,
		matches: func(previous *core.EntitlementSnapshot, current core.EntitlementSnapshot) bool {
			return previous != nil && !previous.IsActive() && current.IsActive()
		},
	},
}

// Detect compares two entitlement snapshots and returns at most one
// lifecycle event, or nil when no rule matches. It is a pure, total
// function with no side effects.
func Detect(previous *core.EntitlementSnapshot, current core.EntitlementSnapshot, occurredAt time.Time) *core.LifecycleEvent {
	for _, rule := range transitionRules {
		if !rule.matches(previous, current) {
			continue
		}
		event := &core.LifecycleEvent{
			ID:         uuid.NewString(),
			Kind:       rule.kind,
			OccurredAt: occurredAt,
			ProductID:  current.ProductID,
		}
		if current.ExpiresAt != nil {
			expiresAt := *current.ExpiresAt
			event.ExpiresAt = &expiresAt
		}
		return event
	}
	return nil
}

func expiresLater(current, previous *time.Time) bool {
	if current == nil || previous == nil {
		return false
	}
	return current.After(*previous)
}
