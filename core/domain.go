package core

import (
	"strings"
	"time"
)

// GuestOnboardingKey is the sentinel onboarding key used when no identity
// exists. Guests are never forced through onboarding, so the guest entry
// defaults to complete.
const GuestOnboardingKey = "guest"

type Session struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    *time.Time
	Metadata     map[string]any
}

func (s *Session) Valid(now time.Time) bool {
	if s == nil || strings.TrimSpace(s.AccessToken) == "" {
		return false
	}
	if s.ExpiresAt == nil {
		return true
	}
	return now.Before(*s.ExpiresAt)
}

func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Metadata = copyAnyMap(s.Metadata)
	if s.ExpiresAt != nil {
		expiresAt := *s.ExpiresAt
		out.ExpiresAt = &expiresAt
	}
	return &out
}

// Identity is the reconciled local representation of "who is signed in",
// distinct from any single provider's session object. A session without a
// confirmed email is a valid, persisted, but unauthenticated state.
type Identity struct {
	UserID         string
	Email          string
	EmailConfirmed bool
	Session        *Session
	Metadata       map[string]any
}

func (i *Identity) Authenticated(now time.Time) bool {
	if i == nil {
		return false
	}
	return i.EmailConfirmed && i.Session.Valid(now)
}

func (i *Identity) OnboardingKey() string {
	if i == nil || strings.TrimSpace(i.UserID) == "" {
		return GuestOnboardingKey
	}
	return strings.TrimSpace(i.UserID)
}

func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	out := *i
	out.Session = i.Session.Clone()
	out.Metadata = copyAnyMap(i.Metadata)
	return &out
}

// SessionPhase is derived from Identity on every state change, never stored.
type SessionPhase string

const (
	SessionPhaseAnonymous           SessionPhase = "anonymous"
	SessionPhasePendingConfirmation SessionPhase = "pending_confirmation"
	SessionPhaseAuthenticated       SessionPhase = "authenticated"
)

func DerivePhase(identity *Identity, now time.Time) SessionPhase {
	switch {
	case identity == nil || strings.TrimSpace(identity.UserID) == "":
		return SessionPhaseAnonymous
	case identity.Authenticated(now):
		return SessionPhaseAuthenticated
	default:
		return SessionPhasePendingConfirmation
	}
}

type EntitlementStatus string

const (
	EntitlementStatusActive   EntitlementStatus = "active"
	EntitlementStatusInactive EntitlementStatus = "inactive"
	EntitlementStatusPaused   EntitlementStatus = "paused"
)

// EntitlementSnapshot is an immutable value produced on every provider
// query. The lifecycle detector owns the "previous" slot; downstream
// consumers receive copies.
type EntitlementSnapshot struct {
	Platform       string
	Status         EntitlementStatus
	ProductID      string
	ExpiresAt      *time.Time
	WillRenew      bool
	IsTrial        bool
	BillingIssueAt *time.Time
	FetchedAt      time.Time
}

func (s EntitlementSnapshot) IsActive() bool {
	return s.Status == EntitlementStatusActive
}

func (s EntitlementSnapshot) Clone() EntitlementSnapshot {
	out := s
	if s.ExpiresAt != nil {
		expiresAt := *s.ExpiresAt
		out.ExpiresAt = &expiresAt
	}
	if s.BillingIssueAt != nil {
		billingIssueAt := *s.BillingIssueAt
		out.BillingIssueAt = &billingIssueAt
	}
	return out
}

type LifecycleEventKind string

const (
	LifecycleTrialStarted          LifecycleEventKind = "trial_started"
	LifecycleTrialConverted        LifecycleEventKind = "trial_converted"
	LifecycleTrialCancelled        LifecycleEventKind = "trial_cancelled"
	LifecycleSubscriptionStarted   LifecycleEventKind = "subscription_started"
	LifecycleSubscriptionRenewed   LifecycleEventKind = "subscription_renewed"
	LifecycleSubscriptionCancelled LifecycleEventKind = "subscription_cancelled"
	LifecycleSubscriptionExpired   LifecycleEventKind = "subscription_expired"
	LifecycleSubscriptionPaused    LifecycleEventKind = "subscription_paused"
	LifecycleSubscriptionRestored  LifecycleEventKind = "subscription_restored"
	LifecycleBillingIssue          LifecycleEventKind = "billing_issue"

	LifecycleSessionSignedIn  LifecycleEventKind = "session_signed_in"
	LifecycleSessionSignedOut LifecycleEventKind = "session_signed_out"
	LifecycleSessionRefreshed LifecycleEventKind = "session_refreshed"
)

// LifecycleEvent is a discrete, at-most-once-per-transition notification.
// Events are consumed and discarded by listeners; nothing here is persisted.
type LifecycleEvent struct {
	ID         string
	Kind       LifecycleEventKind
	OccurredAt time.Time
	ProductID  string
	ExpiresAt  *time.Time
	Reason     string
	Metadata   map[string]any
}

type RateLimitClass string

const (
	RateLimitClassAuth          RateLimitClass = "auth"
	RateLimitClassPasswordReset RateLimitClass = "password_reset"
	RateLimitClassSignUp        RateLimitClass = "sign_up"
)

type RateLimitDecision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type SignInResult struct {
	Identity *Identity
	Session  *Session
}

// SignUpResult carries a nil Session when the provider holds the session
// until the email is confirmed.
type SignUpResult struct {
	Identity *Identity
	Session  *Session
}

type PurchaseResult struct {
	Snapshot EntitlementSnapshot
	Event    *LifecycleEvent
}

func copyAnyMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}
