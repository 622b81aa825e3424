package appstate

import "github.com/goliatone/go-appstate/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type Identity = core.Identity
type Session = core.Session
type SessionPhase = core.SessionPhase
type EntitlementSnapshot = core.EntitlementSnapshot
type LifecycleEvent = core.LifecycleEvent
type LifecycleEventKind = core.LifecycleEventKind
type RateLimitClass = core.RateLimitClass
type RateLimitDecision = core.RateLimitDecision

type KVStore = core.KVStore
type IdentityClient = core.IdentityClient
type EntitlementClient = core.EntitlementClient
type OnboardingStore = core.OnboardingStore
type LifecyclePublisher = core.LifecyclePublisher
type RateLimitPolicy = core.RateLimitPolicy
type MetricsRecorder = core.MetricsRecorder

var (
	WithLogger             = core.WithLogger
	WithLoggerProvider     = core.WithLoggerProvider
	WithMetricsRecorder    = core.WithMetricsRecorder
	WithErrorFactory       = core.WithErrorFactory
	WithErrorMapper        = core.WithErrorMapper
	WithConfigProvider     = core.WithConfigProvider
	WithOptionsResolver    = core.WithOptionsResolver
	WithKVStore            = core.WithKVStore
	WithIdentityClient     = core.WithIdentityClient
	WithEntitlementSession = core.WithEntitlementSession
	WithOnboardingStore    = core.WithOnboardingStore
	WithRateLimitPolicy    = core.WithRateLimitPolicy
	WithPublisher          = core.WithPublisher
	WithTaskEnqueuer       = core.WithTaskEnqueuer
	WithClock              = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// UserMessage formats an error for end-user display.
func UserMessage(err error) string {
	return core.UserMessage(err)
}
