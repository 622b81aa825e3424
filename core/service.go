package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

type initPhase int

const (
	initPhaseUninitialized initPhase = iota
	initPhaseInitializing
	initPhaseReady
)

// Service is the session reconciliation state machine: the single
// authoritative in-memory and persisted view of Identity and Onboarding
// Status, with exactly one active subscription to the identity provider's
// push notifications.
type Service struct {
	config             Config
	logger             Logger
	loggerProvider     LoggerProvider
	metricsRecorder    MetricsRecorder
	errorFactory       ErrorFactory
	errorMapper        ErrorMapper
	kvStore            KVStore
	identityClient     IdentityClient
	entitlementSession EntitlementSessionControl
	onboardingStore    OnboardingStore
	rateLimitPolicy    RateLimitPolicy
	publisher          LifecyclePublisher
	detached           *DetachedRunner
	now                func() time.Time

	mu         sync.Mutex
	initState  initPhase
	identity   *Identity
	onboarding map[string]bool
	generation uint64

	// Listener lifecycle is an explicit handle owned by this instance, not
	// a package-level flag, so re-initialization can never register a
	// second listener and tests can tear it down.
	subscribed  bool
	unsubscribe func()
}

type ServiceDependencies struct {
	Logger             Logger
	LoggerProvider     LoggerProvider
	MetricsRecorder    MetricsRecorder
	ErrorFactory       ErrorFactory
	ErrorMapper        ErrorMapper
	KVStore            KVStore
	IdentityClient     IdentityClient
	EntitlementSession EntitlementSessionControl
	OnboardingStore    OnboardingStore
	RateLimitPolicy    RateLimitPolicy
	Publisher          LifecyclePublisher
	TaskEnqueuer       TaskEnqueuer
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("appstate", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("appstate"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.kvStore == nil {
		builder.kvStore = NewMemoryKVStore()
	}
	if builder.publisher == nil {
		builder.publisher = nopPublisher{}
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}
	if builder.identityClient == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: identity client is required"))
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	return &Service{
		config:             finalConfig,
		logger:             logger,
		loggerProvider:     provider,
		metricsRecorder:    builder.metricsRecorder,
		errorFactory:       builder.errorFactory,
		errorMapper:        builder.errorMapper,
		kvStore:            builder.kvStore,
		identityClient:     builder.identityClient,
		entitlementSession: builder.entitlementSession,
		onboardingStore:    builder.onboardingStore,
		rateLimitPolicy:    builder.rateLimitPolicy,
		publisher:          builder.publisher,
		detached:           NewDetachedRunner(logger, builder.taskEnqueuer),
		now:                builder.now,
		onboarding:         map[string]bool{},
	}, nil
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:             s.logger,
		LoggerProvider:     s.loggerProvider,
		MetricsRecorder:    s.metricsRecorder,
		ErrorFactory:       s.errorFactory,
		ErrorMapper:        s.errorMapper,
		KVStore:            s.kvStore,
		IdentityClient:     s.identityClient,
		EntitlementSession: s.entitlementSession,
		OnboardingStore:    s.onboardingStore,
		RateLimitPolicy:    s.rateLimitPolicy,
		Publisher:          s.publisher,
	}
}

// newError builds domain errors through the injected factory so hosts can
// decorate every error the service originates.
func (s *Service) newError(message string, category goerrors.Category) *goerrors.Error {
	if s == nil || s.errorFactory == nil {
		return goerrors.New(message, category)
	}
	return s.errorFactory(message, category)
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	if mapped := mapper(err); mapped != nil {
		return mapped
	}
	return err
}

// callWithTimeout races fn against the deadline. If the deadline fires
// first the operation is reported failed even though the underlying call
// may still complete in the background; a late success is logged and
// otherwise dropped.
func callWithTimeout[T any](
	ctx context.Context,
	s *Service,
	operation string,
	deadline time.Duration,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	var zero T
	if deadline <= 0 {
		return fn(ctx)
	}

	results := make(chan callResult[T], 1)
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deadline)

	go func() {
		defer cancel()
		value, err := fn(callCtx)
		results <- callResult[T]{value: value, err: err}
	}()

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case res := <-results:
		return res.value, res.err
	case <-ctx.Done():
		go drainLateResult(s, operation, results)
		return zero, ctx.Err()
	case <-timer.C:
		go drainLateResult(s, operation, results)
		return zero, NewTimeoutError(operation, deadline)
	}
}

type callResult[T any] struct {
	value T
	err   error
}

func drainLateResult[T any](s *Service, operation string, results <-chan callResult[T]) {
	res := <-results
	if s == nil || s.logger == nil {
		return
	}
	if res.err != nil {
		s.logger.Info("late provider completion after timeout",
			"operation", operation,
			"error", res.err.Error(),
		)
		return
	}
	s.logger.Info("late provider completion after timeout", "operation", operation)
}

type nopPublisher struct{}

func (nopPublisher) Publish(LifecycleEvent) {}

var _ LifecyclePublisher = nopPublisher{}
