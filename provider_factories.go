package appstate

import (
	"fmt"

	"github.com/goliatone/go-appstate/adapters/gologger"
	"github.com/goliatone/go-appstate/core"
	"github.com/goliatone/go-appstate/deeplink"
	"github.com/goliatone/go-appstate/entitlement"
	"github.com/goliatone/go-appstate/events"
	"github.com/goliatone/go-appstate/providers/mock"
	"github.com/goliatone/go-appstate/ratelimit"
)

// App is the fully composed client state engine: the session state machine,
// the entitlement service, the deep link resolver, the lifecycle bus, and
// the rate limiter, all sharing one KV store and one event stream.
type App struct {
	Session      *core.Service
	Entitlements *entitlement.Service
	Resolver     *deeplink.Resolver
	Bus          *events.Bus
	Limiter      *ratelimit.Limiter

	// Logging carries the resolved glog handles plus their go-job
	// equivalents for hosts that run the detached-task worker.
	Logging gologger.WorkerLogging
}

// AppDependencies selects the provider clients and storage. Nil fields fall
// back to the in-memory implementations; the real-vs-mock strategy is
// decided once here, never per call.
type AppDependencies struct {
	IdentityClient    core.IdentityClient
	EntitlementClient core.EntitlementClient
	KVStore           core.KVStore
	OnboardingStore   core.OnboardingStore
	TaskEnqueuer      core.TaskEnqueuer
	Logger            core.Logger
	LoggerProvider    core.LoggerProvider
	MockAccounts      []mock.Account
}

// New composes an App from cfg and deps, wiring the lifecycle bus as the
// publisher for both the session machine and the entitlement service and
// the fixed-window limiter over the shared KV store.
func New(cfg Config, deps AppDependencies, options ...Option) (*App, error) {
	identityClient := deps.IdentityClient
	if identityClient == nil {
		identityClient = mock.NewIdentityClient(deps.MockAccounts)
	}
	entitlementClient := deps.EntitlementClient
	if entitlementClient == nil {
		entitlementClient = mock.NewEntitlementClient()
	}
	kvStore := deps.KVStore
	if kvStore == nil {
		kvStore = core.NewMemoryKVStore()
	}

	// Resolve rate-limit rules and storage prefix against defaults here; the
	// session service resolves the same layers again on construction.
	effective, err := core.GoOptionsResolver{}.Resolve(core.DefaultConfig(), core.DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}

	logging := gologger.ForWorker(deps.LoggerProvider, deps.Logger)

	bus := events.New(events.WithLogger(logging.Logger))
	limiter := ratelimit.New(kvStore, effective.RateLimit,
		ratelimit.WithKeyPrefix(effective.Storage.KeyPrefix+"::ratelimit"),
		ratelimit.WithLogger(logging.Logger),
	)

	entitlements, err := entitlement.NewService(entitlementClient,
		entitlement.WithPublisher(bus),
		entitlement.WithLogger(logging.Logger),
	)
	if err != nil {
		return nil, err
	}

	composed := append([]Option{
		WithLogger(logging.Logger),
		WithLoggerProvider(logging.Provider),
		WithIdentityClient(identityClient),
		WithEntitlementSession(entitlements),
		WithKVStore(kvStore),
		WithOnboardingStore(deps.OnboardingStore),
		WithRateLimitPolicy(limiter),
		WithPublisher(bus),
		WithTaskEnqueuer(deps.TaskEnqueuer),
	}, options...)

	session, err := core.NewService(cfg, composed...)
	if err != nil {
		return nil, err
	}

	return &App{
		Session:      session,
		Entitlements: entitlements,
		Resolver:     deeplink.New(session.Config().DeepLink),
		Bus:          bus,
		Limiter:      limiter,
		Logging:      logging,
	}, nil
}

// Facade builds the command/query surface over the composed app.
func (a *App) Facade() (*Facade, error) {
	if a == nil {
		return nil, fmt.Errorf("appstate: app is required")
	}
	return NewFacade(a.Session,
		WithEntitlements(a.Entitlements),
		WithDeepLinkResolver(a.Resolver),
	)
}
