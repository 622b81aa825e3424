package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig      Config
	logger             Logger
	loggerProvider     LoggerProvider
	metricsRecorder    MetricsRecorder
	errorFactory       ErrorFactory
	errorMapper        ErrorMapper
	configProvider     ConfigProvider
	optionsResolver    OptionsResolver
	kvStore            KVStore
	identityClient     IdentityClient
	entitlementSession EntitlementSessionControl
	onboardingStore    OnboardingStore
	rateLimitPolicy    RateLimitPolicy
	publisher          LifecyclePublisher
	taskEnqueuer       TaskEnqueuer
	now                func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithKVStore(store KVStore) Option {
	return func(b *serviceBuilder) {
		b.kvStore = store
	}
}

func WithIdentityClient(client IdentityClient) Option {
	return func(b *serviceBuilder) {
		b.identityClient = client
	}
}

func WithEntitlementSession(control EntitlementSessionControl) Option {
	return func(b *serviceBuilder) {
		b.entitlementSession = control
	}
}

func WithOnboardingStore(store OnboardingStore) Option {
	return func(b *serviceBuilder) {
		b.onboardingStore = store
	}
}

func WithRateLimitPolicy(policy RateLimitPolicy) Option {
	return func(b *serviceBuilder) {
		b.rateLimitPolicy = policy
	}
}

func WithPublisher(publisher LifecyclePublisher) Option {
	return func(b *serviceBuilder) {
		b.publisher = publisher
	}
}

func WithTaskEnqueuer(enqueuer TaskEnqueuer) Option {
	return func(b *serviceBuilder) {
		b.taskEnqueuer = enqueuer
	}
}

// WithClock overrides the time source. Tests freeze it.
func WithClock(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.now = now
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("appstate", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return appErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || strings.TrimSpace(cfg.DeepLink.Scheme) != "" || cfg.DeepLink.MaxTokenLength > 0 {
		layer["deep_link"] = map[string]any{
			"scheme":           cfg.DeepLink.Scheme,
			"max_token_length": cfg.DeepLink.MaxTokenLength,
		}
	}
	if includeZero || !zeroRateLimitConfig(cfg.RateLimit) {
		layer["rate_limit"] = map[string]any{
			"auth":           ruleToLayerMap(cfg.RateLimit.Auth),
			"password_reset": ruleToLayerMap(cfg.RateLimit.PasswordReset),
			"sign_up":        ruleToLayerMap(cfg.RateLimit.SignUp),
		}
	}
	if includeZero || cfg.Timeouts.ProviderCallMS > 0 || cfg.Timeouts.SensitiveWriteMS > 0 {
		layer["timeouts"] = map[string]any{
			"provider_call_ms":   cfg.Timeouts.ProviderCallMS,
			"sensitive_write_ms": cfg.Timeouts.SensitiveWriteMS,
		}
	}
	if includeZero || strings.TrimSpace(cfg.Storage.KeyPrefix) != "" {
		layer["storage"] = map[string]any{
			"key_prefix": cfg.Storage.KeyPrefix,
		}
	}
	return layer
}

func ruleToLayerMap(rule RateLimitRule) map[string]any {
	return map[string]any{
		"max_attempts":   rule.MaxAttempts,
		"window_minutes": rule.WindowMinutes,
	}
}

func zeroRateLimitConfig(cfg RateLimitConfig) bool {
	zero := RateLimitRule{}
	return cfg.Auth == zero && cfg.PasswordReset == zero && cfg.SignUp == zero
}
