package core

import (
	"context"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

func TestConfigResolutionPrecedence(t *testing.T) {
	defaults := DefaultConfig()

	loaded := defaults
	loaded.DeepLink.Scheme = "loadedapp"
	loaded.RateLimit.Auth = RateLimitRule{MaxAttempts: 9, WindowMinutes: 30}

	runtime := Config{}
	runtime.DeepLink = DeepLinkConfig{Scheme: "runtimeapp", MaxTokenLength: 256}

	resolved, err := GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved.DeepLink.Scheme != "runtimeapp" {
		t.Fatalf("scheme = %q, want runtime layer to win", resolved.DeepLink.Scheme)
	}
	if resolved.DeepLink.MaxTokenLength != 256 {
		t.Fatalf("max token length = %d, want 256", resolved.DeepLink.MaxTokenLength)
	}
	if resolved.RateLimit.Auth.MaxAttempts != 9 {
		t.Fatalf("auth max attempts = %d, want loaded layer value 9", resolved.RateLimit.Auth.MaxAttempts)
	}
	if resolved.Storage.KeyPrefix != defaults.Storage.KeyPrefix {
		t.Fatalf("key prefix = %q, want default %q", resolved.Storage.KeyPrefix, defaults.Storage.KeyPrefix)
	}
}

func TestConfigResolutionRejectsInvalidMerge(t *testing.T) {
	defaults := DefaultConfig()
	loaded := defaults
	loaded.DeepLink.MaxTokenLength = -1

	if _, err := (GoOptionsResolver{}).Resolve(defaults, loaded, Config{}); err == nil {
		t.Fatal("expected validation error for negative token length")
	}
}

func TestCfgxConfigProviderAppliesRawOverrides(t *testing.T) {
	provider := NewCfgxConfigProvider(staticRawConfigLoader{Values: map[string]any{
		"service_name": "loaded-service",
		"storage": map[string]any{
			"key_prefix": "loadedprefix",
		},
	}})

	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServiceName != "loaded-service" {
		t.Fatalf("service name = %q", cfg.ServiceName)
	}
	if cfg.Storage.KeyPrefix != "loadedprefix" {
		t.Fatalf("key prefix = %q", cfg.Storage.KeyPrefix)
	}
	if cfg.DeepLink.Scheme != DefaultConfig().DeepLink.Scheme {
		t.Fatalf("scheme = %q, want default preserved", cfg.DeepLink.Scheme)
	}
}

func TestCallWithTimeoutReturnsValueBeforeDeadline(t *testing.T) {
	service := newTestService(t, &stubIdentityClient{})
	got, err := callWithTimeout(context.Background(), service, "fast_op", time.Second,
		func(context.Context) (string, error) {
			return "done", nil
		})
	if err != nil {
		t.Fatalf("callWithTimeout() error = %v", err)
	}
	if got != "done" {
		t.Fatalf("value = %q, want done", got)
	}
}

func TestCallWithTimeoutExceededDeadline(t *testing.T) {
	service := newTestService(t, &stubIdentityClient{})
	release := make(chan struct{})
	defer close(release)

	_, err := callWithTimeout(context.Background(), service, "slow_op", 10*time.Millisecond,
		func(context.Context) (string, error) {
			<-release
			return "late", nil
		})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected *goerrors.Error, got %T", err)
	}
	if richErr.TextCode != AppErrorTimeout {
		t.Fatalf("text code = %q, want %q", richErr.TextCode, AppErrorTimeout)
	}
	if richErr.Metadata["operation"] != "slow_op" {
		t.Fatalf("operation metadata = %v", richErr.Metadata["operation"])
	}
}

func TestCallWithTimeoutHonorsCallerCancellation(t *testing.T) {
	service := newTestService(t, &stubIdentityClient{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	release := make(chan struct{})
	defer close(release)

	_, err := callWithTimeout(ctx, service, "cancelled_op", time.Second,
		func(context.Context) (string, error) {
			<-release
			return "late", nil
		})
	if err == nil || ctx.Err() == nil {
		t.Fatal("expected caller cancellation to surface")
	}
}

func TestCallWithTimeoutZeroDeadlineRunsInline(t *testing.T) {
	got, err := callWithTimeout(context.Background(), nil, "inline_op", 0,
		func(context.Context) (int, error) {
			return 42, nil
		})
	if err != nil {
		t.Fatalf("callWithTimeout() error = %v", err)
	}
	if got != 42 {
		t.Fatalf("value = %d, want 42", got)
	}
}
