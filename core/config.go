package core

import (
	"fmt"
	"strings"
	"time"
)

type DeepLinkConfig struct {
	Scheme         string `koanf:"scheme" mapstructure:"scheme"`
	MaxTokenLength int    `koanf:"max_token_length" mapstructure:"max_token_length"`
}

type RateLimitRule struct {
	MaxAttempts   int `koanf:"max_attempts" mapstructure:"max_attempts"`
	WindowMinutes int `koanf:"window_minutes" mapstructure:"window_minutes"`
}

func (r RateLimitRule) Window() time.Duration {
	return time.Duration(r.WindowMinutes) * time.Minute
}

type RateLimitConfig struct {
	Auth          RateLimitRule `koanf:"auth" mapstructure:"auth"`
	PasswordReset RateLimitRule `koanf:"password_reset" mapstructure:"password_reset"`
	SignUp        RateLimitRule `koanf:"sign_up" mapstructure:"sign_up"`
}

func (c RateLimitConfig) Rule(class RateLimitClass) RateLimitRule {
	switch class {
	case RateLimitClassPasswordReset:
		return c.PasswordReset
	case RateLimitClassSignUp:
		return c.SignUp
	default:
		return c.Auth
	}
}

type TimeoutConfig struct {
	ProviderCallMS   int `koanf:"provider_call_ms" mapstructure:"provider_call_ms"`
	SensitiveWriteMS int `koanf:"sensitive_write_ms" mapstructure:"sensitive_write_ms"`
}

func (c TimeoutConfig) ProviderCall() time.Duration {
	return time.Duration(c.ProviderCallMS) * time.Millisecond
}

func (c TimeoutConfig) SensitiveWrite() time.Duration {
	return time.Duration(c.SensitiveWriteMS) * time.Millisecond
}

type StorageConfig struct {
	KeyPrefix string `koanf:"key_prefix" mapstructure:"key_prefix"`
}

type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name"`
	DeepLink    DeepLinkConfig  `koanf:"deep_link" mapstructure:"deep_link"`
	RateLimit   RateLimitConfig `koanf:"rate_limit" mapstructure:"rate_limit"`
	Timeouts    TimeoutConfig   `koanf:"timeouts" mapstructure:"timeouts"`
	Storage     StorageConfig   `koanf:"storage" mapstructure:"storage"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "appstate",
		DeepLink: DeepLinkConfig{
			Scheme:         "app",
			MaxTokenLength: 512,
		},
		RateLimit: RateLimitConfig{
			Auth:          RateLimitRule{MaxAttempts: 5, WindowMinutes: 15},
			PasswordReset: RateLimitRule{MaxAttempts: 3, WindowMinutes: 60},
			SignUp:        RateLimitRule{MaxAttempts: 3, WindowMinutes: 60},
		},
		Timeouts: TimeoutConfig{
			ProviderCallMS:   10_000,
			SensitiveWriteMS: 5_000,
		},
		Storage: StorageConfig{
			KeyPrefix: "appstate",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.DeepLink.Scheme) == "" {
		return fmt.Errorf("core: deep_link.scheme is required")
	}
	if c.DeepLink.MaxTokenLength <= 0 {
		return fmt.Errorf("core: deep_link.max_token_length must be positive")
	}
	for _, rule := range []struct {
		name string
		rule RateLimitRule
	}{
		{"auth", c.RateLimit.Auth},
		{"password_reset", c.RateLimit.PasswordReset},
		{"sign_up", c.RateLimit.SignUp},
	} {
		if rule.rule.MaxAttempts <= 0 {
			return fmt.Errorf("core: rate_limit.%s.max_attempts must be positive", rule.name)
		}
		if rule.rule.WindowMinutes <= 0 {
			return fmt.Errorf("core: rate_limit.%s.window_minutes must be positive", rule.name)
		}
	}
	if c.Timeouts.ProviderCallMS <= 0 {
		return fmt.Errorf("core: timeouts.provider_call_ms must be positive")
	}
	if c.Timeouts.SensitiveWriteMS <= 0 {
		return fmt.Errorf("core: timeouts.sensitive_write_ms must be positive")
	}
	if strings.TrimSpace(c.Storage.KeyPrefix) == "" {
		return fmt.Errorf("core: storage.key_prefix is required")
	}
	return nil
}
