package core

import (
	"context"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// SignIn exchanges credentials for an identity and session, guarded by the
// auth rate-limit class.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	if s == nil {
		return nil, nil
	}
	startedAt := s.now()
	subject := normalizeSubject(email)

	if err := s.checkRateLimit(ctx, RateLimitClassAuth, subject); err != nil {
		s.observeOperation(ctx, startedAt, "sign_in", err, map[string]any{"class": string(RateLimitClassAuth)})
		return nil, err
	}

	res, err := callWithTimeout(ctx, s, "sign_in", s.config.Timeouts.ProviderCall(),
		func(ctx context.Context) (SignInResult, error) {
			return s.identityClient.SignInWithPassword(ctx, strings.TrimSpace(email), password)
		})
	if err != nil {
		mapped := s.mapError(err)
		s.observeOperation(ctx, startedAt, "sign_in", mapped, nil)
		return nil, mapped
	}

	identity := s.commitSignedIn(ctx, res.Identity, res.Session)
	s.bindEntitlement(identity)
	if identity != nil && identity.Session.Valid(s.now()) {
		s.publishSessionEvent(LifecycleSessionSignedIn, map[string]any{
			"phase": string(s.Phase()),
		})
	}
	s.observeOperation(ctx, startedAt, "sign_in", nil, map[string]any{"phase": string(s.Phase())})
	return identity.Clone(), nil
}

// SignUp registers a new account. The provider may hold the session until
// the email is confirmed; the resulting state is persisted but
// unauthenticated.
func (s *Service) SignUp(ctx context.Context, email, password string) (*Identity, error) {
	if s == nil {
		return nil, nil
	}
	startedAt := s.now()
	subject := normalizeSubject(email)

	if err := s.checkRateLimit(ctx, RateLimitClassSignUp, subject); err != nil {
		s.observeOperation(ctx, startedAt, "sign_up", err, map[string]any{"class": string(RateLimitClassSignUp)})
		return nil, err
	}

	res, err := callWithTimeout(ctx, s, "sign_up", s.config.Timeouts.ProviderCall(),
		func(ctx context.Context) (SignUpResult, error) {
			return s.identityClient.SignUp(ctx, strings.TrimSpace(email), password)
		})
	if err != nil {
		mapped := s.mapError(err)
		s.observeOperation(ctx, startedAt, "sign_up", mapped, nil)
		return nil, mapped
	}

	identity := s.commitSignedIn(ctx, res.Identity, res.Session)
	s.bindEntitlement(identity)
	if res.Session != nil {
		s.publishSessionEvent(LifecycleSessionSignedIn, map[string]any{
			"phase": string(s.Phase()),
		})
	}
	s.observeOperation(ctx, startedAt, "sign_up", nil, map[string]any{"phase": string(s.Phase())})
	return identity.Clone(), nil
}

// SignOut is a local-guarantee operation: local identity is always cleared
// even when provider or entitlement cleanup fails. Remote failures are
// logged, never surfaced.
func (s *Service) SignOut(ctx context.Context) error {
	if s == nil {
		return nil
	}
	startedAt := s.now()

	if _, err := callWithTimeout(ctx, s, "sign_out", s.config.Timeouts.ProviderCall(),
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.identityClient.SignOut(ctx)
		}); err != nil {
		s.logError(ctx, "provider sign-out failed, clearing local identity anyway", map[string]any{
			"error": err.Error(),
		})
	}
	if s.entitlementSession != nil {
		if _, err := callWithTimeout(ctx, s, "entitlement_logout", s.config.Timeouts.ProviderCall(),
			func(ctx context.Context) (struct{}, error) {
				return struct{}{}, s.entitlementSession.LogOut(ctx)
			}); err != nil {
			s.logError(ctx, "entitlement logout failed, clearing local identity anyway", map[string]any{
				"error": err.Error(),
			})
		}
	}

	s.mu.Lock()
	s.generation++
	s.identity = nil
	if err := s.persistLocked(ctx); err != nil {
		s.logError(ctx, "session state persist failed during sign-out", map[string]any{
			"error": err.Error(),
		})
	}
	s.mu.Unlock()

	s.publishSessionEvent(LifecycleSessionSignedOut, nil)
	s.observeOperation(ctx, startedAt, "sign_out", nil, nil)
	return nil
}

// ResetPassword requests a password-reset email, guarded by the
// password-reset rate-limit class and the sensitive-write deadline because
// the provider call is known to occasionally hang.
func (s *Service) ResetPassword(ctx context.Context, email string, redirectTo string) error {
	if s == nil {
		return nil
	}
	startedAt := s.now()
	subject := normalizeSubject(email)

	if err := s.checkRateLimit(ctx, RateLimitClassPasswordReset, subject); err != nil {
		s.observeOperation(ctx, startedAt, "reset_password", err, map[string]any{"class": string(RateLimitClassPasswordReset)})
		return err
	}

	_, err := callWithTimeout(ctx, s, "reset_password", s.config.Timeouts.SensitiveWrite(),
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.identityClient.ResetPasswordForEmail(ctx, strings.TrimSpace(email), redirectTo)
		})
	if err != nil {
		mapped := s.mapError(err)
		s.observeOperation(ctx, startedAt, "reset_password", mapped, nil)
		return mapped
	}
	s.observeOperation(ctx, startedAt, "reset_password", nil, nil)
	return nil
}

func (s *Service) ResendConfirmation(ctx context.Context, email string) error {
	if s == nil {
		return nil
	}
	startedAt := s.now()

	_, err := callWithTimeout(ctx, s, "resend_confirmation", s.config.Timeouts.ProviderCall(),
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.identityClient.ResendConfirmation(ctx, strings.TrimSpace(email))
		})
	if err != nil {
		mapped := s.mapError(err)
		s.observeOperation(ctx, startedAt, "resend_confirmation", mapped, nil)
		return mapped
	}
	s.observeOperation(ctx, startedAt, "resend_confirmation", nil, nil)
	return nil
}

// VerifyEmail submits a confirmation token to the provider and folds the
// confirmed identity back into local state.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*Identity, error) {
	if s == nil {
		return nil, nil
	}
	startedAt := s.now()

	user, err := callWithTimeout(ctx, s, "verify_email", s.config.Timeouts.SensitiveWrite(),
		func(ctx context.Context) (*Identity, error) {
			return s.identityClient.VerifyEmail(ctx, token)
		})
	if err != nil {
		mapped := s.mapError(err)
		s.observeOperation(ctx, startedAt, "verify_email", mapped, nil)
		return nil, mapped
	}

	s.SetUser(ctx, user)
	s.publishSessionEvent(LifecycleSessionRefreshed, map[string]any{
		"phase": string(s.Phase()),
	})
	s.observeOperation(ctx, startedAt, "verify_email", nil, map[string]any{"phase": string(s.Phase())})
	return s.CurrentIdentity(), nil
}

// ExchangeCode trades a deep-link code for a session. The provider errors
// on an already-consumed code without corrupting the established session,
// which makes duplicate deep-link dispatches safe.
func (s *Service) ExchangeCode(ctx context.Context, code string) (*Session, error) {
	if s == nil {
		return nil, nil
	}
	startedAt := s.now()

	session, err := callWithTimeout(ctx, s, "exchange_code", s.config.Timeouts.ProviderCall(),
		func(ctx context.Context) (*Session, error) {
			return s.identityClient.ExchangeCodeForSession(ctx, strings.TrimSpace(code))
		})
	if err != nil {
		mapped := s.mapError(err)
		s.observeOperation(ctx, startedAt, "exchange_code", mapped, nil)
		return nil, mapped
	}

	s.SetSession(ctx, session)
	s.publishSessionEvent(LifecycleSessionRefreshed, map[string]any{
		"phase": string(s.Phase()),
	})
	s.observeOperation(ctx, startedAt, "exchange_code", nil, map[string]any{"phase": string(s.Phase())})
	return session.Clone(), nil
}

func (s *Service) commitSignedIn(ctx context.Context, identity *Identity, session *Session) *Identity {
	merged := identity.Clone()
	if merged == nil && session != nil {
		merged = &Identity{}
	}
	if merged != nil && session != nil {
		merged.Session = session.Clone()
	}

	s.mu.Lock()
	s.generation++
	s.identity = merged
	if err := s.persistLocked(ctx); err != nil {
		s.logError(ctx, "session state persist failed", map[string]any{"error": err.Error()})
	}
	s.mu.Unlock()

	resolved := s.SyncOnboardingStatus(ctx, merged.OnboardingKey(), s.localOnboarding(merged.OnboardingKey()))
	s.setLocalOnboarding(merged.OnboardingKey(), resolved)
	return merged
}

func (s *Service) bindEntitlement(identity *Identity) {
	if s.entitlementSession == nil || identity == nil || strings.TrimSpace(identity.UserID) == "" {
		return
	}
	identityKey := identity.OnboardingKey()
	s.detached.Spawn("entitlement.login", map[string]any{
		"identity_key": identityKey,
	}, func(ctx context.Context) error {
		return s.entitlementSession.LogIn(ctx, identityKey)
	})
}

func (s *Service) checkRateLimit(ctx context.Context, class RateLimitClass, subject string) error {
	if s.rateLimitPolicy == nil {
		return nil
	}
	decision, err := s.rateLimitPolicy.Allow(ctx, class, subject)
	if err != nil {
		// Fail open: a broken client-side limiter must not block the user.
		s.logError(ctx, "rate limit check failed, allowing request", map[string]any{
			"class": string(class),
			"error": err.Error(),
		})
		return nil
	}
	if decision.Allowed {
		return nil
	}
	return s.newError("core: too many attempts", goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(AppErrorRateLimited).
		WithMetadata(map[string]any{
			"class":          string(class),
			"retry_after_ms": decision.RetryAfter.Milliseconds(),
		})
}

func normalizeSubject(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
