package core

import "context"

func (s *Service) localOnboarding(key string) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localOnboardingLocked(key)
}

func (s *Service) localOnboardingLocked(key string) bool {
	if value, ok := s.onboarding[key]; ok {
		return value
	}
	return key == GuestOnboardingKey
}

// SyncOnboardingStatus resolves onboarding truth between the local flag and
// the remote store. The merge is asymmetric on purpose: a remote "complete"
// is sticky and always wins, while a local "complete" is propagated to the
// remote store through a detached write. A user who finished onboarding is
// never re-onboarded, even if a previous remote write failed.
func (s *Service) SyncOnboardingStatus(ctx context.Context, identityKey string, localFlag bool) bool {
	if s == nil {
		return localFlag
	}
	if s.onboardingStore == nil {
		return localFlag
	}

	remote, err := callWithTimeout(ctx, s, "onboarding_fetch", s.config.Timeouts.ProviderCall(),
		func(ctx context.Context) (bool, error) {
			return s.onboardingStore.GetCompleted(ctx, identityKey)
		})
	if err != nil {
		s.logError(ctx, "remote onboarding fetch failed, using local flag", map[string]any{
			"identity_key": identityKey,
			"error":        err.Error(),
		})
		if localFlag {
			s.spawnOnboardingWrite(identityKey, true)
		}
		return localFlag
	}

	if remote {
		s.setLocalOnboarding(identityKey, true)
		return true
	}
	if localFlag {
		s.setLocalOnboarding(identityKey, true)
		s.spawnOnboardingWrite(identityKey, true)
		return true
	}
	return false
}

// SetHasCompletedOnboarding updates local state synchronously and fires a
// detached remote write; the UI never waits on the remote store.
func (s *Service) SetHasCompletedOnboarding(ctx context.Context, completed bool) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.generation++
	key := s.identity.OnboardingKey()
	s.onboarding[key] = completed
	if err := s.persistLocked(ctx); err != nil {
		s.logError(ctx, "session state persist failed", map[string]any{"error": err.Error()})
	}
	s.mu.Unlock()

	s.spawnOnboardingWrite(key, completed)
}

func (s *Service) HasCompletedOnboarding() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localOnboardingLocked(s.identity.OnboardingKey())
}

func (s *Service) setLocalOnboarding(key string, completed bool) {
	s.mu.Lock()
	s.onboarding[key] = completed
	s.mu.Unlock()
}

func (s *Service) spawnOnboardingWrite(identityKey string, completed bool) {
	if s.onboardingStore == nil {
		return
	}
	s.detached.Spawn("onboarding.sync", map[string]any{
		"identity_key": identityKey,
		"completed":    completed,
	}, func(ctx context.Context) error {
		return s.onboardingStore.SetCompleted(ctx, identityKey, completed)
	})
}
