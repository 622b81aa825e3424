package core

import (
	"context"

	"github.com/google/uuid"
)

// Initialize brings the state machine from uninitialized to ready. It is
// idempotent: repeated calls re-reconcile but never register a second push
// listener. Provider failures are swallowed and logged so initialization
// always terminates, worst case in ready/anonymous.
func (s *Service) Initialize(ctx context.Context) error {
	if s == nil {
		return nil
	}
	startedAt := s.now()

	s.mu.Lock()
	if s.initState == initPhaseReady {
		s.ensureSubscriptionLocked()
		s.mu.Unlock()
		return nil
	}
	s.initState = initPhaseInitializing
	s.loadStateLocked(ctx)
	lastKnown := s.identity.Clone()
	s.mu.Unlock()

	session, err := callWithTimeout(ctx, s, "get_session", s.config.Timeouts.ProviderCall(),
		func(ctx context.Context) (*Session, error) {
			return s.identityClient.GetSession(ctx)
		})
	if err != nil {
		s.logError(ctx, "session fetch failed during initialize", map[string]any{
			"error": err.Error(),
		})
		session = nil
	}

	// Best-effort identity fetch so an unconfirmed-but-existing user is
	// still represented. On fetch failure keep the last-known identity
	// rather than discarding known state over a transient error.
	identity := lastKnown
	user, userErr := callWithTimeout(ctx, s, "get_user", s.config.Timeouts.ProviderCall(),
		func(ctx context.Context) (*Identity, error) {
			return s.identityClient.GetUser(ctx)
		})
	if userErr != nil {
		s.logError(ctx, "identity fetch failed during initialize, keeping last-known identity", map[string]any{
			"error": userErr.Error(),
		})
	} else {
		identity = user
	}
	if identity == nil && session != nil {
		identity = &Identity{}
	}
	if identity != nil && session != nil {
		identity.Session = session.Clone()
	}

	resolved := s.SyncOnboardingStatus(ctx, identity.OnboardingKey(), s.localOnboarding(identity.OnboardingKey()))

	s.mu.Lock()
	s.generation++
	s.identity = identity
	s.onboarding[identity.OnboardingKey()] = resolved
	if persistErr := s.persistLocked(ctx); persistErr != nil {
		s.logError(ctx, "session state persist failed during initialize", map[string]any{
			"error": persistErr.Error(),
		})
	}
	s.ensureSubscriptionLocked()
	s.initState = initPhaseReady
	phase := DerivePhase(s.identity, s.now())
	s.mu.Unlock()

	s.observeOperation(ctx, startedAt, "initialize", nil, map[string]any{
		"phase": string(phase),
	})
	return nil
}

func (s *Service) ensureSubscriptionLocked() {
	if s.subscribed {
		return
	}
	s.unsubscribe = s.identityClient.OnSessionChange(s.handleSessionChange)
	s.subscribed = true
}

// Close tears down the push subscription and waits for detached work.
func (s *Service) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.subscribed && s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.subscribed = false
	s.unsubscribe = nil
	s.mu.Unlock()
	return s.detached.Close(ctx)
}

// handleSessionChange processes a provider push. Pushes may interleave; a
// generation counter makes the composite write last-push-wins so a stale
// in-flight reconciliation never overwrites a newer one.
func (s *Service) handleSessionChange(session *Session) {
	if s == nil {
		return
	}
	ctx := context.Background()
	startedAt := s.now()

	s.mu.Lock()
	s.generation++
	gen := s.generation
	lastKnown := s.identity.Clone()
	s.mu.Unlock()

	// Re-fetch identity to capture confirmation-status changes that
	// happened out-of-band, with the same preserve-on-failure policy as
	// Initialize.
	identity := lastKnown
	user, err := callWithTimeout(ctx, s, "get_user", s.config.Timeouts.ProviderCall(),
		func(ctx context.Context) (*Identity, error) {
			return s.identityClient.GetUser(ctx)
		})
	if err != nil {
		s.logError(ctx, "identity re-fetch failed on session push, keeping last-known identity", map[string]any{
			"error": err.Error(),
		})
	} else {
		identity = user
	}
	if identity == nil && session != nil {
		identity = &Identity{}
	}
	if identity != nil {
		identity.Session = session.Clone()
	}

	resolved := s.SyncOnboardingStatus(ctx, identity.OnboardingKey(), s.localOnboarding(identity.OnboardingKey()))

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logInfo(ctx, "stale session push dropped", map[string]any{
			"generation": gen,
		})
		return
	}
	s.identity = identity
	s.onboarding[identity.OnboardingKey()] = resolved
	if persistErr := s.persistLocked(ctx); persistErr != nil {
		s.logError(ctx, "session state persist failed on push", map[string]any{
			"error": persistErr.Error(),
		})
	}
	phase := DerivePhase(s.identity, s.now())
	s.mu.Unlock()

	kind := LifecycleSessionRefreshed
	if session == nil {
		kind = LifecycleSessionSignedOut
	}
	s.publishSessionEvent(kind, map[string]any{"phase": string(phase)})
	s.observeOperation(ctx, startedAt, "session_push", nil, map[string]any{
		"phase": string(phase),
	})
}

// SetSession updates the session independently of the user object; some
// provider flows return one without the other.
func (s *Service) SetSession(ctx context.Context, session *Session) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.generation++
	if s.identity == nil {
		if session != nil {
			s.identity = &Identity{Session: session.Clone()}
		}
	} else {
		s.identity.Session = session.Clone()
	}
	if err := s.persistLocked(ctx); err != nil {
		s.logError(ctx, "session state persist failed", map[string]any{"error": err.Error()})
	}
	s.mu.Unlock()
}

// SetUser replaces the identity while preserving the current session when
// the incoming identity does not carry one.
func (s *Service) SetUser(ctx context.Context, identity *Identity) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.generation++
	incoming := identity.Clone()
	if incoming != nil && incoming.Session == nil && s.identity != nil {
		incoming.Session = s.identity.Session
	}
	s.identity = incoming
	if err := s.persistLocked(ctx); err != nil {
		s.logError(ctx, "session state persist failed", map[string]any{"error": err.Error()})
	}
	s.mu.Unlock()
}

func (s *Service) CurrentIdentity() *Identity {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity.Clone()
}

func (s *Service) Phase() SessionPhase {
	if s == nil {
		return SessionPhaseAnonymous
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return DerivePhase(s.identity, s.now())
}

func (s *Service) IsAuthenticated() bool {
	return s.Phase() == SessionPhaseAuthenticated
}

func (s *Service) publishSessionEvent(kind LifecycleEventKind, metadata map[string]any) {
	if s == nil || s.publisher == nil {
		return
	}
	s.publisher.Publish(LifecycleEvent{
		ID:         uuid.NewString(),
		Kind:       kind,
		OccurredAt: s.now(),
		Metadata:   copyAnyMap(metadata),
	})
}
