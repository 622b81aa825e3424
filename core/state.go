package core

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// stateSchemaVersion is the current persisted layout. v1 stored a single
// global onboarding flag; v2 keys onboarding per identity.
const stateSchemaVersion = 2

type persistedSession struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token,omitempty"`
	TokenType    string         `json:"token_type,omitempty"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

type persistedIdentity struct {
	UserID         string            `json:"user_id"`
	Email          string            `json:"email,omitempty"`
	EmailConfirmed bool              `json:"email_confirmed"`
	Session        *persistedSession `json:"session,omitempty"`
	Metadata       map[string]any    `json:"metadata,omitempty"`
}

type persistedState struct {
	SchemaVersion int                `json:"schema_version"`
	Identity      *persistedIdentity `json:"identity,omitempty"`
	Onboarding    map[string]bool    `json:"onboarding,omitempty"`
	UpdatedAt     time.Time          `json:"updated_at"`

	// Legacy v1 field, consumed by migration only.
	HasCompletedOnboarding *bool `json:"has_completed_onboarding,omitempty"`
}

func (s *Service) sessionStateKey() string {
	return s.config.Storage.KeyPrefix + "::session"
}

// loadStateLocked hydrates in-memory state from the KV store. Corrupted or
// unreadable payloads are logged and discarded; a fresh anonymous state is
// never a fatal condition.
func (s *Service) loadStateLocked(ctx context.Context) {
	raw, err := s.kvStore.Get(ctx, s.sessionStateKey())
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			s.logError(ctx, "persisted session state read failed", map[string]any{
				"error": err.Error(),
			})
		}
		return
	}

	var state persistedState
	if err := json.Unmarshal(raw, &state); err != nil {
		s.logError(ctx, "persisted session state corrupted, discarding", map[string]any{
			"error": err.Error(),
		})
		return
	}
	state = migrateState(state)

	s.identity = identityFromRecord(state.Identity)
	s.onboarding = map[string]bool{}
	for key, value := range state.Onboarding {
		s.onboarding[key] = value
	}
}

func (s *Service) persistLocked(ctx context.Context) error {
	state := persistedState{
		SchemaVersion: stateSchemaVersion,
		Identity:      identityToRecord(s.identity),
		Onboarding:    map[string]bool{},
		UpdatedAt:     s.now(),
	}
	for key, value := range s.onboarding {
		state.Onboarding[key] = value
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.kvStore.Set(ctx, s.sessionStateKey(), raw)
}

func migrateState(state persistedState) persistedState {
	if state.SchemaVersion >= stateSchemaVersion {
		state.HasCompletedOnboarding = nil
		return state
	}

	// v1 -> v2: the global onboarding flag becomes an entry keyed by the
	// persisted identity (or the guest sentinel).
	if state.Onboarding == nil {
		state.Onboarding = map[string]bool{}
	}
	if state.HasCompletedOnboarding != nil {
		key := GuestOnboardingKey
		if state.Identity != nil && state.Identity.UserID != "" {
			key = state.Identity.UserID
		}
		state.Onboarding[key] = *state.HasCompletedOnboarding
		state.HasCompletedOnboarding = nil
	}
	state.SchemaVersion = stateSchemaVersion
	return state
}

func identityToRecord(identity *Identity) *persistedIdentity {
	if identity == nil {
		return nil
	}
	record := &persistedIdentity{
		UserID:         identity.UserID,
		Email:          identity.Email,
		EmailConfirmed: identity.EmailConfirmed,
		Metadata:       copyAnyMap(identity.Metadata),
	}
	if identity.Session != nil {
		record.Session = &persistedSession{
			AccessToken:  identity.Session.AccessToken,
			RefreshToken: identity.Session.RefreshToken,
			TokenType:    identity.Session.TokenType,
			Metadata:     copyAnyMap(identity.Session.Metadata),
		}
		if identity.Session.ExpiresAt != nil {
			expiresAt := identity.Session.ExpiresAt.UTC()
			record.Session.ExpiresAt = &expiresAt
		}
	}
	return record
}

func identityFromRecord(record *persistedIdentity) *Identity {
	if record == nil {
		return nil
	}
	identity := &Identity{
		UserID:         record.UserID,
		Email:          record.Email,
		EmailConfirmed: record.EmailConfirmed,
		Metadata:       copyAnyMap(record.Metadata),
	}
	if record.Session != nil {
		identity.Session = &Session{
			AccessToken:  record.Session.AccessToken,
			RefreshToken: record.Session.RefreshToken,
			TokenType:    record.Session.TokenType,
			Metadata:     copyAnyMap(record.Session.Metadata),
		}
		if record.Session.ExpiresAt != nil {
			expiresAt := *record.Session.ExpiresAt
			identity.Session.ExpiresAt = &expiresAt
		}
	}
	return identity
}
