package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-appstate/core"
)

// Account seeds the mock identity provider with a known user.
type Account struct {
	UserID         string
	Email          string
	Password       string
	EmailConfirmed bool
}

type accountState struct {
	account Account
}

// IdentityClient is a deterministic in-memory identity provider used when no
// real provider is configured and in tests. It honors the same contract
// edges the real one does: unconfirmed sign-ins fail with the sentinel,
// exchange codes are one-shot, and session pushes fan out to listeners.
type IdentityClient struct {
	now func() time.Time

	mu            sync.Mutex
	accounts      map[string]*accountState
	current       *core.Identity
	confirmTokens map[string]string
	exchangeCodes map[string]string
	listeners     map[uint64]func(session *core.Session)
	nextListener  uint64
	sessionTTL    time.Duration
}

type IdentityOption func(*IdentityClient)

func WithIdentityClock(now func() time.Time) IdentityOption {
	return func(c *IdentityClient) {
		if now != nil {
			c.now = now
		}
	}
}

func WithSessionTTL(ttl time.Duration) IdentityOption {
	return func(c *IdentityClient) {
		if ttl > 0 {
			c.sessionTTL = ttl
		}
	}
}

func NewIdentityClient(accounts []Account, options ...IdentityOption) *IdentityClient {
	client := &IdentityClient{
		now: func() time.Time {
			return time.Now().UTC()
		},
		accounts:      map[string]*accountState{},
		confirmTokens: map[string]string{},
		exchangeCodes: map[string]string{},
		listeners:     map[uint64]func(session *core.Session){},
		sessionTTL:    time.Hour,
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(client)
	}
	for _, account := range accounts {
		client.accounts[normalizeEmail(account.Email)] = &accountState{account: account}
	}
	return client
}

func (c *IdentityClient) GetSession(context.Context) (*core.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, nil
	}
	return c.current.Session.Clone(), nil
}

func (c *IdentityClient) GetUser(context.Context) (*core.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.Clone(), nil
}

func (c *IdentityClient) SignInWithPassword(_ context.Context, email, password string) (core.SignInResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.accounts[normalizeEmail(email)]
	if !ok || state.account.Password != password {
		return core.SignInResult{}, core.NewInvalidCredentialsError("mock: invalid credentials")
	}
	if !state.account.EmailConfirmed {
		return core.SignInResult{}, core.NewUnconfirmedEmailError(state.account.Email)
	}

	identity := c.identityForLocked(state.account, true)
	c.current = identity
	return core.SignInResult{
		Identity: identity.Clone(),
		Session:  identity.Session.Clone(),
	}, nil
}

func (c *IdentityClient) SignUp(_ context.Context, email, password string) (core.SignUpResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	normalized := normalizeEmail(email)
	if _, exists := c.accounts[normalized]; exists {
		return core.SignUpResult{}, fmt.Errorf("mock: account already exists")
	}
	account := Account{
		UserID:   uuid.NewString(),
		Email:    strings.TrimSpace(email),
		Password: password,
	}
	c.accounts[normalized] = &accountState{account: account}
	c.confirmTokens[uuid.NewString()] = normalized

	// Session withheld until the email is confirmed.
	identity := c.identityForLocked(account, false)
	c.current = identity
	return core.SignUpResult{Identity: identity.Clone()}, nil
}

func (c *IdentityClient) SignOut(context.Context) error {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
	c.notify(nil)
	return nil
}

func (c *IdentityClient) ResetPasswordForEmail(_ context.Context, email string, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	normalized := normalizeEmail(email)
	// Unknown addresses succeed silently; the mock mirrors providers that
	// never reveal whether an account exists.
	if _, ok := c.accounts[normalized]; ok {
		c.exchangeCodes[uuid.NewString()] = normalized
	}
	return nil
}

func (c *IdentityClient) ResendConfirmation(_ context.Context, email string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	normalized := normalizeEmail(email)
	if _, ok := c.accounts[normalized]; ok {
		c.confirmTokens[uuid.NewString()] = normalized
	}
	return nil
}

func (c *IdentityClient) VerifyEmail(_ context.Context, token string) (*core.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	normalized, ok := c.confirmTokens[token]
	if !ok {
		return nil, core.NewTokenInvalidError("mock: unknown confirmation token")
	}
	delete(c.confirmTokens, token)

	state, ok := c.accounts[normalized]
	if !ok {
		return nil, core.NewTokenInvalidError("mock: account no longer exists")
	}
	state.account.EmailConfirmed = true

	identity := c.identityForLocked(state.account, true)
	c.current = identity
	return identity.Clone(), nil
}

// ExchangeCodeForSession consumes the code on first use; a second exchange
// errors without touching the established session.
func (c *IdentityClient) ExchangeCodeForSession(_ context.Context, code string) (*core.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	normalized, ok := c.exchangeCodes[code]
	if !ok {
		return nil, core.NewTokenInvalidError("mock: exchange code already consumed or unknown")
	}
	delete(c.exchangeCodes, code)

	state, ok := c.accounts[normalized]
	if !ok {
		return nil, core.NewTokenInvalidError("mock: account no longer exists")
	}
	identity := c.identityForLocked(state.account, true)
	c.current = identity
	return identity.Session.Clone(), nil
}

func (c *IdentityClient) OnSessionChange(callback func(session *core.Session)) func() {
	if callback == nil {
		return func() {}
	}
	c.mu.Lock()
	c.nextListener++
	id := c.nextListener
	c.listeners[id] = callback
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// PushSession simulates a provider-initiated session change (refresh,
// remote sign-out). Tests drive reentrancy scenarios through it.
func (c *IdentityClient) PushSession(session *core.Session) {
	c.mu.Lock()
	if c.current != nil {
		c.current.Session = session.Clone()
	}
	c.mu.Unlock()
	c.notify(session)
}

// ConfirmationTokens returns the outstanding confirmation tokens, for tests
// that need to complete the verify flow.
func (c *IdentityClient) ConfirmationTokens() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	tokens := make([]string, 0, len(c.confirmTokens))
	for token := range c.confirmTokens {
		tokens = append(tokens, token)
	}
	return tokens
}

// ExchangeCodesFor returns outstanding exchange codes for the given email.
func (c *IdentityClient) ExchangeCodesFor(email string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	normalized := normalizeEmail(email)
	codes := make([]string, 0, 1)
	for code, owner := range c.exchangeCodes {
		if owner == normalized {
			codes = append(codes, code)
		}
	}
	return codes
}

func (c *IdentityClient) identityForLocked(account Account, withSession bool) *core.Identity {
	identity := &core.Identity{
		UserID:         account.UserID,
		Email:          account.Email,
		EmailConfirmed: account.EmailConfirmed,
	}
	if withSession {
		expiresAt := c.now().Add(c.sessionTTL)
		identity.Session = &core.Session{
			AccessToken:  uuid.NewString(),
			RefreshToken: uuid.NewString(),
			TokenType:    "bearer",
			ExpiresAt:    &expiresAt,
		}
	}
	return identity
}

func (c *IdentityClient) notify(session *core.Session) {
	c.mu.Lock()
	callbacks := make([]func(session *core.Session), 0, len(c.listeners))
	for _, callback := range c.listeners {
		callbacks = append(callbacks, callback)
	}
	c.mu.Unlock()

	for _, callback := range callbacks {
		callback(session.Clone())
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ core.IdentityClient = (*IdentityClient)(nil)
