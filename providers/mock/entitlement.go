package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-appstate/core"
)

// EntitlementClient is a scriptable in-memory entitlement provider. Tests
// and credential-less startups queue snapshots and the client replays them
// in order, repeating the last one once the script runs out.
type EntitlementClient struct {
	now func() time.Time

	mu          sync.Mutex
	configured  bool
	identityKey string
	script      []core.EntitlementSnapshot
	index       int
	unavailable bool
	logOutErr   error
}

type EntitlementOption func(*EntitlementClient)

func WithEntitlementClock(now func() time.Time) EntitlementOption {
	return func(c *EntitlementClient) {
		if now != nil {
			c.now = now
		}
	}
}

func WithScriptedSnapshots(snapshots ...core.EntitlementSnapshot) EntitlementOption {
	return func(c *EntitlementClient) {
		c.script = append(c.script, snapshots...)
	}
}

func NewEntitlementClient(options ...EntitlementOption) *EntitlementClient {
	client := &EntitlementClient{
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(client)
	}
	return client
}

// SetUnavailable toggles provider-unavailable behavior for every snapshot
// query until cleared.
func (c *EntitlementClient) SetUnavailable(unavailable bool) {
	c.mu.Lock()
	c.unavailable = unavailable
	c.mu.Unlock()
}

// RejectLogOut makes the next LogOut calls fail with err. Pass nil to
// restore normal behavior.
func (c *EntitlementClient) RejectLogOut(err error) {
	c.mu.Lock()
	c.logOutErr = err
	c.mu.Unlock()
}

// PushSnapshot appends a snapshot to the replay script.
func (c *EntitlementClient) PushSnapshot(snapshot core.EntitlementSnapshot) {
	c.mu.Lock()
	c.script = append(c.script, snapshot)
	c.mu.Unlock()
}

func (c *EntitlementClient) Configure(_ context.Context, _ map[string]any) error {
	c.mu.Lock()
	c.configured = true
	c.mu.Unlock()
	return nil
}

func (c *EntitlementClient) LogIn(_ context.Context, identityKey string) error {
	identityKey = strings.TrimSpace(identityKey)
	if identityKey == "" {
		return fmt.Errorf("mock: identity key is required")
	}
	c.mu.Lock()
	c.identityKey = identityKey
	c.mu.Unlock()
	return nil
}

func (c *EntitlementClient) LogOut(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.logOutErr != nil {
		return c.logOutErr
	}
	c.identityKey = ""
	return nil
}

func (c *EntitlementClient) GetEntitlementSnapshot(context.Context) (core.EntitlementSnapshot, error) {
	return c.nextSnapshot()
}

func (c *EntitlementClient) Purchase(_ context.Context, productRef string) (core.EntitlementSnapshot, error) {
	productRef = strings.TrimSpace(productRef)
	if productRef == "" {
		return core.EntitlementSnapshot{}, fmt.Errorf("mock: product ref is required")
	}
	snapshot, err := c.nextSnapshot()
	if err != nil {
		return core.EntitlementSnapshot{}, err
	}
	snapshot.ProductID = productRef
	return snapshot, nil
}

func (c *EntitlementClient) Restore(ctx context.Context) (core.EntitlementSnapshot, error) {
	return c.nextSnapshot()
}

// CurrentIdentityKey reports who the provider is bound to, for assertions.
func (c *EntitlementClient) CurrentIdentityKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identityKey
}

func (c *EntitlementClient) nextSnapshot() (core.EntitlementSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.unavailable {
		return core.EntitlementSnapshot{}, core.ErrProviderUnavailable
	}
	if len(c.script) == 0 {
		return core.EntitlementSnapshot{
			Status:    core.EntitlementStatusInactive,
			FetchedAt: c.now(),
		}, nil
	}
	if c.index >= len(c.script) {
		return c.script[len(c.script)-1].Clone(), nil
	}
	snapshot := c.script[c.index].Clone()
	c.index++
	return snapshot, nil
}

var _ core.EntitlementClient = (*EntitlementClient)(nil)
