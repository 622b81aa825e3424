package entitlement

import (
	"context"
	"errors"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-appstate/core"
)

// Service wraps the entitlement provider client and owns the previous
// snapshot slot the detector compares against. Every snapshot crossing the
// boundary is copied, so callers can never mutate the slot.
type Service struct {
	client    core.EntitlementClient
	publisher core.LifecyclePublisher
	logger    core.Logger
	now       func() time.Time

	mu         sync.Mutex
	previous   *core.EntitlementSnapshot
	configured bool
}

type Option func(*Service)

func WithLogger(logger core.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithPublisher(publisher core.LifecyclePublisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(client core.EntitlementClient, options ...Option) (*Service, error) {
	if client == nil {
		return nil, errors.New("entitlement: client is required")
	}
	service := &Service{
		client: client,
		logger: glog.Ensure(nil),
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(service)
	}
	return service, nil
}

// Configure initializes the provider SDK. Idempotent: repeated calls after
// a success are no-ops.
func (s *Service) Configure(ctx context.Context, options map[string]any) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.configured {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.client.Configure(ctx, options); err != nil {
		return err
	}
	s.mu.Lock()
	s.configured = true
	s.mu.Unlock()
	return nil
}

// Refresh queries the provider for the current snapshot, runs transition
// detection against the previous one, and publishes at most one lifecycle
// event. A ProviderUnavailable failure degrades to no-entitlement instead
// of failing: the app keeps working, features stay locked.
func (s *Service) Refresh(ctx context.Context) (core.EntitlementSnapshot, error) {
	if s == nil {
		return core.EntitlementSnapshot{}, nil
	}
	snapshot, err := s.client.GetEntitlementSnapshot(ctx)
	if err != nil {
		if errors.Is(err, core.ErrProviderUnavailable) {
			s.logger.Error("entitlement provider unavailable, degrading to no entitlement",
				"error", err.Error(),
			)
			return core.EntitlementSnapshot{
				Status:    core.EntitlementStatusInactive,
				FetchedAt: s.now(),
			}, nil
		}
		return core.EntitlementSnapshot{}, err
	}
	return s.commit(snapshot), nil
}

// Purchase starts the purchase flow for productRef and folds the resulting
// snapshot through the detector.
func (s *Service) Purchase(ctx context.Context, productRef string) (core.PurchaseResult, error) {
	if s == nil {
		return core.PurchaseResult{}, nil
	}
	snapshot, err := s.client.Purchase(ctx, productRef)
	if err != nil {
		return core.PurchaseResult{}, err
	}
	event := s.commitWithEvent(snapshot)
	return core.PurchaseResult{Snapshot: snapshot.Clone(), Event: event}, nil
}

// Restore replays prior purchases through the provider.
func (s *Service) Restore(ctx context.Context) (core.PurchaseResult, error) {
	if s == nil {
		return core.PurchaseResult{}, nil
	}
	snapshot, err := s.client.Restore(ctx)
	if err != nil {
		return core.PurchaseResult{}, err
	}
	event := s.commitWithEvent(snapshot)
	return core.PurchaseResult{Snapshot: snapshot.Clone(), Event: event}, nil
}

// LogIn binds the provider to an identity and resets the previous slot so
// the next refresh detects against the new identity's baseline.
func (s *Service) LogIn(ctx context.Context, identityKey string) error {
	if s == nil {
		return nil
	}
	if err := s.client.LogIn(ctx, identityKey); err != nil {
		return err
	}
	s.mu.Lock()
	s.previous = nil
	s.mu.Unlock()
	return nil
}

func (s *Service) LogOut(ctx context.Context) error {
	if s == nil {
		return nil
	}
	err := s.client.LogOut(ctx)
	s.mu.Lock()
	s.previous = nil
	s.mu.Unlock()
	return err
}

// Current returns a copy of the last committed snapshot, or false when no
// refresh has happened yet.
func (s *Service) Current() (core.EntitlementSnapshot, bool) {
	if s == nil {
		return core.EntitlementSnapshot{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.previous == nil {
		return core.EntitlementSnapshot{}, false
	}
	return s.previous.Clone(), true
}

func (s *Service) commit(snapshot core.EntitlementSnapshot) core.EntitlementSnapshot {
	s.commitWithEvent(snapshot)
	return snapshot.Clone()
}

func (s *Service) commitWithEvent(snapshot core.EntitlementSnapshot) *core.LifecycleEvent {
	s.mu.Lock()
	previous := s.previous
	stored := snapshot.Clone()
	s.previous = &stored
	s.mu.Unlock()

	event := Detect(previous, snapshot, s.now())
	if event != nil && s.publisher != nil {
		s.publisher.Publish(*event)
	}
	return event
}

var _ core.EntitlementSessionControl = (*Service)(nil)
