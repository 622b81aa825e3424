package query

import (
	"context"

	"github.com/goliatone/go-appstate/core"
	"github.com/goliatone/go-appstate/deeplink"
)

// IdentityReader is the read-only slice of the session state machine.
type IdentityReader interface {
	CurrentIdentity() *core.Identity
	Phase() core.SessionPhase
	HasCompletedOnboarding() bool
}

// EntitlementReader exposes the last committed entitlement snapshot.
type EntitlementReader interface {
	Current() (core.EntitlementSnapshot, bool)
}

// DeepLinkResolver is the pure resolve surface.
type DeepLinkResolver interface {
	Resolve(rawURI string) (*deeplink.Link, error)
}

// IdentityView is the query result: the identity plus its derived phase.
type IdentityView struct {
	Identity *core.Identity
	Phase    core.SessionPhase
}

type GetIdentityQuery struct {
	reader IdentityReader
}

func NewGetIdentityQuery(reader IdentityReader) *GetIdentityQuery {
	return &GetIdentityQuery{reader: reader}
}

func (q *GetIdentityQuery) Query(_ context.Context, _ GetIdentityMessage) (IdentityView, error) {
	if q == nil || q.reader == nil {
		return IdentityView{}, queryDependencyError("query: identity reader is required")
	}
	return IdentityView{
		Identity: q.reader.CurrentIdentity(),
		Phase:    q.reader.Phase(),
	}, nil
}

type GetOnboardingStatusQuery struct {
	reader IdentityReader
}

func NewGetOnboardingStatusQuery(reader IdentityReader) *GetOnboardingStatusQuery {
	return &GetOnboardingStatusQuery{reader: reader}
}

func (q *GetOnboardingStatusQuery) Query(_ context.Context, _ GetOnboardingStatusMessage) (bool, error) {
	if q == nil || q.reader == nil {
		return false, queryDependencyError("query: identity reader is required")
	}
	return q.reader.HasCompletedOnboarding(), nil
}

// EntitlementView carries the snapshot plus whether one has been committed.
type EntitlementView struct {
	Snapshot core.EntitlementSnapshot
	Known    bool
}

type GetEntitlementQuery struct {
	reader EntitlementReader
}

func NewGetEntitlementQuery(reader EntitlementReader) *GetEntitlementQuery {
	return &GetEntitlementQuery{reader: reader}
}

func (q *GetEntitlementQuery) Query(_ context.Context, _ GetEntitlementMessage) (EntitlementView, error) {
	if q == nil || q.reader == nil {
		return EntitlementView{}, queryDependencyError("query: entitlement reader is required")
	}
	snapshot, known := q.reader.Current()
	return EntitlementView{Snapshot: snapshot, Known: known}, nil
}

type ResolveDeepLinkQuery struct {
	resolver DeepLinkResolver
}

func NewResolveDeepLinkQuery(resolver DeepLinkResolver) *ResolveDeepLinkQuery {
	return &ResolveDeepLinkQuery{resolver: resolver}
}

func (q *ResolveDeepLinkQuery) Query(_ context.Context, msg ResolveDeepLinkMessage) (*deeplink.Link, error) {
	if q == nil || q.resolver == nil {
		return nil, queryDependencyError("query: deep link resolver is required")
	}
	return q.resolver.Resolve(msg.URI)
}
