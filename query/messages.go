package query

import (
	"fmt"
	"strings"
)

const (
	TypeGetIdentity         = "appstate.query.session.identity"
	TypeGetOnboardingStatus = "appstate.query.onboarding.status"
	TypeGetEntitlement      = "appstate.query.entitlement.current"
	TypeResolveDeepLink     = "appstate.query.deeplink.resolve"
)

type GetIdentityMessage struct{}

func (GetIdentityMessage) Type() string { return TypeGetIdentity }

func (GetIdentityMessage) Validate() error { return nil }

type GetOnboardingStatusMessage struct{}

func (GetOnboardingStatusMessage) Type() string { return TypeGetOnboardingStatus }

func (GetOnboardingStatusMessage) Validate() error { return nil }

type GetEntitlementMessage struct{}

func (GetEntitlementMessage) Type() string { return TypeGetEntitlement }

func (GetEntitlementMessage) Validate() error { return nil }

type ResolveDeepLinkMessage struct {
	URI string
}

func (ResolveDeepLinkMessage) Type() string { return TypeResolveDeepLink }

func (m ResolveDeepLinkMessage) Validate() error {
	if strings.TrimSpace(m.URI) == "" {
		return fmt.Errorf("query: uri is required")
	}
	return nil
}
