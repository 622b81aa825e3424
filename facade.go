package appstate

import (
	"fmt"

	appcommand "github.com/goliatone/go-appstate/command"
	"github.com/goliatone/go-appstate/core"
	"github.com/goliatone/go-appstate/deeplink"
	appquery "github.com/goliatone/go-appstate/query"
)

// CommandQueryService is the combined surface the facade dispatches into.
// core.Service satisfies it.
type CommandQueryService interface {
	appcommand.SessionService
	appquery.IdentityReader
}

// EntitlementCommandQuery is the entitlement slice of the facade.
// entitlement.Service satisfies it.
type EntitlementCommandQuery interface {
	appcommand.EntitlementService
	appquery.EntitlementReader
}

type Commands struct {
	SignIn                *appcommand.SignInCommand
	SignUp                *appcommand.SignUpCommand
	SignOut               *appcommand.SignOutCommand
	ResetPassword         *appcommand.ResetPasswordCommand
	ResendConfirmation    *appcommand.ResendConfirmationCommand
	VerifyEmail           *appcommand.VerifyEmailCommand
	ExchangeCode          *appcommand.ExchangeCodeCommand
	SetOnboardingComplete *appcommand.SetOnboardingCompleteCommand
	Purchase              *appcommand.PurchaseCommand
	Restore               *appcommand.RestoreCommand
}

type Queries struct {
	GetIdentity         *appquery.GetIdentityQuery
	GetOnboardingStatus *appquery.GetOnboardingStatusQuery
	GetEntitlement      *appquery.GetEntitlementQuery
	ResolveDeepLink     *appquery.ResolveDeepLinkQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	entitlements EntitlementCommandQuery
	resolver     appquery.DeepLinkResolver
	deepLink     core.DeepLinkConfig
}

func WithEntitlements(entitlements EntitlementCommandQuery) FacadeOption {
	return func(options *facadeOptions) {
		options.entitlements = entitlements
	}
}

func WithDeepLinkResolver(resolver appquery.DeepLinkResolver) FacadeOption {
	return func(options *facadeOptions) {
		options.resolver = resolver
	}
}

func WithDeepLinkConfig(cfg core.DeepLinkConfig) FacadeOption {
	return func(options *facadeOptions) {
		options.deepLink = cfg
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("appstate: command/query service is required")
	}
	cfg := facadeOptions{
		deepLink: core.DefaultConfig().DeepLink,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	if cfg.resolver == nil {
		cfg.resolver = deeplink.New(cfg.deepLink)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		SignIn:                appcommand.NewSignInCommand(service),
		SignUp:                appcommand.NewSignUpCommand(service),
		SignOut:               appcommand.NewSignOutCommand(service),
		ResetPassword:         appcommand.NewResetPasswordCommand(service),
		ResendConfirmation:    appcommand.NewResendConfirmationCommand(service),
		VerifyEmail:           appcommand.NewVerifyEmailCommand(service),
		ExchangeCode:          appcommand.NewExchangeCodeCommand(service),
		SetOnboardingComplete: appcommand.NewSetOnboardingCompleteCommand(service),
		Purchase:              appcommand.NewPurchaseCommand(cfg.entitlements),
		Restore:               appcommand.NewRestoreCommand(cfg.entitlements),
	}
	facade.queries = Queries{
		GetIdentity:         appquery.NewGetIdentityQuery(service),
		GetOnboardingStatus: appquery.NewGetOnboardingStatusQuery(service),
		GetEntitlement:      appquery.NewGetEntitlementQuery(cfg.entitlements),
		ResolveDeepLink:     appquery.NewResolveDeepLinkQuery(cfg.resolver),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
