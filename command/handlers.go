package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-appstate/core"
)

// SessionService is the mutating surface of the session state machine the
// commands dispatch into.
type SessionService interface {
	SignIn(ctx context.Context, email, password string) (*core.Identity, error)
	SignUp(ctx context.Context, email, password string) (*core.Identity, error)
	SignOut(ctx context.Context) error
	ResetPassword(ctx context.Context, email string, redirectTo string) error
	ResendConfirmation(ctx context.Context, email string) error
	VerifyEmail(ctx context.Context, token string) (*core.Identity, error)
	ExchangeCode(ctx context.Context, code string) (*core.Session, error)
	SetHasCompletedOnboarding(ctx context.Context, completed bool)
}

// EntitlementService is the mutating entitlement surface.
type EntitlementService interface {
	Purchase(ctx context.Context, productRef string) (core.PurchaseResult, error)
	Restore(ctx context.Context) (core.PurchaseResult, error)
}

type SignInCommand struct {
	service SessionService
}

func NewSignInCommand(service SessionService) *SignInCommand {
	return &SignInCommand{service: service}
}

func (c *SignInCommand) Execute(ctx context.Context, msg SignInMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	out, err := c.service.SignIn(ctx, msg.Email, msg.Password)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SignUpCommand struct {
	service SessionService
}

func NewSignUpCommand(service SessionService) *SignUpCommand {
	return &SignUpCommand{service: service}
}

func (c *SignUpCommand) Execute(ctx context.Context, msg SignUpMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	out, err := c.service.SignUp(ctx, msg.Email, msg.Password)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SignOutCommand struct {
	service SessionService
}

func NewSignOutCommand(service SessionService) *SignOutCommand {
	return &SignOutCommand{service: service}
}

func (c *SignOutCommand) Execute(ctx context.Context, _ SignOutMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	return c.service.SignOut(ctx)
}

type ResetPasswordCommand struct {
	service SessionService
}

func NewResetPasswordCommand(service SessionService) *ResetPasswordCommand {
	return &ResetPasswordCommand{service: service}
}

func (c *ResetPasswordCommand) Execute(ctx context.Context, msg ResetPasswordMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	return c.service.ResetPassword(ctx, msg.Email, msg.RedirectTo)
}

type ResendConfirmationCommand struct {
	service SessionService
}

func NewResendConfirmationCommand(service SessionService) *ResendConfirmationCommand {
	return &ResendConfirmationCommand{service: service}
}

func (c *ResendConfirmationCommand) Execute(ctx context.Context, msg ResendConfirmationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	return c.service.ResendConfirmation(ctx, msg.Email)
}

type VerifyEmailCommand struct {
	service SessionService
}

func NewVerifyEmailCommand(service SessionService) *VerifyEmailCommand {
	return &VerifyEmailCommand{service: service}
}

func (c *VerifyEmailCommand) Execute(ctx context.Context, msg VerifyEmailMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	out, err := c.service.VerifyEmail(ctx, msg.Token)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ExchangeCodeCommand struct {
	service SessionService
}

func NewExchangeCodeCommand(service SessionService) *ExchangeCodeCommand {
	return &ExchangeCodeCommand{service: service}
}

func (c *ExchangeCodeCommand) Execute(ctx context.Context, msg ExchangeCodeMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	out, err := c.service.ExchangeCode(ctx, msg.Code)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SetOnboardingCompleteCommand struct {
	service SessionService
}

func NewSetOnboardingCompleteCommand(service SessionService) *SetOnboardingCompleteCommand {
	return &SetOnboardingCompleteCommand{service: service}
}

func (c *SetOnboardingCompleteCommand) Execute(ctx context.Context, msg SetOnboardingCompleteMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	c.service.SetHasCompletedOnboarding(ctx, msg.Completed)
	return nil
}

type PurchaseCommand struct {
	service EntitlementService
}

func NewPurchaseCommand(service EntitlementService) *PurchaseCommand {
	return &PurchaseCommand{service: service}
}

func (c *PurchaseCommand) Execute(ctx context.Context, msg PurchaseMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: entitlement service is required")
	}
	out, err := c.service.Purchase(ctx, msg.ProductRef)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RestoreCommand struct {
	service EntitlementService
}

func NewRestoreCommand(service EntitlementService) *RestoreCommand {
	return &RestoreCommand{service: service}
}

func (c *RestoreCommand) Execute(ctx context.Context, _ RestoreMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: entitlement service is required")
	}
	out, err := c.service.Restore(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
