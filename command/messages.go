package command

import (
	"fmt"
	"strings"
)

const (
	TypeSignIn             = "appstate.command.session.sign_in"
	TypeSignUp             = "appstate.command.session.sign_up"
	TypeSignOut            = "appstate.command.session.sign_out"
	TypeResetPassword      = "appstate.command.session.reset_password"
	TypeResendConfirmation = "appstate.command.session.resend_confirmation"
	TypeVerifyEmail        = "appstate.command.session.verify_email"
	TypeExchangeCode       = "appstate.command.session.exchange_code"
	TypeSetOnboarding      = "appstate.command.onboarding.set_complete"
	TypePurchase           = "appstate.command.entitlement.purchase"
	TypeRestore            = "appstate.command.entitlement.restore"
)

type SignInMessage struct {
	Email    string
	Password string
}

func (SignInMessage) Type() string { return TypeSignIn }

func (m SignInMessage) Validate() error {
	if strings.TrimSpace(m.Email) == "" {
		return fmt.Errorf("command: email is required")
	}
	if m.Password == "" {
		return fmt.Errorf("command: password is required")
	}
	return nil
}

type SignUpMessage struct {
	Email    string
	Password string
}

func (SignUpMessage) Type() string { return TypeSignUp }

func (m SignUpMessage) Validate() error {
	if strings.TrimSpace(m.Email) == "" {
		return fmt.Errorf("command: email is required")
	}
	if m.Password == "" {
		return fmt.Errorf("command: password is required")
	}
	return nil
}

type SignOutMessage struct{}

func (SignOutMessage) Type() string { return TypeSignOut }

func (SignOutMessage) Validate() error { return nil }

type ResetPasswordMessage struct {
	Email      string
	RedirectTo string
}

func (ResetPasswordMessage) Type() string { return TypeResetPassword }

func (m ResetPasswordMessage) Validate() error {
	if strings.TrimSpace(m.Email) == "" {
		return fmt.Errorf("command: email is required")
	}
	return nil
}

type ResendConfirmationMessage struct {
	Email string
}

func (ResendConfirmationMessage) Type() string { return TypeResendConfirmation }

func (m ResendConfirmationMessage) Validate() error {
	if strings.TrimSpace(m.Email) == "" {
		return fmt.Errorf("command: email is required")
	}
	return nil
}

type VerifyEmailMessage struct {
	Token string
}

func (VerifyEmailMessage) Type() string { return TypeVerifyEmail }

func (m VerifyEmailMessage) Validate() error {
	if strings.TrimSpace(m.Token) == "" {
		return fmt.Errorf("command: token is required")
	}
	return nil
}

type ExchangeCodeMessage struct {
	Code string
}

func (ExchangeCodeMessage) Type() string { return TypeExchangeCode }

func (m ExchangeCodeMessage) Validate() error {
	if strings.TrimSpace(m.Code) == "" {
		return fmt.Errorf("command: code is required")
	}
	return nil
}

type SetOnboardingCompleteMessage struct {
	Completed bool
}

func (SetOnboardingCompleteMessage) Type() string { return TypeSetOnboarding }

func (SetOnboardingCompleteMessage) Validate() error { return nil }

type PurchaseMessage struct {
	ProductRef string
}

func (PurchaseMessage) Type() string { return TypePurchase }

func (m PurchaseMessage) Validate() error {
	if strings.TrimSpace(m.ProductRef) == "" {
		return fmt.Errorf("command: product ref is required")
	}
	return nil
}

type RestoreMessage struct{}

func (RestoreMessage) Type() string { return TypeRestore }

func (RestoreMessage) Validate() error { return nil }
