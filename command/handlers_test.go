package command

import (
	"context"
	"testing"

	"github.com/goliatone/go-appstate/core"
)

type recordingSessionService struct {
	calls      []string
	onboarding bool
}

func (s *recordingSessionService) record(name string) {
	s.calls = append(s.calls, name)
}

func (s *recordingSessionService) SignIn(_ context.Context, email, _ string) (*core.Identity, error) {
	s.record("sign_in")
	return &core.Identity{UserID: "user-1", Email: email}, nil
}

func (s *recordingSessionService) SignUp(_ context.Context, email, _ string) (*core.Identity, error) {
	s.record("sign_up")
	return &core.Identity{UserID: "user-2", Email: email}, nil
}

func (s *recordingSessionService) SignOut(context.Context) error {
	s.record("sign_out")
	return nil
}

func (s *recordingSessionService) ResetPassword(context.Context, string, string) error {
	s.record("reset_password")
	return nil
}

func (s *recordingSessionService) ResendConfirmation(context.Context, string) error {
	s.record("resend_confirmation")
	return nil
}

func (s *recordingSessionService) VerifyEmail(context.Context, string) (*core.Identity, error) {
	s.record("verify_email")
	return &core.Identity{UserID: "user-1", EmailConfirmed: true}, nil
}

func (s *recordingSessionService) ExchangeCode(context.Context, string) (*core.Session, error) {
	s.record("exchange_code")
	return &core.Session{AccessToken: "token-1"}, nil
}

func (s *recordingSessionService) SetHasCompletedOnboarding(_ context.Context, completed bool) {
	s.record("set_onboarding")
	s.onboarding = completed
}

func TestCommandsDispatchIntoService(t *testing.T) {
	service := &recordingSessionService{}
	ctx := context.Background()

	if err := NewSignInCommand(service).Execute(ctx, SignInMessage{Email: "a@example.com", Password: "x"}); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if err := NewSignOutCommand(service).Execute(ctx, SignOutMessage{}); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if err := NewSetOnboardingCompleteCommand(service).Execute(ctx, SetOnboardingCompleteMessage{Completed: true}); err != nil {
		t.Fatalf("set onboarding: %v", err)
	}

	want := []string{"sign_in", "sign_out", "set_onboarding"}
	if len(service.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", service.calls, want)
	}
	for i, name := range want {
		if service.calls[i] != name {
			t.Fatalf("calls = %v, want %v", service.calls, want)
		}
	}
	if !service.onboarding {
		t.Fatal("onboarding flag not forwarded")
	}
}

func TestCommandsGuardMissingService(t *testing.T) {
	ctx := context.Background()
	if err := NewSignInCommand(nil).Execute(ctx, SignInMessage{Email: "a@example.com", Password: "x"}); err == nil {
		t.Fatal("expected dependency error for nil session service")
	}
	if err := NewPurchaseCommand(nil).Execute(ctx, PurchaseMessage{ProductRef: "pro"}); err == nil {
		t.Fatal("expected dependency error for nil entitlement service")
	}
}

func TestMessageValidation(t *testing.T) {
	cases := []struct {
		name    string
		msg     interface{ Validate() error }
		wantErr bool
	}{
		{"sign in ok", SignInMessage{Email: "a@example.com", Password: "x"}, false},
		{"sign in missing email", SignInMessage{Password: "x"}, true},
		{"sign in missing password", SignInMessage{Email: "a@example.com"}, true},
		{"sign up missing email", SignUpMessage{Password: "x"}, true},
		{"reset password ok", ResetPasswordMessage{Email: "a@example.com"}, false},
		{"reset password missing email", ResetPasswordMessage{}, true},
		{"verify email missing token", VerifyEmailMessage{}, true},
		{"exchange code missing code", ExchangeCodeMessage{}, true},
		{"purchase missing product", PurchaseMessage{}, true},
		{"sign out always valid", SignOutMessage{}, false},
		{"restore always valid", RestoreMessage{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}
