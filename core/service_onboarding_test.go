package core

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func waitForSetCall(t *testing.T, store *stubOnboardingStore) {
	t.Helper()
	select {
	case <-store.setCalls:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for detached onboarding write")
	}
}

func TestGuestOnboardingDefaultsComplete(t *testing.T) {
	service := newTestService(t, &stubIdentityClient{})
	if !service.HasCompletedOnboarding() {
		t.Fatal("guest onboarding must default to complete")
	}
}

func TestRemoteCompleteIsSticky(t *testing.T) {
	store := newStubOnboardingStore()
	store.completed["user-1"] = true
	service := newTestService(t, &stubIdentityClient{}, WithOnboardingStore(store))

	resolved := service.SyncOnboardingStatus(context.Background(), "user-1", false)
	if !resolved {
		t.Fatal("remote complete must win over local incomplete")
	}
	if !service.localOnboarding("user-1") {
		t.Fatal("resolved flag must be cached locally")
	}
}

func TestLocalCompletePropagatesToRemote(t *testing.T) {
	store := newStubOnboardingStore()
	service := newTestService(t, &stubIdentityClient{}, WithOnboardingStore(store))

	resolved := service.SyncOnboardingStatus(context.Background(), "user-1", true)
	if !resolved {
		t.Fatal("local complete must resolve to complete")
	}
	waitForSetCall(t, store)
	if !store.remote("user-1") {
		t.Fatal("local complete must be written to the remote store")
	}
}

func TestRemoteFetchFailureUsesLocalFlag(t *testing.T) {
	store := newStubOnboardingStore()
	store.getErr = fmt.Errorf("stub: remote store down")
	service := newTestService(t, &stubIdentityClient{}, WithOnboardingStore(store))
	ctx := context.Background()

	if resolved := service.SyncOnboardingStatus(ctx, "user-1", false); resolved {
		t.Fatal("fetch failure with local incomplete must stay incomplete")
	}
	if resolved := service.SyncOnboardingStatus(ctx, "user-2", true); !resolved {
		t.Fatal("fetch failure with local complete must stay complete")
	}
}

func TestSetHasCompletedOnboardingWritesThrough(t *testing.T) {
	store := newStubOnboardingStore()
	client := &stubIdentityClient{
		signIn: func(context.Context, string, string) (SignInResult, error) {
			return SignInResult{
				Identity: confirmedIdentity("user-1", "user@example.com"),
				Session:  validSession("token-1"),
			}, nil
		},
	}
	service := newTestService(t, client, WithOnboardingStore(store))
	ctx := context.Background()

	if _, err := service.SignIn(ctx, "user@example.com", "secret"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	// A freshly signed-in user has not onboarded.
	if service.HasCompletedOnboarding() {
		t.Fatal("signed-in user must not inherit the guest default")
	}

	service.SetHasCompletedOnboarding(ctx, true)
	if !service.HasCompletedOnboarding() {
		t.Fatal("local flag must update synchronously")
	}
	waitForSetCall(t, store)
	if !store.remote("user-1") {
		t.Fatal("completion must propagate to the remote store")
	}
}

func TestOnboardingIsPerIdentity(t *testing.T) {
	client := &stubIdentityClient{
		signIn: func(_ context.Context, email, _ string) (SignInResult, error) {
			identity := confirmedIdentity("user-"+email, email)
			return SignInResult{Identity: identity, Session: validSession("token-" + email)}, nil
		},
	}
	service := newTestService(t, client)
	ctx := context.Background()

	if _, err := service.SignIn(ctx, "a@example.com", "secret"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	service.SetHasCompletedOnboarding(ctx, true)
	if !service.HasCompletedOnboarding() {
		t.Fatal("first user must be complete")
	}

	if _, err := service.SignIn(ctx, "b@example.com", "secret"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if service.HasCompletedOnboarding() {
		t.Fatal("second user must not inherit the first user's completion")
	}
}
