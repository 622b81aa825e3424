package deeplink

import (
	"reflect"
	"strings"
	"testing"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-appstate/core"
)

func newTestResolver() *Resolver {
	return New(core.DeepLinkConfig{Scheme: "app", MaxTokenLength: 64})
}

func TestForeignSchemeIsNotOurLink(t *testing.T) {
	resolver := newTestResolver()

	for _, uri := range []string{
		"https://example.com/reset-password?token=abc",
		"mailto:user@example.com",
		"otherapp://home",
	} {
		link, err := resolver.Resolve(uri)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", uri, err)
		}
		if link != nil {
			t.Fatalf("%s: expected nil link for foreign scheme, got %+v", uri, link)
		}
	}
}

func TestUnparsableURIIsIgnored(t *testing.T) {
	resolver := newTestResolver()

	link, err := resolver.Resolve("app://%zz%")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if link != nil {
		t.Fatalf("expected nil link, got %+v", link)
	}
}

func TestResolveScreenPathAndParams(t *testing.T) {
	resolver := newTestResolver()

	link, err := resolver.Resolve("app://settings/notifications/email?enabled=true&source=push")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if link == nil {
		t.Fatal("expected a link")
	}
	if link.Screen != "settings" {
		t.Fatalf("screen = %q, want settings", link.Screen)
	}
	if want := []string{"notifications", "email"}; !reflect.DeepEqual(link.Path, want) {
		t.Fatalf("path = %v, want %v", link.Path, want)
	}
	if link.Params["enabled"] != "true" || link.Params["source"] != "push" {
		t.Fatalf("params = %v", link.Params)
	}
}

func TestRepeatedParamKeepsFirstValue(t *testing.T) {
	resolver := newTestResolver()

	link, err := resolver.Resolve("app://home?tab=feed&tab=profile")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if link.Params["tab"] != "feed" {
		t.Fatalf("tab = %q, want first value feed", link.Params["tab"])
	}
}

func TestSensitiveScreenAcceptsValidToken(t *testing.T) {
	resolver := newTestResolver()

	link, err := resolver.Resolve("app://reset-password?token=abc123DEF")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if link == nil || link.Screen != ScreenResetPassword {
		t.Fatalf("link = %+v", link)
	}

	link, err = resolver.Resolve("app://verify-email?code=xyz789")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if link == nil || link.Screen != ScreenVerifyEmail {
		t.Fatalf("link = %+v", link)
	}
}

func TestSensitiveScreenRejectsBadTokens(t *testing.T) {
	resolver := newTestResolver()

	cases := map[string]string{
		"missing":    "app://reset-password",
		"empty":      "app://reset-password?token=",
		"whitespace": "app://reset-password?token=abc%20def",
		"control":    "app://reset-password?token=abc%0adef",
		"too long":   "app://reset-password?token=" + strings.Repeat("a", 65),
	}
	for name, uri := range cases {
		link, err := resolver.Resolve(uri)
		if err == nil {
			t.Fatalf("%s: expected token error", name)
		}
		if link != nil {
			t.Fatalf("%s: rejected link must be nil, got %+v", name, link)
		}
		var richErr *goerrors.Error
		if !goerrors.As(err, &richErr) {
			t.Fatalf("%s: expected rich error, got %T", name, err)
		}
		if richErr.TextCode != core.AppErrorTokenInvalid {
			t.Fatalf("%s: text code = %q, want %q", name, richErr.TextCode, core.AppErrorTokenInvalid)
		}
		if strings.Contains(richErr.Message, "abc") {
			t.Fatalf("%s: error message must not include the token value: %q", name, richErr.Message)
		}
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	resolver := newTestResolver()
	uri := "app://reset-password/extra?token=abc123&foo=bar"

	first, err := resolver.Resolve(uri)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := resolver.Resolve(uri)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("resolve not idempotent: %+v vs %+v", first, second)
	}
}

func TestEmptyAndSchemeOnlyURIs(t *testing.T) {
	resolver := newTestResolver()

	for _, uri := range []string{"", "   ", "app://"} {
		link, err := resolver.Resolve(uri)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", uri, err)
		}
		if link != nil {
			t.Fatalf("%q: expected nil link, got %+v", uri, link)
		}
	}
}
