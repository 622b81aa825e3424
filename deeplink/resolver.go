package deeplink

import (
	"net/url"
	"strings"
	"unicode"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-appstate/core"
)

// Screens that carry a credential-shaped token and are gated behind
// structural validation before any navigation happens.
const (
	ScreenResetPassword = "reset-password"
	ScreenVerifyEmail   = "verify-email"
)

// Link is the parsed navigation target of a deep link URI.
type Link struct {
	Screen string
	Path   []string
	Params map[string]string
}

// Resolver parses app deep links. It is pure: no I/O, no state, so
// resolving the same URI twice yields the same result.
type Resolver struct {
	config core.DeepLinkConfig
	logger core.Logger
}

type Option func(*Resolver)

func WithLogger(logger core.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func New(config core.DeepLinkConfig, options ...Option) *Resolver {
	if strings.TrimSpace(config.Scheme) == "" {
		config.Scheme = "app"
	}
	if config.MaxTokenLength <= 0 {
		config.MaxTokenLength = 512
	}
	resolver := &Resolver{
		config: config,
		logger: glog.Ensure(nil),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(resolver)
	}
	return resolver
}

// Resolve parses rawURI into a Link. A foreign scheme or an unparsable URI
// yields (nil, nil): not our link, no navigation, no error. A sensitive
// screen with a structurally invalid token yields a TokenInvalid error and
// the token value is never logged.
func (r *Resolver) Resolve(rawURI string) (*Link, error) {
	if r == nil {
		return nil, nil
	}
	rawURI = strings.TrimSpace(rawURI)
	if rawURI == "" {
		return nil, nil
	}

	parsed, err := url.Parse(rawURI)
	if err != nil {
		r.logger.Info("deep link unparsable, ignoring", "error", err.Error())
		return nil, nil
	}
	if !strings.EqualFold(parsed.Scheme, r.config.Scheme) {
		return nil, nil
	}

	segments := splitSegments(parsed)
	if len(segments) == 0 {
		return nil, nil
	}

	link := &Link{
		Screen: segments[0],
		Path:   segments[1:],
		Params: flattenQuery(parsed.Query()),
	}

	if isSensitiveScreen(link.Screen) {
		if err := r.validateToken(link); err != nil {
			return nil, err
		}
	}
	return link, nil
}

func (r *Resolver) validateToken(link *Link) error {
	token := link.Params["token"]
	if token == "" {
		token = link.Params["code"]
	}
	if reason := tokenRejection(token, r.config.MaxTokenLength); reason != "" {
		r.logger.Error("deep link token rejected",
			"screen", link.Screen,
			"reason", reason,
		)
		return core.NewTokenInvalidError("deeplink: " + reason)
	}
	return nil
}

// tokenRejection returns an empty string for a structurally sound token.
// This is shape validation only; authoritative validation happens when the
// token is submitted to the identity provider.
func tokenRejection(token string, maxLength int) string {
	if token == "" {
		return "token is empty"
	}
	if len(token) > maxLength {
		return "token exceeds maximum length"
	}
	for _, char := range token {
		if unicode.IsSpace(char) || unicode.IsControl(char) {
			return "token contains whitespace or control characters"
		}
	}
	return ""
}

func isSensitiveScreen(screen string) bool {
	return screen == ScreenResetPassword || screen == ScreenVerifyEmail
}

// splitSegments normalizes the two URI shapes providers hand us:
// app://screen/sub/path and app:///screen/sub/path. The host, when
// present, is the first segment.
func splitSegments(parsed *url.URL) []string {
	var segments []string
	if host := strings.TrimSpace(parsed.Host); host != "" {
		segments = append(segments, host)
	}
	for _, part := range strings.Split(parsed.Path, "/") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		segments = append(segments, part)
	}
	return segments
}

// flattenQuery keeps the first value per key.
func flattenQuery(values url.Values) map[string]string {
	if len(values) == 0 {
		return map[string]string{}
	}
	params := make(map[string]string, len(values))
	for key, list := range values {
		if len(list) == 0 {
			params[key] = ""
			continue
		}
		params[key] = list[0]
	}
	return params
}
