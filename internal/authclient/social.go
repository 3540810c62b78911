package authclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mkrupp/apptemplate/internal/domain"
	"github.com/mkrupp/apptemplate/internal/navigation"
)

// SocialRedirector hands the provider URL to the host and waits for the
// return to callbackURL. A nil URL with a nil error means the host left the
// app and the flow continues in a fresh page load.
type SocialRedirector interface {
	Redirect(ctx context.Context, authURL, callbackURL string) (*url.URL, error)
}

// NavigatorRedirector leaves the app through the navigator. Used by targets
// where the provider page replaces the running app.
type NavigatorRedirector struct {
	Navigator navigation.Navigator
}

// Redirect implements SocialRedirector.
func (r NavigatorRedirector) Redirect(_ context.Context, authURL, _ string) (*url.URL, error) {
	if err := r.Navigator.Push(authURL); err != nil {
		return nil, fmt.Errorf("push provider url: %w", err)
	}

	return nil, nil //nolint:nilnil
}

// DeepLinkRedirector opens the provider URL in the system browser and waits
// for the deep link that brings the user back.
type DeepLinkRedirector struct {
	Open  func(target string) error
	Links <-chan string
}

// Redirect implements SocialRedirector. Links that do not belong to
// callbackURL are ignored.
func (r DeepLinkRedirector) Redirect(ctx context.Context, authURL, callbackURL string) (*url.URL, error) {
	callback, err := url.Parse(callbackURL)
	if err != nil {
		return nil, fmt.Errorf("parse callback url: %w", err)
	}

	if err := r.Open(authURL); err != nil {
		return nil, fmt.Errorf("open provider url: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for deep link: %w", ctx.Err())
		case link, ok := <-r.Links:
			if !ok {
				return nil, domain.ErrNavigatedAway
			}

			u, err := url.Parse(link)
			if err == nil && sameEndpoint(u, callback) {
				return u, nil
			}
		}
	}
}

func sameEndpoint(u, callback *url.URL) bool {
	return strings.EqualFold(u.Scheme, callback.Scheme) &&
		strings.EqualFold(u.Host, callback.Host) &&
		strings.TrimSuffix(u.Path, "/") == strings.TrimSuffix(callback.Path, "/")
}

type socialResponse struct {
	URL string `json:"url"`
}

// SignInSocial implements AuthClient.SignInSocial.
func (c *HTTPClient) SignInSocial(ctx context.Context, provider, callbackURL string) (domain.Session, error) {
	if err := validateProvider(provider); err != nil {
		return domain.Session{}, err
	}

	if callbackURL == "" {
		return domain.Session{}, validationError("callback url is required")
	}

	if c.redirector == nil {
		return domain.Session{}, fmt.Errorf("%w: social redirector is required", ErrMissingDependency)
	}

	log := c.log.With("op", "sign-in/social", "provider", provider)

	resp, payload, err := c.do(ctx, http.MethodPost, "sign-in/social", map[string]any{
		"provider":        provider,
		"callbackURL":     callbackURL,
		"disableRedirect": true,
	}, "", true)
	if err != nil {
		return domain.Session{}, err
	}

	var out socialResponse
	if err := json.Unmarshal(payload, &out); err != nil || out.URL == "" {
		return domain.Session{}, &domain.AuthError{
			Code: domain.CodeUnknown, Message: "malformed social sign-in response", Status: resp.StatusCode, Err: err,
		}
	}

	returned, err := c.redirector.Redirect(ctx, out.URL, callbackURL)
	if err != nil {
		return domain.Session{}, err
	} else if returned == nil {
		log.DebugContext(ctx, "left app for provider")

		return domain.Session{}, domain.ErrNavigatedAway
	}

	return c.CompleteSocial(ctx, returned)
}

// CompleteSocial turns the callback URL the provider flow returned to into a
// committed session.
func (c *HTTPClient) CompleteSocial(ctx context.Context, returned *url.URL) (domain.Session, error) {
	query := returned.Query()

	if code := query.Get("error"); code != "" {
		return domain.Session{}, domain.NewAuthError(domain.CodeInvalidCredentials, code)
	}

	token := query.Get("token")
	if token == "" {
		return domain.Session{}, domain.NewAuthError(domain.CodeInvalidToken, "callback carries no token")
	}

	cred := domain.Credential(token)

	_, session, err := c.requestSession(ctx, cred)
	if err != nil {
		return domain.Session{}, err
	} else if !session.Authenticated() {
		return domain.Session{}, domain.NewAuthError(domain.CodeInvalidToken, "callback token has no session")
	}

	c.commit(ctx, cred, session)

	return session, nil
}
