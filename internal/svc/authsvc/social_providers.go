package authsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/mkrupp/apptemplate/internal/domain"
)

var (
	// ErrUnknownProvider is returned for providers that are not configured.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrNoProfile is returned when a provider does not identify the user.
	ErrNoProfile = errors.New("provider returned no profile")
)

// SocialProviderConfig configures one OAuth2 identity provider. A provider
// without a client id is disabled.
type SocialProviderConfig struct {
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	AuthURL      string   `env:"AUTH_URL"`
	TokenURL     string   `env:"TOKEN_URL"`
	UserInfoURL  string   `env:"USER_INFO_URL"`
	Scopes       []string `env:"SCOPES" envSeparator:","`
}

// SocialConfig configures social sign-in.
type SocialConfig struct {
	// BaseURL is the service's external URL; providers redirect to
	// BaseURL/api/auth/callback/<provider>
	BaseURL string               `env:"BASE_URL" envDefault:"http://localhost:8081"`
	GitHub  SocialProviderConfig `envPrefix:"GITHUB_"`
	Google  SocialProviderConfig `envPrefix:"GOOGLE_"`
}

// Profile is the identity a provider vouches for.
type Profile struct {
	Email string
	Name  string
	Image string
}

type socialProvider struct {
	oauth       *oauth2.Config
	userInfoURL string
}

// SocialProviders builds provider redirects and resolves callbacks.
type SocialProviders struct {
	providers map[string]socialProvider
	client    *http.Client
}

//nolint:gochecknoglobals
var providerDefaults = map[string]SocialProviderConfig{
	"github": {
		AuthURL:     "https://github.com/login/oauth/authorize",
		TokenURL:    "https://github.com/login/oauth/access_token",
		UserInfoURL: "https://api.github.com/user",
		Scopes:      []string{"read:user", "user:email"},
	},
	"google": {
		AuthURL:     "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL:    "https://oauth2.googleapis.com/token",
		UserInfoURL: "https://openidconnect.googleapis.com/v1/userinfo",
		Scopes:      []string{"openid", "email", "profile"},
	},
}

// NewSocialProviders creates the enabled providers. client is used for the
// token exchange and profile lookup; nil means http.DefaultClient.
func NewSocialProviders(cfg SocialConfig, client *http.Client) *SocialProviders {
	if client == nil {
		client = http.DefaultClient
	}

	p := &SocialProviders{providers: make(map[string]socialProvider), client: client}
	base := strings.TrimSuffix(cfg.BaseURL, "/")

	for name, pc := range map[string]SocialProviderConfig{"github": cfg.GitHub, "google": cfg.Google} {
		if pc.ClientID == "" {
			continue
		}

		def := providerDefaults[name]

		//nolint:exhaustruct
		p.providers[name] = socialProvider{
			oauth: &oauth2.Config{
				ClientID:     pc.ClientID,
				ClientSecret: pc.ClientSecret,
				Endpoint: oauth2.Endpoint{
					AuthURL:  or(pc.AuthURL, def.AuthURL),
					TokenURL: or(pc.TokenURL, def.TokenURL),
				},
				RedirectURL: base + "/api/auth/callback/" + name,
				Scopes:      orSlice(pc.Scopes, def.Scopes),
			},
			userInfoURL: or(pc.UserInfoURL, def.UserInfoURL),
		}
	}

	return p
}

func or(v, fallback string) string {
	if v == "" {
		return fallback
	}

	return v
}

func orSlice(v, fallback []string) []string {
	if len(v) == 0 {
		return fallback
	}

	return v
}

func (p *SocialProviders) get(name string) (socialProvider, error) {
	sp, ok := p.providers[name]
	if !ok {
		return socialProvider{}, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}

	return sp, nil
}

// AuthCodeURL returns the provider page the user signs in on.
func (p *SocialProviders) AuthCodeURL(provider, state string) (string, error) {
	sp, err := p.get(provider)
	if err != nil {
		return "", err
	}

	return sp.oauth.AuthCodeURL(state), nil
}

// Exchange trades an authorization code for the user's profile.
func (p *SocialProviders) Exchange(ctx context.Context, provider, code string) (Profile, error) {
	sp, err := p.get(provider)
	if err != nil {
		return Profile{}, err
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)

	token, err := sp.oauth.Exchange(ctx, code)
	if err != nil {
		return Profile{}, fmt.Errorf("exchange code: %w", errors.Join(domain.ErrInvalidCredentials, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sp.userInfoURL, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("new request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := sp.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Profile{}, fmt.Errorf("get profile: %w: %s", ErrNoProfile, resp.Status)
	}

	var info struct {
		Email     string `json:"email"`
		Name      string `json:"name"`
		Login     string `json:"login"`
		AvatarURL string `json:"avatar_url"`
		Picture   string `json:"picture"`
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}

	profile := Profile{
		Email: info.Email,
		Name:  or(info.Name, info.Login),
		Image: or(info.AvatarURL, info.Picture),
	}

	if profile.Email == "" && info.Login != "" {
		// github hides private addresses from the profile
		profile.Email = info.Login + "@users.noreply.github.com"
	}

	if profile.Email == "" {
		return Profile{}, fmt.Errorf("get profile: %w: no email", ErrNoProfile)
	}

	return profile, nil
}
