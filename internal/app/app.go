// Package app composes the selected platform variant, the auth client and the
// session hook. New is the only place they are constructed.
package app

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mkrupp/apptemplate/internal/authclient"
	"github.com/mkrupp/apptemplate/internal/credstore"
	"github.com/mkrupp/apptemplate/internal/guard"
	"github.com/mkrupp/apptemplate/internal/infra/config"
	"github.com/mkrupp/apptemplate/internal/infra/logging"
	http_ "github.com/mkrupp/apptemplate/internal/infra/transport/http"
	"github.com/mkrupp/apptemplate/internal/navigation"
	"github.com/mkrupp/apptemplate/internal/platform"
	"github.com/mkrupp/apptemplate/internal/session"
)

// Name is the application identifier used for logging and the keyring.
const Name = "apptemplate"

// CredentialConfig configures where the credential lives on each target.
type CredentialConfig struct {
	// CookieName is the session cookie set by the remote (web, edge)
	CookieName string `env:"COOKIE_NAME" envDefault:"apptemplate.session_token"`
	// CookieMaxAge bounds the relayed session cookie (edge)
	CookieMaxAge time.Duration `env:"COOKIE_MAX_AGE" envDefault:"168h"`
	// StorageKey is the fixed secure storage key (native)
	StorageKey string `env:"STORAGE_KEY" envDefault:"session_token"`
	// KeyringService namespaces the keystore items (native)
	KeyringService string `env:"KEYRING_SERVICE" envDefault:"apptemplate"`
}

// Config is the application configuration. API_URL and APP_URL are required;
// a missing one fails startup.
type Config struct {
	config.EnvConfig

	APIURL string `env:"API_URL,required,notEmpty"`
	AppURL string `env:"APP_URL,required,notEmpty"`

	Log         logging.LoggerConfig        `envPrefix:"LOG_"`
	Auth        authclient.HTTPClientConfig `envPrefix:"AUTH_"`
	Credentials CredentialConfig            `envPrefix:"CREDENTIALS_"`
	Guard       guard.Config                `envPrefix:"GUARD_"`
	HTTP        http_.HTTPTransportConfig   `envPrefix:"HTTP_"`
}

// LoadConfig reads Config from the environment and checks the URLs.
func LoadConfig(ctx context.Context) (Config, error) {
	var cfg Config

	if err := config.Parse(ctx, &cfg, ""); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	for name, raw := range map[string]string{"API_URL": cfg.APIURL, "APP_URL": cfg.AppURL} {
		if _, err := parseOrigin(raw); err != nil {
			return Config{}, fmt.Errorf("%s: %w", name, err)
		}
	}

	return cfg, nil
}

func parseOrigin(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not an absolute http(s) url", config.ErrUnsupportedVarType, raw)
	}

	return u, nil
}

// App is one constructed application instance: once per process on the web
// and native targets, once per request on the edge target.
type App struct {
	Config    Config
	Target    string
	Client    *authclient.HTTPClient
	Store     credstore.Store
	Navigator navigation.Navigator
	Session   *session.Hook
}

// New resolves the platform variant for host and builds the auth client on it.
func New(_ context.Context, cfg Config, host platform.Host) (*App, error) {
	apiURL, err := parseOrigin(cfg.APIURL)
	if err != nil {
		return nil, fmt.Errorf("api url: %w", err)
	}

	appURL, err := parseOrigin(cfg.AppURL)
	if err != nil {
		return nil, fmt.Errorf("app url: %w", err)
	}

	host.APIURL = apiURL
	host.AppURL = appURL

	if host.CookieName == "" {
		host.CookieName = cfg.Credentials.CookieName
	}

	if host.CookieMaxAge == 0 {
		host.CookieMaxAge = cfg.Credentials.CookieMaxAge
	}

	if host.StorageKey == "" {
		host.StorageKey = cfg.Credentials.StorageKey
	}

	if host.KeyringService == "" {
		host.KeyringService = cfg.Credentials.KeyringService
	}

	if host.HTTPClient == nil {
		host.HTTPClient = &http.Client{Timeout: cfg.Auth.RequestTimeout}
	}

	variant, err := platform.Resolve(host)
	if err != nil {
		return nil, fmt.Errorf("resolve platform: %w", err)
	}

	authCfg := cfg.Auth
	authCfg.BaseURL = cfg.APIURL
	authCfg.AppURL = cfg.AppURL

	client, err := authclient.NewHTTPClient(authCfg, authclient.Deps{
		HTTPClient: variant.HTTPClient,
		Store:      variant.Store,
		Carrier:    variant.Carrier,
		Redirector: variant.Redirector,
	})
	if err != nil {
		return nil, fmt.Errorf("new auth client: %w", err)
	}

	return &App{
		Config:    cfg,
		Target:    variant.Target,
		Client:    client,
		Store:     variant.Store,
		Navigator: variant.Navigator,
		Session:   session.NewHook(client.Session()),
	}, nil
}

// Guard creates a route guard on the app's navigator.
func (a *App) Guard(schedule guard.Scheduler) *guard.Guard {
	return guard.New(a.Navigator, a.Config.Guard, schedule)
}

// CallbackURL is where social sign-in returns to.
func (a *App) CallbackURL(path string) string {
	u, err := url.Parse(a.Config.AppURL)
	if err != nil {
		return path
	}

	return u.JoinPath(path).String()
}
