package authsvc_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/mkrupp/apptemplate/internal/authclient"
	"github.com/mkrupp/apptemplate/internal/credstore"
	"github.com/mkrupp/apptemplate/internal/credstore/native"
	"github.com/mkrupp/apptemplate/internal/domain"
	"github.com/mkrupp/apptemplate/internal/svc/authsvc"
)

// memStorage is an in-memory credstore.SecureStorage.
type memStorage struct {
	m     sync.Mutex
	items map[string]string
}

func (s *memStorage) GetItem(_ context.Context, key string) (string, error) {
	s.m.Lock()
	defer s.m.Unlock()

	v, ok := s.items[key]
	if !ok {
		return "", credstore.ErrItemNotFound
	}

	return v, nil
}

func (s *memStorage) SetItem(_ context.Context, key, value string) error {
	s.m.Lock()
	defer s.m.Unlock()

	if s.items == nil {
		s.items = make(map[string]string)
	}

	s.items[key] = value

	return nil
}

func (s *memStorage) DeleteItem(_ context.Context, key string) error {
	s.m.Lock()
	defer s.m.Unlock()

	if _, ok := s.items[key]; !ok {
		return credstore.ErrItemNotFound
	}

	delete(s.items, key)

	return nil
}

// fakeProvider is an OAuth2 provider that accepts the code "good".
func fakeProvider(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "good" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))

			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","token_type":"bearer"}`))
	})
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at" {
			w.WriteHeader(http.StatusUnauthorized)

			return
		}

		_ = json.NewEncoder(w).Encode(map[string]string{"login": "octo", "name": "Octo Cat"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

// providerRedirector plays the browser: it skips the provider's consent page
// and calls the service's callback with code, then follows the redirect back.
type providerRedirector struct {
	code string
}

func (p providerRedirector) Redirect(ctx context.Context, authURL, callbackURL string) (*url.URL, error) {
	auth, err := url.Parse(authURL)
	if err != nil {
		return nil, err
	}

	callback, err := url.Parse(auth.Query().Get("redirect_uri"))
	if err != nil {
		return nil, err
	}

	callback.RawQuery = url.Values{"code": {p.code}, "state": {auth.Query().Get("state")}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, callback.String(), nil)
	if err != nil {
		return nil, err
	}

	//nolint:exhaustruct
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		return nil, errors.New("callback did not redirect: " + resp.Status)
	}

	return url.Parse(resp.Header.Get("Location"))
}

func setupTransport(t *testing.T) (*httptest.Server, *capturingMailer) {
	t.Helper()

	provider := fakeProvider(t)

	srv := httptest.NewUnstartedServer(nil)

	cfg := testConfig
	cfg.Social.BaseURL = "http://" + srv.Listener.Addr().String()
	cfg.Social.GitHub = authsvc.SocialProviderConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		AuthURL:      provider.URL + "/authorize",
		TokenURL:     provider.URL + "/token",
		UserInfoURL:  provider.URL + "/user",
	}

	svc, mailer, _ := setupTestService(t, cfg, nil)

	//nolint:exhaustruct
	srv.Config.Handler = authsvc.NewHTTPTransport(svc, authsvc.HTTPTransportConfig{CookieName: "session"})
	srv.Start()
	t.Cleanup(srv.Close)

	return srv, mailer
}

func newClient(t *testing.T, srv *httptest.Server, redirector authclient.SocialRedirector) *authclient.HTTPClient {
	t.Helper()

	client, err := authclient.NewHTTPClient(
		authclient.HTTPClientConfig{BaseURL: srv.URL, AppURL: "http://app.test", MinPasswordLength: 8},
		authclient.Deps{
			HTTPClient: srv.Client(),
			Store:      native.NewSecureStore(&memStorage{}, "session_token"),
			Carrier:    native.BearerCarrier{},
			Redirector: redirector,
		},
	)
	if err != nil {
		t.Fatalf("NewHTTPClient() error = %v", err)
	}

	return client
}

func TestHTTPTransport_EmailFlow(t *testing.T) {
	t.Parallel()

	srv, mailer := setupTransport(t)
	client := newClient(t, srv, nil)
	ctx := context.Background()

	signedUp, err := client.SignUp(ctx, authclient.SignUpRequest{Email: "alice@example.com", Password: "password123", Name: "Alice"})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	got, err := client.GetSession(ctx)
	if err != nil || got.User == nil || got.User.ID != signedUp.User.ID || got.ID != signedUp.ID {
		t.Fatalf("GetSession() = %+v, %v", got, err)
	}

	_, err = client.SignUp(ctx, authclient.SignUpRequest{Email: "alice@example.com", Password: "password123"})
	if domain.CodeOf(err) != domain.CodeUserAlreadyExists {
		t.Errorf("SignUp() duplicate code = %s (%v)", domain.CodeOf(err), err)
	}

	if err := client.SignOut(ctx); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}

	if got, err := client.GetSession(ctx); err != nil || got.Authenticated() {
		t.Errorf("GetSession() after sign out = %+v, %v", got, err)
	}

	_, err = client.SignInEmail(ctx, "alice@example.com", "wrong-password")
	if domain.CodeOf(err) != domain.CodeInvalidCredentials {
		t.Errorf("SignInEmail() wrong password code = %s (%v)", domain.CodeOf(err), err)
	}

	if err := client.ForgetPassword(ctx, authclient.ForgetPasswordRequest{Email: "nobody@example.com"}); err != nil {
		t.Errorf("ForgetPassword() unknown account error = %v", err)
	}

	req := authclient.ForgetPasswordRequest{Email: "alice@example.com", RedirectTo: "http://app.test/reset-password"}
	if err := client.ForgetPassword(ctx, req); err != nil {
		t.Fatalf("ForgetPassword() error = %v", err)
	}

	link, _ := mailer.link("alice@example.com")
	u, _ := url.Parse(link)

	err = client.ResetPassword(ctx, authclient.ResetPasswordRequest{Token: "wrong-token", NewPassword: "new-password"})
	if domain.CodeOf(err) != domain.CodeInvalidToken {
		t.Errorf("ResetPassword() wrong token code = %s (%v)", domain.CodeOf(err), err)
	}

	reset := authclient.ResetPasswordRequest{Token: u.Query().Get("token"), NewPassword: "new-password"}
	if err := client.ResetPassword(ctx, reset); err != nil {
		t.Fatalf("ResetPassword() error = %v", err)
	}

	if _, err := client.SignInEmail(ctx, "alice@example.com", "new-password"); err != nil {
		t.Fatalf("SignInEmail() error = %v", err)
	}

	if state := client.Session().Load(ctx); !state.Authenticated() || state.Data.User.Email != "alice@example.com" {
		t.Errorf("session stream = %+v", state)
	}
}

func TestHTTPTransport_SocialFlow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		code      string
		wantEmail string
		wantCode  domain.ErrorCode
	}{
		{name: "provider accepts", code: "good", wantEmail: "octo@users.noreply.github.com"},
		{name: "provider rejects", code: "bad", wantCode: domain.CodeInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv, _ := setupTransport(t)
			client := newClient(t, srv, providerRedirector{code: tt.code})
			ctx := context.Background()

			session, err := client.SignInSocial(ctx, "github", "http://app.test/auth/callback")
			if tt.wantCode != "" {
				if domain.CodeOf(err) != tt.wantCode {
					t.Fatalf("SignInSocial() code = %s (%v), want %s", domain.CodeOf(err), err, tt.wantCode)
				}

				return
			}

			if err != nil {
				t.Fatalf("SignInSocial() error = %v", err)
			}

			if session.User.Email != tt.wantEmail || session.User.Name != "Octo Cat" || !session.User.EmailVerified {
				t.Errorf("SignInSocial() user = %+v", session.User)
			}

			if got, err := client.GetSession(ctx); err != nil || got.User.Email != tt.wantEmail {
				t.Errorf("GetSession() = %+v, %v", got, err)
			}
		})
	}
}

func TestHTTPTransport_GetSessionWithoutCredential(t *testing.T) {
	t.Parallel()

	srv, _ := setupTransport(t)

	for _, auth := range []string{"", "Bearer garbage"} {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+authsvc.BasePath+"/get-session", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}

		resp, err := srv.Client().Do(req)
		if err != nil {
			t.Fatalf("get-session: %v", err)
		}

		var body any
		_ = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK || body != nil {
			t.Errorf("get-session with %q = %d %v, want 200 null", auth, resp.StatusCode, body)
		}
	}
}
