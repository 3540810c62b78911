package authclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mkrupp/apptemplate/internal/authclient"
	"github.com/mkrupp/apptemplate/internal/credstore/native"
	"github.com/mkrupp/apptemplate/internal/domain"
)

var errStoreBroken = errors.New("keystore unavailable")

// memStore is an in-memory credstore.Store.
type memStore struct {
	m       sync.Mutex
	cred    domain.Credential
	ok      bool
	setErr  error
	stuck   bool // Remove leaves the credential in place
	removed int
}

func (s *memStore) Get(context.Context) (domain.Credential, bool) {
	s.m.Lock()
	defer s.m.Unlock()

	return s.cred, s.ok
}

func (s *memStore) Set(_ context.Context, cred domain.Credential) error {
	s.m.Lock()
	defer s.m.Unlock()

	if s.setErr != nil {
		return s.setErr
	}

	s.cred, s.ok = cred, true

	return nil
}

func (s *memStore) Remove(context.Context) {
	s.m.Lock()
	defer s.m.Unlock()

	s.removed++

	if !s.stuck {
		s.cred, s.ok = "", false
	}
}

// fakeRemote emulates the HTTP boundary of the remote auth service. Tokens are
// "token-<email>".
type fakeRemote struct {
	calls atomic.Int32

	signOutStatus int
	forgetStatus  map[string]int
	// hold blocks sign-in for an email until the channel is closed.
	hold    map[string]chan struct{}
	arrived chan string
	revoked map[string]bool
	// nullSession answers get-session with null for every token.
	nullSession bool
	lastReq     *http.Request
	m           sync.Mutex
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		signOutStatus: http.StatusOK,
		forgetStatus:  map[string]int{},
		hold:          map[string]chan struct{}{},
		arrived:       make(chan string, 8),
		revoked:       map[string]bool{},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeRemote) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)

	f.m.Lock()
	f.lastReq = r
	f.m.Unlock()

	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	email, _ := body["email"].(string)

	switch r.URL.Path {
	case "/api/auth/sign-in/email", "/api/auth/sign-up/email":
		select {
		case f.arrived <- email:
		default:
		}

		f.m.Lock()
		hold := f.hold[email]
		f.m.Unlock()

		if hold != nil {
			<-hold
		}

		switch {
		case body["password"] == "wrong-password":
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"code": "INVALID_EMAIL_OR_PASSWORD", "message": "Invalid email or password",
			})
		case email == "limited@example.com":
			w.WriteHeader(http.StatusTooManyRequests)
		case email == "taken@example.com":
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"code": "USER_ALREADY_EXISTS", "message": "User already exists",
			})
		default:
			token := "token-" + email
			w.Header().Set(native.AuthTokenHeader, token)
			writeJSON(w, http.StatusOK, map[string]any{
				"token":   token,
				"user":    map[string]any{"id": "id-" + email, "email": email},
				"session": map[string]any{"id": "s-" + email},
			})
		}
	case "/api/auth/sign-in/social":
		writeJSON(w, http.StatusOK, map[string]any{"url": "https://provider.example.com/authorize", "redirect": false})
	case "/api/auth/sign-out":
		w.WriteHeader(f.signOutStatus)
	case "/api/auth/forget-password":
		status := f.forgetStatus[email]
		if status == 0 {
			status = http.StatusOK
		}

		if status == http.StatusOK {
			writeJSON(w, status, map[string]bool{"status": true})
		} else {
			writeJSON(w, status, map[string]string{"code": "USER_NOT_FOUND", "message": "User not found"})
		}
	case "/api/auth/reset-password":
		if body["token"] != "good-token" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"code": "INVALID_TOKEN", "message": "invalid token"})

			return
		}

		writeJSON(w, http.StatusOK, map[string]bool{"status": true})
	case "/api/auth/get-session":
		token := strings.TrimPrefix(r.Header.Get(native.AuthorizationHeader), "Bearer ")

		f.m.Lock()
		revoked, null := f.revoked[token], f.nullSession
		f.m.Unlock()

		if revoked {
			w.WriteHeader(http.StatusUnauthorized)

			return
		}

		email, ok := strings.CutPrefix(token, "token-")
		if !ok || null {
			writeJSON(w, http.StatusOK, nil)

			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"session": map[string]any{"id": "s-" + email},
			"user":    map[string]any{"id": "id-" + email, "email": email},
		})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func setupClient(t *testing.T, remote *fakeRemote, store *memStore) *authclient.HTTPClient {
	t.Helper()

	server := httptest.NewServer(remote)
	t.Cleanup(server.Close)

	client, err := authclient.NewHTTPClient(authclient.HTTPClientConfig{
		BaseURL:        server.URL,
		AppURL:         "https://app.example.com",
		RequestTimeout: 5 * time.Second,
	}, authclient.Deps{
		HTTPClient: server.Client(),
		Store:      store,
		Carrier:    native.BearerCarrier{},
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	return client
}

func TestNewHTTPClient(t *testing.T) {
	tests := []struct {
		name    string
		cfg     authclient.HTTPClientConfig
		deps    authclient.Deps
		wantErr bool
	}{
		{
			name: "valid",
			cfg:  authclient.HTTPClientConfig{BaseURL: "https://auth.example.com"},
			deps: authclient.Deps{Store: &memStore{}, Carrier: native.BearerCarrier{}},
		},
		{
			name:    "relative base url",
			cfg:     authclient.HTTPClientConfig{BaseURL: "auth.example.com"},
			deps:    authclient.Deps{Store: &memStore{}, Carrier: native.BearerCarrier{}},
			wantErr: true,
		},
		{
			name:    "missing store",
			cfg:     authclient.HTTPClientConfig{BaseURL: "https://auth.example.com"},
			deps:    authclient.Deps{Carrier: native.BearerCarrier{}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := authclient.NewHTTPClient(tt.cfg, tt.deps)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewHTTPClient() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSignInEmailThenSession(t *testing.T) {
	remote := newFakeRemote()
	store := &memStore{}
	client := setupClient(t, remote, store)
	ctx := context.Background()

	if state := client.Session().Get(); !state.IsPending || state.Data != nil {
		t.Fatalf("initial state = %+v, want pending without data", state)
	}

	session, err := client.SignInEmail(ctx, "alice@example.com", "correct-password")
	if err != nil {
		t.Fatalf("SignInEmail() error = %v", err)
	}

	if session.User == nil || session.User.Email != "alice@example.com" {
		t.Fatalf("session user = %+v", session.User)
	}

	if cred, ok := store.Get(ctx); !ok || cred != "token-alice@example.com" {
		t.Errorf("stored credential = %q, %v", cred, ok)
	}

	state := client.Session().Get()
	if state.IsPending || !state.Authenticated() || state.Data.User.Email != "alice@example.com" {
		t.Errorf("state after sign in = %+v", state)
	}

	remote.m.Lock()
	origin := remote.lastReq.Header.Get(authclient.OriginHeader)
	remote.m.Unlock()

	if origin != "https://app.example.com" {
		t.Errorf("Origin header = %q", origin)
	}
}

func TestSignOutClearsCredentialWhenRemoteFails(t *testing.T) {
	remote := newFakeRemote()
	remote.signOutStatus = http.StatusInternalServerError
	store := &memStore{}
	client := setupClient(t, remote, store)
	ctx := context.Background()

	if _, err := client.SignInEmail(ctx, "alice@example.com", "correct-password"); err != nil {
		t.Fatalf("SignInEmail() error = %v", err)
	}

	err := client.SignOut(ctx)

	var authErr *domain.AuthError
	if !errors.As(err, &authErr) || authErr.Status != http.StatusInternalServerError {
		t.Errorf("SignOut() error = %v, want remote 500", err)
	}

	if _, ok := store.Get(ctx); ok {
		t.Error("credential still stored after sign out")
	}

	if state := client.Session().Get(); state.Data != nil {
		t.Errorf("session after sign out = %+v, want none", state.Data)
	}
}

func TestForgetPasswordIsUniform(t *testing.T) {
	remote := newFakeRemote()
	remote.forgetStatus["nonexistent@x.com"] = http.StatusNotFound
	client := setupClient(t, remote, &memStore{})
	ctx := context.Background()

	existing := client.ForgetPassword(ctx, authclient.ForgetPasswordRequest{Email: "exists@x.com"})
	missing := client.ForgetPassword(ctx, authclient.ForgetPasswordRequest{Email: "nonexistent@x.com"})

	if existing != nil || missing != nil {
		t.Errorf("ForgetPassword() = %v / %v, want identical nil results", existing, missing)
	}
}

func TestResetPassword(t *testing.T) {
	client := setupClient(t, newFakeRemote(), &memStore{})
	ctx := context.Background()

	if err := client.ResetPassword(ctx, authclient.ResetPasswordRequest{Token: "good-token", NewPassword: "new-password"}); err != nil {
		t.Errorf("ResetPassword() error = %v", err)
	}

	err := client.ResetPassword(ctx, authclient.ResetPasswordRequest{Token: "bad-token", NewPassword: "new-password"})
	if !errors.Is(err, domain.ErrInvalidAuthToken) {
		t.Errorf("ResetPassword() error = %v, want invalid token", err)
	}
}

func TestConcurrentSignInLastCompletedWins(t *testing.T) {
	tests := []struct {
		name      string
		firstDone string
		lastDone  string
	}{
		{name: "second request completes last", firstDone: "a@example.com", lastDone: "b@example.com"},
		{name: "first request completes last", firstDone: "b@example.com", lastDone: "a@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := newFakeRemote()
			release := map[string]chan struct{}{
				"a@example.com": make(chan struct{}),
				"b@example.com": make(chan struct{}),
			}
			remote.hold = release

			store := &memStore{}
			client := setupClient(t, remote, store)
			ctx := context.Background()

			done := map[string]chan struct{}{}

			for _, email := range []string{"a@example.com", "b@example.com"} {
				finished := make(chan struct{})
				done[email] = finished

				go func() {
					defer close(finished)

					if _, err := client.SignInEmail(ctx, email, "correct-password"); err != nil {
						t.Errorf("SignInEmail(%s) error = %v", email, err)
					}
				}()
			}

			<-remote.arrived
			<-remote.arrived

			close(release[tt.firstDone])
			<-done[tt.firstDone]
			close(release[tt.lastDone])
			<-done[tt.lastDone]

			state := client.Session().Get()
			if !state.Authenticated() || state.Data.User.Email != tt.lastDone {
				t.Fatalf("session user = %+v, want %s", state.Data, tt.lastDone)
			}

			if cred, _ := store.Get(ctx); cred != domain.Credential("token-"+tt.lastDone) {
				t.Errorf("stored credential = %q, want token of %s", cred, tt.lastDone)
			}
		})
	}
}

func TestSignInErrors(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		want     domain.ErrorCode
		sentinel error
		noCall   bool
	}{
		{
			name: "wrong password", email: "alice@example.com", password: "wrong-password",
			want: domain.CodeInvalidCredentials, sentinel: domain.ErrInvalidCredentials,
		},
		{
			name: "rate limited", email: "limited@example.com", password: "correct-password",
			want: domain.CodeRateLimited, sentinel: domain.ErrRateLimited,
		},
		{
			name: "malformed email", email: "not-an-email", password: "correct-password",
			want: domain.CodeValidation, sentinel: domain.ErrValidation, noCall: true,
		},
		{
			name: "empty password", email: "alice@example.com", password: "",
			want: domain.CodeValidation, sentinel: domain.ErrValidation, noCall: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := newFakeRemote()
			store := &memStore{}
			client := setupClient(t, remote, store)

			_, err := client.SignInEmail(context.Background(), tt.email, tt.password)
			if got := domain.CodeOf(err); got != tt.want {
				t.Errorf("code = %s, want %s (err %v)", got, tt.want, err)
			}

			if !errors.Is(err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.sentinel)
			}

			if tt.noCall && remote.calls.Load() != 0 {
				t.Errorf("remote called %d times, want none", remote.calls.Load())
			}

			if _, ok := store.Get(context.Background()); ok {
				t.Error("credential stored after failed sign in")
			}
		})
	}
}

func TestSignUp(t *testing.T) {
	ctx := context.Background()

	t.Run("weak password", func(t *testing.T) {
		remote := newFakeRemote()
		client := setupClient(t, remote, &memStore{})

		_, err := client.SignUp(ctx, authclient.SignUpRequest{Email: "new@example.com", Password: "short"})
		if domain.CodeOf(err) != domain.CodeValidation || remote.calls.Load() != 0 {
			t.Errorf("SignUp() error = %v, calls = %d", err, remote.calls.Load())
		}
	})

	t.Run("existing user", func(t *testing.T) {
		client := setupClient(t, newFakeRemote(), &memStore{})

		_, err := client.SignUp(ctx, authclient.SignUpRequest{Email: "taken@example.com", Password: "long-enough"})
		if !errors.Is(err, domain.ErrUserAlreadyExists) {
			t.Errorf("SignUp() error = %v, want user already exists", err)
		}
	})

	t.Run("success", func(t *testing.T) {
		store := &memStore{}
		client := setupClient(t, newFakeRemote(), store)

		session, err := client.SignUp(ctx, authclient.SignUpRequest{Email: "new@example.com", Password: "long-enough"})
		if err != nil || session.User.Email != "new@example.com" {
			t.Fatalf("SignUp() = %+v, %v", session, err)
		}

		if _, ok := store.Get(ctx); !ok {
			t.Error("credential not stored after sign up")
		}
	})
}

func TestNetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	client, err := authclient.NewHTTPClient(authclient.HTTPClientConfig{
		BaseURL:        baseURL,
		RequestTimeout: time.Second,
	}, authclient.Deps{Store: &memStore{}, Carrier: native.BearerCarrier{}})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	_, err = client.SignInEmail(context.Background(), "alice@example.com", "correct-password")
	if !errors.Is(err, domain.ErrNetwork) {
		t.Errorf("SignInEmail() error = %v, want network error", err)
	}
}

func TestSetFailureMarksDegraded(t *testing.T) {
	store := &memStore{setErr: errStoreBroken}
	client := setupClient(t, newFakeRemote(), store)

	session, err := client.SignInEmail(context.Background(), "alice@example.com", "correct-password")
	if err != nil || !session.Authenticated() {
		t.Fatalf("SignInEmail() = %+v, %v; want success despite store failure", session, err)
	}

	state := client.Session().Get()
	if !state.Authenticated() || !state.Degraded {
		t.Errorf("state = %+v, want authenticated and degraded", state)
	}
}

func TestSignOutWithStuckCredentialIsDegraded(t *testing.T) {
	store := &memStore{stuck: true}
	client := setupClient(t, newFakeRemote(), store)
	ctx := context.Background()

	if _, err := client.SignInEmail(ctx, "alice@example.com", "correct-password"); err != nil {
		t.Fatalf("SignInEmail() error = %v", err)
	}

	if err := client.SignOut(ctx); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}

	state := client.Session().Get()
	if state.Authenticated() || !state.Degraded {
		t.Errorf("state = %+v, want signed out and degraded", state)
	}
}

func TestGetSessionInvalidationSignsOutStream(t *testing.T) {
	tests := []struct {
		name   string
		revoke func(*fakeRemote)
	}{
		{
			name:   "revoked token",
			revoke: func(f *fakeRemote) { f.revoked["token-alice@example.com"] = true },
		},
		{
			name:   "null session",
			revoke: func(f *fakeRemote) { f.nullSession = true },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := newFakeRemote()
			store := &memStore{}
			client := setupClient(t, remote, store)
			ctx := context.Background()

			if _, err := client.SignInEmail(ctx, "alice@example.com", "correct-password"); err != nil {
				t.Fatalf("SignInEmail() error = %v", err)
			}

			var seen []authclient.State

			sub := client.Session().Subscribe(func(s authclient.State) { seen = append(seen, s) })
			defer sub.Close()

			remote.m.Lock()
			tt.revoke(remote)
			remote.m.Unlock()

			session, err := client.GetSession(ctx)
			if err != nil || session.Authenticated() {
				t.Fatalf("GetSession() = %+v, %v, want no session", session, err)
			}

			if _, ok := store.Get(ctx); ok {
				t.Error("credential still stored")
			}

			if state := client.Session().Get(); state.Authenticated() || state.Degraded {
				t.Errorf("stream state = %+v, want signed out", state)
			}

			if len(seen) == 0 || seen[len(seen)-1].Authenticated() {
				t.Errorf("subscriber saw %+v, want a signed-out delivery last", seen)
			}
		})
	}
}

func TestGetSession(t *testing.T) {
	ctx := context.Background()

	t.Run("no credential makes no call", func(t *testing.T) {
		remote := newFakeRemote()
		client := setupClient(t, remote, &memStore{})

		session, err := client.GetSession(ctx)
		if err != nil || session.Authenticated() || remote.calls.Load() != 0 {
			t.Errorf("GetSession() = %+v, %v, calls = %d", session, err, remote.calls.Load())
		}
	})

	t.Run("valid credential", func(t *testing.T) {
		client := setupClient(t, newFakeRemote(), &memStore{cred: "token-alice@example.com", ok: true})

		session, err := client.GetSession(ctx)
		if err != nil || session.User == nil || session.User.Email != "alice@example.com" {
			t.Errorf("GetSession() = %+v, %v", session, err)
		}
	})

	t.Run("revoked credential is removed", func(t *testing.T) {
		remote := newFakeRemote()
		remote.revoked["token-alice@example.com"] = true
		store := &memStore{cred: "token-alice@example.com", ok: true}
		client := setupClient(t, remote, store)

		session, err := client.GetSession(ctx)
		if err != nil || session.Authenticated() {
			t.Errorf("GetSession() = %+v, %v, want no session", session, err)
		}

		if _, ok := store.Get(ctx); ok {
			t.Error("revoked credential still stored")
		}
	})

	t.Run("expired jwt is removed without a call", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		}).SignedString([]byte("test-secret"))
		if err != nil {
			t.Fatalf("failed to sign token: %v", err)
		}

		remote := newFakeRemote()
		store := &memStore{cred: domain.Credential(token), ok: true}
		client := setupClient(t, remote, store)

		session, err := client.GetSession(ctx)
		if err != nil || session.Authenticated() {
			t.Errorf("GetSession() = %+v, %v", session, err)
		}

		if _, ok := store.Get(ctx); ok || remote.calls.Load() != 0 {
			t.Errorf("expired credential kept = %v, calls = %d", ok, remote.calls.Load())
		}
	})
}

func TestSessionLoadOnce(t *testing.T) {
	remote := newFakeRemote()
	client := setupClient(t, remote, &memStore{cred: "token-alice@example.com", ok: true})
	ctx := context.Background()

	first := client.Session().Load(ctx)
	second := client.Session().Load(ctx)

	if !first.Authenticated() || !second.Authenticated() {
		t.Fatalf("Load() = %+v / %+v", first, second)
	}

	if calls := remote.calls.Load(); calls != 1 {
		t.Errorf("remote called %d times, want 1", calls)
	}
}

type recordingNavigator struct {
	pushed []string
}

func (n *recordingNavigator) Push(target string) error {
	n.pushed = append(n.pushed, target)

	return nil
}
func (n *recordingNavigator) Replace(string) error             { return nil }
func (n *recordingNavigator) Back() error                      { return nil }
func (n *recordingNavigator) CurrentPath() string              { return "/" }
func (n *recordingNavigator) QueryParam(string) (string, bool) { return "", false }

func TestSignInSocial(t *testing.T) {
	ctx := context.Background()

	t.Run("navigates away", func(t *testing.T) {
		remote := newFakeRemote()
		server := httptest.NewServer(remote)
		t.Cleanup(server.Close)

		nav := &recordingNavigator{}

		client, err := authclient.NewHTTPClient(authclient.HTTPClientConfig{BaseURL: server.URL, RequestTimeout: time.Second},
			authclient.Deps{
				Store: &memStore{}, Carrier: native.BearerCarrier{},
				Redirector: authclient.NavigatorRedirector{Navigator: nav},
			})
		if err != nil {
			t.Fatalf("failed to create client: %v", err)
		}

		_, err = client.SignInSocial(ctx, "github", "https://app.example.com/dashboard")
		if !errors.Is(err, domain.ErrNavigatedAway) {
			t.Errorf("SignInSocial() error = %v, want navigated away", err)
		}

		if len(nav.pushed) != 1 || nav.pushed[0] != "https://provider.example.com/authorize" {
			t.Errorf("pushed = %v", nav.pushed)
		}
	})

	t.Run("returns through deep link", func(t *testing.T) {
		remote := newFakeRemote()
		server := httptest.NewServer(remote)
		t.Cleanup(server.Close)

		links := make(chan string, 2)
		opened := ""
		store := &memStore{}

		client, err := authclient.NewHTTPClient(authclient.HTTPClientConfig{BaseURL: server.URL, RequestTimeout: time.Second},
			authclient.Deps{
				Store: store, Carrier: native.BearerCarrier{},
				Redirector: authclient.DeepLinkRedirector{
					Open: func(target string) error {
						opened = target
						links <- "apptemplate://other?token=ignored"
						links <- "apptemplate://callback?token=" + url.QueryEscape("token-bob@example.com")

						return nil
					},
					Links: links,
				},
			})
		if err != nil {
			t.Fatalf("failed to create client: %v", err)
		}

		session, err := client.SignInSocial(ctx, "github", "apptemplate://callback")
		if err != nil || session.User.Email != "bob@example.com" {
			t.Fatalf("SignInSocial() = %+v, %v", session, err)
		}

		if opened != "https://provider.example.com/authorize" {
			t.Errorf("opened = %q", opened)
		}

		if cred, _ := store.Get(ctx); cred != "token-bob@example.com" {
			t.Errorf("stored credential = %q", cred)
		}
	})

	t.Run("provider error", func(t *testing.T) {
		client := setupClient(t, newFakeRemote(), &memStore{})

		returned, _ := url.Parse("https://app.example.com/dashboard?error=access_denied")

		_, err := client.CompleteSocial(ctx, returned)
		if !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Errorf("CompleteSocial() error = %v", err)
		}
	})
}
