package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/mkrupp/apptemplate/internal/credstore"
	"github.com/mkrupp/apptemplate/internal/domain"
	"github.com/mkrupp/apptemplate/internal/infra/logging"
	http_ "github.com/mkrupp/apptemplate/internal/infra/transport/http"
)

const (
	// OriginHeader carries APP_URL to the remote.
	OriginHeader = "Origin"

	maxResponseBytes = 1 << 20
)

// ErrMissingDependency is returned when the client is constructed without a
// required collaborator.
var ErrMissingDependency = errors.New("missing dependency")

// HTTPClientConfig holds configuration for the HTTP auth client.
type HTTPClientConfig struct {
	// BaseURL is the remote auth service origin (API_URL)
	BaseURL string
	// AppURL is the canonical app origin sent as Origin header (APP_URL)
	AppURL string
	// BasePath is the path prefix of the auth endpoints
	BasePath string `env:"BASE_PATH" envDefault:"/api/auth"`
	// RequestTimeout bounds every call to the remote
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	// MinPasswordLength is the client-side password policy
	MinPasswordLength int `env:"MIN_PASSWORD_LENGTH" envDefault:"8"`
}

// Deps are the collaborators of HTTPClient. Store and Carrier come from the
// platform variant selected at build time.
type Deps struct {
	HTTPClient *http.Client
	Store      credstore.Store
	Carrier    credstore.Carrier
	Redirector SocialRedirector
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// HTTPClient implements AuthClient against the remote auth service's HTTP API.
type HTTPClient struct {
	httpClient *http.Client
	store      credstore.Store
	carrier    credstore.Carrier
	redirector SocialRedirector
	now        func() time.Time
	baseURL    *url.URL
	log        logging.Logger
	cfg        HTTPClientConfig
	stream     *SessionStream

	// m serializes commits of credential and session so both always come from
	// the same writer. It is never held across a network call.
	m sync.Mutex
}

var _ AuthClient = (*HTTPClient)(nil)

// NewHTTPClient creates a new HTTPClient with the given configuration.
// If deps.HTTPClient is nil, http.DefaultClient will be used.
func NewHTTPClient(cfg HTTPClientConfig, deps Deps) (*HTTPClient, error) {
	if deps.Store == nil || deps.Carrier == nil {
		return nil, fmt.Errorf("%w: credential store and carrier are required", ErrMissingDependency)
	}

	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	} else if !baseURL.IsAbs() {
		return nil, fmt.Errorf("parse base url: %q is not absolute", cfg.BaseURL)
	}

	if cfg.BasePath == "" {
		cfg.BasePath = "/api/auth"
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	if deps.HTTPClient == nil {
		deps.HTTPClient = http.DefaultClient
	}

	if deps.Now == nil {
		deps.Now = time.Now
	}

	client := &HTTPClient{
		httpClient: deps.HTTPClient,
		store:      deps.Store,
		carrier:    deps.Carrier,
		redirector: deps.Redirector,
		now:        deps.Now,
		baseURL:    baseURL,
		log:        logging.GetLogger("authclient.http_client"),
		cfg:        cfg,
	}

	client.stream = NewSessionStream(client.GetSession)

	return client, nil
}

// Session implements AuthClient.Session.
func (c *HTTPClient) Session() *SessionStream {
	return c.stream
}

// SignUp implements AuthClient.SignUp.
func (c *HTTPClient) SignUp(ctx context.Context, req SignUpRequest) (domain.Session, error) {
	if err := validateEmail(req.Email); err != nil {
		return domain.Session{}, err
	}

	if err := validatePassword(req.Password, c.cfg.MinPasswordLength); err != nil {
		return domain.Session{}, err
	}

	return c.signIn(ctx, "sign-up/email", req)
}

// SignInEmail implements AuthClient.SignInEmail.
func (c *HTTPClient) SignInEmail(ctx context.Context, email, password string) (domain.Session, error) {
	if err := validateEmail(email); err != nil {
		return domain.Session{}, err
	}

	if password == "" {
		return domain.Session{}, validationError("password is required")
	}

	return c.signIn(ctx, "sign-in/email", map[string]string{
		"email":    email,
		"password": password,
	})
}

// signInResponse is the remote's answer to sign-in and sign-up.
type signInResponse struct {
	Token   string       `json:"token"`
	User    *domain.User `json:"user"`
	Session *struct {
		ID        string     `json:"id"`
		ExpiresAt *time.Time `json:"expiresAt"`
	} `json:"session"`
}

func (c *HTTPClient) signIn(ctx context.Context, path string, body any) (_ domain.Session, err error) {
	log := c.log.With("op", path)

	defer func() {
		if err != nil {
			log.WarnContext(ctx, "sign in failed", "code", domain.CodeOf(err), "error", err)
		} else {
			log.DebugContext(ctx, "signed in")
		}
	}()

	resp, payload, err := c.do(ctx, http.MethodPost, path, body, "", true)
	if err != nil {
		return domain.Session{}, err
	}

	var out signInResponse
	if err := json.Unmarshal(payload, &out); err != nil || out.User == nil {
		return domain.Session{}, &domain.AuthError{
			Code: domain.CodeUnknown, Message: "malformed sign-in response", Status: resp.StatusCode, Err: err,
		}
	}

	cred, ok := c.carrier.Extract(resp)
	if !ok && out.Token != "" {
		cred, ok = domain.Credential(out.Token), true
	}

	if !ok {
		return domain.Session{}, &domain.AuthError{
			Code: domain.CodeUnknown, Message: "remote issued no credential", Status: resp.StatusCode,
		}
	}

	session := domain.Session{User: out.User}
	if out.Session != nil {
		session.ID = out.Session.ID
		session.ExpiresAt = out.Session.ExpiresAt
	}

	c.commit(ctx, cred, session)

	return session, nil
}

// commit stores cred and publishes session as one step. Commits happen in
// response completion order, so the last completed sign-in wins both.
func (c *HTTPClient) commit(ctx context.Context, cred domain.Credential, session domain.Session) {
	c.m.Lock()

	degraded := false

	if err := c.store.Set(ctx, cred); err != nil {
		// the session is live remotely; the persisted credential is not
		c.log.WarnContext(ctx, "credential not persisted, session will not survive restart", "error", err)

		degraded = true
	}

	c.stream.commit(&session, degraded)
	c.m.Unlock()

	c.stream.notify()
}

// clear removes the credential and publishes a signed-out session.
func (c *HTTPClient) clear(ctx context.Context) {
	c.m.Lock()
	lingering := c.removeLocked(ctx)
	c.stream.commit(nil, lingering)
	c.m.Unlock()

	c.stream.notify()
}

// removeLocked removes the stored credential and reports whether the store
// still returns one afterwards. The caller holds c.m.
func (c *HTTPClient) removeLocked(ctx context.Context) bool {
	c.store.Remove(ctx)

	if _, ok := c.store.Get(ctx); ok {
		c.log.WarnContext(ctx, "credential still stored after removal")

		return true
	}

	return false
}

// SignOut implements AuthClient.SignOut.
func (c *HTTPClient) SignOut(ctx context.Context) error {
	cred, _ := c.store.Get(ctx)

	_, _, err := c.do(ctx, http.MethodPost, "sign-out", struct{}{}, cred, false)

	c.clear(ctx)

	if err != nil {
		c.log.WarnContext(ctx, "remote sign out failed, local session cleared", "error", err)

		return err
	}

	c.log.DebugContext(ctx, "signed out")

	return nil
}

// ForgetPassword implements AuthClient.ForgetPassword.
func (c *HTTPClient) ForgetPassword(ctx context.Context, req ForgetPasswordRequest) error {
	if err := validateEmail(req.Email); err != nil {
		return err
	}

	_, _, err := c.do(ctx, http.MethodPost, "forget-password", req, "", false)
	if err != nil {
		// A remote that distinguishes unknown accounts must not leak it further.
		var authErr *domain.AuthError
		if errors.As(err, &authErr) && authErr.Status == http.StatusNotFound {
			return nil
		}

		return err
	}

	return nil
}

// ResetPassword implements AuthClient.ResetPassword.
func (c *HTTPClient) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if req.Token == "" {
		return validationError("reset token is required")
	}

	if err := validatePassword(req.NewPassword, c.cfg.MinPasswordLength); err != nil {
		return err
	}

	_, _, err := c.do(ctx, http.MethodPost, "reset-password", req, "", false)

	return err
}

// getSessionResponse is the remote's session document; the remote answers
// with JSON null when there is no session.
type getSessionResponse struct {
	Session *struct {
		ID        string     `json:"id"`
		ExpiresAt *time.Time `json:"expiresAt"`
	} `json:"session"`
	User *domain.User `json:"user"`
}

// GetSession implements AuthClient.GetSession.
func (c *HTTPClient) GetSession(ctx context.Context) (domain.Session, error) {
	cred, ok := c.store.Get(ctx)
	if !ok {
		return domain.Session{}, nil
	}

	if credentialExpired(cred, c.now()) {
		c.invalidate(ctx, cred)

		return domain.Session{}, nil
	}

	return c.fetchSession(ctx, cred)
}

func (c *HTTPClient) fetchSession(ctx context.Context, cred domain.Credential) (domain.Session, error) {
	resp, session, err := c.requestSession(ctx, cred)
	if err != nil {
		if domain.CodeOf(err) == domain.CodeUnauthorized {
			c.invalidate(ctx, cred)

			return domain.Session{}, nil
		}

		return domain.Session{}, err
	}

	if !session.Authenticated() || session.Expired(c.now()) {
		c.invalidate(ctx, cred)

		return domain.Session{}, nil
	}

	if rotated, ok := c.carrier.Extract(resp); ok && rotated != cred {
		c.rotate(ctx, cred, rotated)
	}

	return session, nil
}

// requestSession asks the remote for the session cred belongs to. It never
// touches the store.
func (c *HTTPClient) requestSession(ctx context.Context, cred domain.Credential) (*http.Response, domain.Session, error) {
	resp, payload, err := c.do(ctx, http.MethodGet, "get-session", nil, cred, false)
	if err != nil {
		return resp, domain.Session{}, err
	}

	var out *getSessionResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return resp, domain.Session{}, &domain.AuthError{
			Code: domain.CodeUnknown, Message: "malformed session response", Status: resp.StatusCode, Err: err,
		}
	}

	if out == nil || out.User == nil {
		return resp, domain.Session{}, nil
	}

	session := domain.Session{User: out.User}
	if out.Session != nil {
		session.ID = out.Session.ID
		session.ExpiresAt = out.Session.ExpiresAt
	}

	return resp, session, nil
}

// invalidate removes cred if it is still the stored credential and publishes
// a signed-out session; a newer credential written concurrently is left alone.
func (c *HTTPClient) invalidate(ctx context.Context, cred domain.Credential) {
	c.m.Lock()

	if current, ok := c.store.Get(ctx); !ok || current != cred {
		c.m.Unlock()

		return
	}

	c.log.DebugContext(ctx, "credential invalidated")
	lingering := c.removeLocked(ctx)
	c.stream.commit(nil, lingering)
	c.m.Unlock()

	c.stream.notify()
}

func (c *HTTPClient) rotate(ctx context.Context, from, to domain.Credential) {
	c.m.Lock()
	defer c.m.Unlock()

	if current, ok := c.store.Get(ctx); ok && current == from {
		if err := c.store.Set(ctx, to); err != nil {
			c.log.WarnContext(ctx, "rotated credential not persisted", "error", err)
		}
	}
}

// do performs a JSON call to the remote. Non-2xx answers and transport
// failures are returned as *domain.AuthError. The response body is consumed
// and returned as payload.
func (c *HTTPClient) do(
	ctx context.Context,
	method string,
	path string,
	body any,
	cred domain.Credential,
	signIn bool,
) (*http.Response, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	var reader io.Reader

	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal request: %w", err)
		}

		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.JoinPath(c.cfg.BasePath, path).String(), reader)
	if err != nil {
		return nil, nil, fmt.Errorf("new request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.cfg.AppURL != "" {
		req.Header.Set(OriginHeader, c.cfg.AppURL)
	}

	http_.PropagateTraceID(req)

	c.carrier.Attach(req, cred)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, &domain.AuthError{Code: domain.CodeNetwork, Message: "auth service unreachable", Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, &domain.AuthError{
			Code: domain.CodeNetwork, Message: "read response", Status: resp.StatusCode, Err: err,
		}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return resp, payload, errorFromResponse(resp.StatusCode, payload, signIn)
	}

	return resp, payload, nil
}
