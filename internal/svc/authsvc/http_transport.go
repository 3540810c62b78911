package authsvc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mkrupp/apptemplate/internal/domain"
	"github.com/mkrupp/apptemplate/internal/infra/logging"
	http_ "github.com/mkrupp/apptemplate/internal/infra/transport/http"
)

const (
	// BasePath prefixes every endpoint.
	BasePath = "/api/auth"
	// AuthTokenHeader carries the issued token for clients without cookies.
	AuthTokenHeader = "Set-Auth-Token"

	maxBodyBytes = 1 << 16
)

// ErrMalformedBody is returned when a request body is not the expected JSON.
var ErrMalformedBody = errors.New("malformed body")

// HTTPTransportConfig contains configuration parameters for the HTTP transport layer.
type HTTPTransportConfig struct {
	http_.HTTPTransportConfig

	// CookieName is the session cookie set on sign-in
	CookieName string `env:"COOKIE_NAME" envDefault:"apptemplate.session_token"`
	// SecureCookie marks the session cookie Secure
	SecureCookie bool `env:"SECURE_COOKIE" envDefault:"false"`
}

// HTTPTransport serves the auth service's JSON API.
type HTTPTransport struct {
	authSvc *AuthService
	log     logging.Logger
	cfg     HTTPTransportConfig
	mux     *http.ServeMux
}

// NewHTTPTransport creates a new HTTPTransport instance with the given configuration.
func NewHTTPTransport(authSvc *AuthService, cfg HTTPTransportConfig) *HTTPTransport {
	if cfg.CookieName == "" {
		cfg.CookieName = "apptemplate.session_token"
	}

	ht := &HTTPTransport{
		authSvc: authSvc,
		log:     logging.GetLogger("svc.authsvc.http_transport"),
		cfg:     cfg,
		mux:     http.NewServeMux(),
	}

	ht.mux.HandleFunc("POST "+BasePath+"/sign-up/email", ht.handle("sign up", ht.handleSignUp))
	ht.mux.HandleFunc("POST "+BasePath+"/sign-in/email", ht.handle("sign in", ht.handleSignIn))
	ht.mux.HandleFunc("POST "+BasePath+"/sign-in/social", ht.handle("social sign in", ht.handleSocial))
	ht.mux.HandleFunc("GET "+BasePath+"/callback/{provider}", ht.handle("social callback", ht.handleCallback))
	ht.mux.HandleFunc("POST "+BasePath+"/sign-out", ht.handle("sign out", ht.handleSignOut))
	ht.mux.HandleFunc("GET "+BasePath+"/get-session", ht.handle("get session", ht.handleGetSession))
	ht.mux.HandleFunc("POST "+BasePath+"/forget-password", ht.handle("forget password", ht.handleForgetPassword))
	ht.mux.HandleFunc("POST "+BasePath+"/reset-password", ht.handle("reset password", ht.handleResetPassword))

	return ht
}

var _ http_.HTTPTransport = (*HTTPTransport)(nil)

// ServeHTTP implements http.Handler.
func (ht *HTTPTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ht.mux.ServeHTTP(w, r)
}

// handle wraps a handler that reports its failure. The error is logged once
// and written as a JSON error body unless the handler already responded.
func (ht *HTTPTransport) handle(op string, fn func(w http.ResponseWriter, r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.Path))

		err := fn(w, r)
		if err == nil {
			log.DebugContext(r.Context(), op+" done")

			return
		}

		status, code := classify(err)
		if status >= http.StatusInternalServerError {
			log.ErrorContext(r.Context(), op+" failed", "error", err)
		} else {
			log.DebugContext(r.Context(), op+" rejected", "code", code, "error", err)
		}

		writeJSON(w, status, map[string]string{"code": code, "message": message(err, status)})
	}
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidEmail):
		return http.StatusBadRequest, "INVALID_EMAIL"
	case errors.Is(err, ErrPasswordTooShort):
		return http.StatusBadRequest, "PASSWORD_TOO_SHORT"
	case errors.Is(err, ErrPasswordTooLong):
		return http.StatusBadRequest, "PASSWORD_TOO_LONG"
	case errors.Is(err, ErrMalformedBody):
		return http.StatusBadRequest, string(domain.CodeValidation)
	case errors.Is(err, domain.ErrUserAlreadyExists):
		return http.StatusUnprocessableEntity, "USER_ALREADY_EXISTS"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_EMAIL_OR_PASSWORD"
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "TOO_MANY_REQUESTS"
	case errors.Is(err, domain.ErrInvalidAuthToken), errors.Is(err, domain.ErrNoAuthToken):
		return http.StatusBadRequest, "INVALID_TOKEN"
	case errors.Is(err, ErrUnknownProvider):
		return http.StatusNotFound, "PROVIDER_NOT_FOUND"
	case errors.Is(err, ErrUntrustedOrigin):
		return http.StatusForbidden, "INVALID_CALLBACK_URL"
	default:
		return http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"
	}
}

func message(err error, status int) string {
	if status >= http.StatusInternalServerError {
		return strings.ToLower(http.StatusText(status))
	}

	// the first line of a joined error is the sentinel
	msg, _, _ := strings.Cut(err.Error(), "\n")

	return msg
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		return errors.Join(ErrMalformedBody, err)
	}

	return nil
}

// token reads the credential from the session cookie or a bearer header.
func (ht *HTTPTransport) token(r *http.Request) string {
	if auth, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(auth)
	}

	if c, err := r.Cookie(ht.cfg.CookieName); err == nil {
		return c.Value
	}

	return ""
}

func (ht *HTTPTransport) setSession(w http.ResponseWriter, issued Issued) {
	maxAge := 0
	if exp := issued.Session.ExpiresAt; exp != nil {
		maxAge = int(time.Until(*exp).Seconds())
	}

	//nolint:exhaustruct
	http.SetCookie(w, &http.Cookie{
		Name:     ht.cfg.CookieName,
		Value:    issued.Token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   ht.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set(AuthTokenHeader, issued.Token)
}

type sessionDocument struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

type sessionResponse struct {
	Token   string          `json:"token,omitempty"`
	User    *domain.User    `json:"user"`
	Session sessionDocument `json:"session"`
}

func respondSession(token string, s domain.Session) sessionResponse {
	return sessionResponse{
		Token:   token,
		User:    s.User,
		Session: sessionDocument{ID: s.ID, UserID: s.User.ID, ExpiresAt: s.ExpiresAt},
	}
}

func (ht *HTTPTransport) handleSignUp(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}

	if err := decode(r, &body); err != nil {
		return err
	}

	issued, err := ht.authSvc.SignUp(r.Context(), body.Email, body.Password, body.Name)
	if err != nil {
		return fmt.Errorf("sign up: %w", err)
	}

	ht.setSession(w, issued)
	writeJSON(w, http.StatusOK, respondSession(issued.Token, issued.Session))

	return nil
}

func (ht *HTTPTransport) handleSignIn(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := decode(r, &body); err != nil {
		return err
	}

	issued, err := ht.authSvc.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}

	ht.setSession(w, issued)
	writeJSON(w, http.StatusOK, respondSession(issued.Token, issued.Session))

	return nil
}

func (ht *HTTPTransport) handleSocial(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		Provider        string `json:"provider"`
		CallbackURL     string `json:"callbackURL"`
		DisableRedirect bool   `json:"disableRedirect"`
	}

	if err := decode(r, &body); err != nil {
		return err
	}

	authURL, err := ht.authSvc.SocialURL(body.Provider, body.CallbackURL)
	if err != nil {
		return fmt.Errorf("social url: %w", err)
	}

	writeJSON(w, http.StatusOK, map[string]any{"url": authURL, "redirect": !body.DisableRedirect})

	return nil
}

// handleCallback finishes a provider round trip and sends the browser back
// to the client's callback URL with either a token or an error code.
func (ht *HTTPTransport) handleCallback(w http.ResponseWriter, r *http.Request) error {
	provider := r.PathValue("provider")
	query := r.URL.Query()

	callbackURL, err := ht.authSvc.CallbackURL(provider, query.Get("state"))
	if err != nil {
		return fmt.Errorf("callback state: %w", err)
	}

	back, err := url.Parse(callbackURL)
	if err != nil {
		return fmt.Errorf("parse callback url: %w", err)
	}

	params := back.Query()

	if providerErr := query.Get("error"); providerErr != "" {
		params.Set("error", strings.ToUpper(providerErr))
	} else if issued, err := ht.authSvc.CompleteSocial(r.Context(), provider, query.Get("code")); err != nil {
		_, code := classify(err)
		params.Set("error", code)
	} else {
		ht.setSession(w, issued)
		params.Set("token", issued.Token)
	}

	back.RawQuery = params.Encode()
	http.Redirect(w, r, back.String(), http.StatusFound)

	return nil
}

func (ht *HTTPTransport) handleSignOut(w http.ResponseWriter, r *http.Request) error {
	if err := ht.authSvc.SignOut(r.Context(), ht.token(r)); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}

	//nolint:exhaustruct
	http.SetCookie(w, &http.Cookie{Name: ht.cfg.CookieName, Path: "/", MaxAge: -1, HttpOnly: true})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})

	return nil
}

// handleGetSession answers null for a missing, invalid or revoked credential.
func (ht *HTTPTransport) handleGetSession(w http.ResponseWriter, r *http.Request) error {
	token := ht.token(r)
	if token == "" {
		writeJSON(w, http.StatusOK, nil)

		return nil
	}

	session, err := ht.authSvc.Authenticate(r.Context(), token)
	if errors.Is(err, domain.ErrInvalidAuthToken) {
		writeJSON(w, http.StatusOK, nil)

		return nil
	} else if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	writeJSON(w, http.StatusOK, respondSession("", session))

	return nil
}

func (ht *HTTPTransport) handleForgetPassword(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		Email      string `json:"email"`
		RedirectTo string `json:"redirectTo"`
	}

	if err := decode(r, &body); err != nil {
		return err
	}

	err := ht.authSvc.ForgetPassword(r.Context(), body.Email, body.RedirectTo)
	if err != nil && (errors.Is(err, domain.ErrRateLimited) || errors.Is(err, ErrUntrustedOrigin)) {
		return fmt.Errorf("forget password: %w", err)
	}

	// other failures stay invisible so the answer does not reveal accounts
	writeJSON(w, http.StatusOK, map[string]bool{"status": true})

	return nil
}

func (ht *HTTPTransport) handleResetPassword(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}

	if err := decode(r, &body); err != nil {
		return err
	}

	if err := ht.authSvc.ResetPassword(r.Context(), body.Token, body.NewPassword); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}

	writeJSON(w, http.StatusOK, map[string]bool{"status": true})

	return nil
}
