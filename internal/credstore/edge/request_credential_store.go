// Package edge implements the credential store for the server-rendered edge
// target. The credential is the session cookie of the incoming request; writes
// are relayed to the browser as Set-Cookie headers on the outgoing response.
package edge

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/mkrupp/apptemplate/internal/credstore"
	"github.com/mkrupp/apptemplate/internal/domain"
	"github.com/mkrupp/apptemplate/internal/infra/logging"
)

// CookieConfig describes the session cookie relayed to the browser.
type CookieConfig struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

// RequestStore implements credstore.Store for the lifetime of one request.
type RequestStore struct {
	r   *http.Request
	w   http.ResponseWriter
	cfg CookieConfig
	log logging.Logger

	m       sync.Mutex
	written bool
	current domain.Credential
}

var _ credstore.Store = (*RequestStore)(nil)

// NewRequestStore creates a RequestStore bound to r and w.
func NewRequestStore(w http.ResponseWriter, r *http.Request, cfg CookieConfig) *RequestStore {
	return &RequestStore{
		r:   r,
		w:   w,
		cfg: cfg,
		log: logging.GetLogger("credstore.edge.request_store"),
	}
}

// Get implements credstore.Store.Get. A credential written earlier in the same
// request shadows the one the browser sent.
func (s *RequestStore) Get(_ context.Context) (domain.Credential, bool) {
	s.m.Lock()
	defer s.m.Unlock()

	if s.written {
		return s.current, s.current != ""
	}

	return credstore.CookieValue(s.r.Cookies(), s.cfg.Name)
}

// Set implements credstore.Store.Set by relaying the cookie to the browser.
func (s *RequestStore) Set(ctx context.Context, cred domain.Credential) error {
	s.m.Lock()
	defer s.m.Unlock()

	http.SetCookie(s.w, s.cookie(string(cred), int(s.cfg.MaxAge.Seconds())))

	s.written = true
	s.current = cred
	s.log.DebugContext(ctx, "credential relayed", "credential", cred)

	return nil
}

// Remove implements credstore.Store.Remove by relaying an expired cookie.
func (s *RequestStore) Remove(ctx context.Context) {
	s.m.Lock()
	defer s.m.Unlock()

	http.SetCookie(s.w, s.cookie("", -1))

	s.written = true
	s.current = ""
	s.log.DebugContext(ctx, "credential cleared")
}

func (s *RequestStore) cookie(value string, maxAge int) *http.Cookie {
	//nolint:exhaustruct
	return &http.Cookie{
		Name:     s.cfg.Name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ForwardingCarrier implements credstore.Carrier by forwarding the browser's
// cookie to the remote and picking up the cookie the remote sets.
type ForwardingCarrier struct {
	CookieName string
}

var _ credstore.Carrier = ForwardingCarrier{}

// Attach implements credstore.Carrier.Attach.
func (c ForwardingCarrier) Attach(req *http.Request, cred domain.Credential) {
	if cred == "" {
		return
	}

	//nolint:exhaustruct
	req.AddCookie(&http.Cookie{Name: c.CookieName, Value: string(cred)})
}

// Extract implements credstore.Carrier.Extract.
func (c ForwardingCarrier) Extract(resp *http.Response) (domain.Credential, bool) {
	return credstore.CookieValue(resp.Cookies(), c.CookieName)
}
