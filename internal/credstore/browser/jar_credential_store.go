// Package browser implements the credential store for the browser target.
// The remote service manages a same-site HTTP-only cookie; the browser (modelled
// by an http.CookieJar) replays it on every request, so reading is implicit.
package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	"golang.org/x/net/publicsuffix"

	"github.com/mkrupp/apptemplate/internal/credstore"
	"github.com/mkrupp/apptemplate/internal/domain"
	"github.com/mkrupp/apptemplate/internal/infra/logging"
)

// NewCookieJar creates a cookie jar that honours the public suffix list, matching
// how browsers scope cookies.
func NewCookieJar() (http.CookieJar, error) {
	//nolint:exhaustruct
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("new cookie jar: %w", err)
	}

	return jar, nil
}

// JarStore implements credstore.Store on top of a cookie jar scoped to the
// remote auth service's origin.
type JarStore struct {
	jar        http.CookieJar
	apiURL     *url.URL
	cookieName string
	log        logging.Logger
	m          sync.Mutex
}

var _ credstore.Store = (*JarStore)(nil)

// NewJarStore creates a JarStore for cookies named cookieName sent to apiURL.
func NewJarStore(jar http.CookieJar, apiURL *url.URL, cookieName string) *JarStore {
	return &JarStore{
		jar:        jar,
		apiURL:     apiURL,
		cookieName: cookieName,
		log:        logging.GetLogger("credstore.browser.jar_store"),
	}
}

// Get implements credstore.Store.Get.
func (s *JarStore) Get(_ context.Context) (domain.Credential, bool) {
	return credstore.CookieValue(s.jar.Cookies(s.apiURL), s.cookieName)
}

// Set implements credstore.Store.Set. It writes the same cookie the remote
// would have set, superseding any earlier value.
func (s *JarStore) Set(ctx context.Context, cred domain.Credential) error {
	s.m.Lock()
	defer s.m.Unlock()

	s.jar.SetCookies(s.apiURL, []*http.Cookie{s.cookie(string(cred), 0)})
	s.log.DebugContext(ctx, "credential stored", "credential", cred)

	return nil
}

// Remove implements credstore.Store.Remove by expiring the cookie.
func (s *JarStore) Remove(ctx context.Context) {
	s.m.Lock()
	defer s.m.Unlock()

	s.jar.SetCookies(s.apiURL, []*http.Cookie{s.cookie("", -1)})
	s.log.DebugContext(ctx, "credential removed")
}

func (s *JarStore) cookie(value string, maxAge int) *http.Cookie {
	//nolint:exhaustruct
	return &http.Cookie{
		Name:     s.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.apiURL.Scheme == "https",
		SameSite: http.SameSiteLaxMode,
	}
}

// CookieCarrier implements credstore.Carrier for a client whose jar attaches
// cookies automatically.
type CookieCarrier struct {
	CookieName string
}

var _ credstore.Carrier = CookieCarrier{}

// Attach implements credstore.Carrier.Attach. The jar already attached the cookie.
func (CookieCarrier) Attach(*http.Request, domain.Credential) {}

// Extract implements credstore.Carrier.Extract.
func (c CookieCarrier) Extract(resp *http.Response) (domain.Credential, bool) {
	return credstore.CookieValue(resp.Cookies(), c.CookieName)
}
