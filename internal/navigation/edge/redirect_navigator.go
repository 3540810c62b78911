// Package edge implements navigation for the server-rendered edge target. Every
// navigation becomes an HTTP redirect on the response of the current request.
package edge

import (
	"net/http"
	"net/url"
	"sync"

	"github.com/mkrupp/apptemplate/internal/infra/logging"
	"github.com/mkrupp/apptemplate/internal/navigation"
)

// RedirectNavigator implements navigation.Navigator for one request. A redirect
// response never creates a history entry, so the redirected-from URL is not
// reachable by going back. Only the first navigation is written.
type RedirectNavigator struct {
	w   http.ResponseWriter
	r   *http.Request
	log logging.Logger

	m       sync.Mutex
	current *url.URL
	written bool
}

var _ navigation.Navigator = (*RedirectNavigator)(nil)

// NewRedirectNavigator creates a RedirectNavigator bound to w and r.
func NewRedirectNavigator(w http.ResponseWriter, r *http.Request) *RedirectNavigator {
	return &RedirectNavigator{
		w:       w,
		r:       r,
		log:     logging.GetLogger("navigation.edge.redirect_navigator"),
		current: r.URL,
	}
}

// Push implements navigation.Navigator.Push.
func (n *RedirectNavigator) Push(target string) error {
	return n.redirect(target, false)
}

// Replace implements navigation.Navigator.Replace. The response is marked
// uncacheable so the browser's back-forward cache cannot restore it.
func (n *RedirectNavigator) Replace(target string) error {
	return n.redirect(target, true)
}

// Back implements navigation.Navigator.Back by redirecting to the same-origin
// referrer, or to the root.
func (n *RedirectNavigator) Back() error {
	target := "/"

	if ref, err := url.Parse(n.r.Referer()); err == nil && ref.Host == n.r.Host && ref.Path != "" {
		target = ref.RequestURI()
	}

	return n.redirect(target, true)
}

// CurrentPath implements navigation.Navigator.CurrentPath.
func (n *RedirectNavigator) CurrentPath() string {
	n.m.Lock()
	defer n.m.Unlock()

	return n.current.Path
}

// QueryParam implements navigation.Navigator.QueryParam.
func (n *RedirectNavigator) QueryParam(key string) (string, bool) {
	n.m.Lock()
	defer n.m.Unlock()

	return navigation.QueryParam(n.current.String(), key)
}

// Navigated reports whether a redirect was written.
func (n *RedirectNavigator) Navigated() bool {
	n.m.Lock()
	defer n.m.Unlock()

	return n.written
}

func (n *RedirectNavigator) redirect(target string, replace bool) error {
	u, err := navigation.Validate(target)
	if err != nil {
		return err
	}

	n.m.Lock()
	defer n.m.Unlock()

	if n.written {
		n.log.WarnContext(n.r.Context(), "navigation dropped, response already redirected",
			"target", target, "current", n.current.String())

		return nil
	}

	if replace {
		n.w.Header().Set("Cache-Control", "no-store")
	}

	http.Redirect(n.w, n.r, target, http.StatusSeeOther)

	n.written = true
	n.current = u

	return nil
}
