// Package session derives the UI view of the live session.
package session

import (
	"context"
	"sync"

	"github.com/mkrupp/apptemplate/internal/authclient"
	"github.com/mkrupp/apptemplate/internal/domain"
)

// View is what UI code and the route guard read from the session.
type View struct {
	User      *domain.User
	IsLoading bool
	Error     error
	// Degraded mirrors authclient.State.Degraded.
	Degraded bool
}

// Signed reports whether the view carries a user.
func (v View) Signed() bool {
	return v.User != nil
}

// Source is the session stream a Hook observes.
type Source interface {
	Subscribe(fn func(authclient.State)) *authclient.Subscription
	Load(ctx context.Context) authclient.State
	Get() authclient.State
}

// Hook derives View from a Source. IsLoading is true only until the first
// resolution; background revalidation never sets it again.
type Hook struct {
	source Source

	m        sync.Mutex
	resolved bool
	view     View
}

// NewHook creates a Hook observing source.
func NewHook(source Source) *Hook {
	h := &Hook{source: source}
	h.view = h.derive(source.Get())

	return h
}

// View returns the current view.
func (h *Hook) View() View {
	h.m.Lock()
	defer h.m.Unlock()

	return h.view
}

// Subscribe delivers the current view to fn and every change after it.
// Loading is not started; call Load once per mount.
func (h *Hook) Subscribe(fn func(View)) *authclient.Subscription {
	return h.source.Subscribe(func(state authclient.State) {
		fn(h.derive(state))
	})
}

// Load resolves the session if it has not been resolved yet and returns the
// resulting view. Subscribers are notified before it returns.
func (h *Hook) Load(ctx context.Context) View {
	return h.derive(h.source.Load(ctx))
}

func (h *Hook) derive(state authclient.State) View {
	h.m.Lock()
	defer h.m.Unlock()

	if !state.IsPending {
		h.resolved = true
	}

	view := View{
		IsLoading: !h.resolved,
		Error:     state.Error,
		Degraded:  state.Degraded,
	}

	if state.Authenticated() {
		view.User = state.Data.User
	}

	h.view = view

	return view
}
