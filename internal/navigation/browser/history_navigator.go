// Package browser implements navigation for the browser target on top of the
// History API.
package browser

import (
	"net/url"
	"sync"

	"github.com/mkrupp/apptemplate/internal/navigation"
)

// History is the browser's history primitive.
type History interface {
	// PushState adds a same-document entry.
	PushState(target string)
	// ReplaceState overwrites the current entry.
	ReplaceState(target string)
	// Back moves one entry back.
	Back()
	// Location returns the current path including the query string.
	Location() string
	// Assign loads a different document, replacing the current entry if replace is set.
	Assign(target string, replace bool)
}

// HistoryNavigator implements navigation.Navigator over a History.
type HistoryNavigator struct {
	history History
}

var _ navigation.Navigator = (*HistoryNavigator)(nil)

// NewHistoryNavigator creates a HistoryNavigator.
func NewHistoryNavigator(history History) *HistoryNavigator {
	return &HistoryNavigator{history: history}
}

// Push implements navigation.Navigator.Push.
func (n *HistoryNavigator) Push(target string) error {
	if _, err := navigation.Validate(target); err != nil {
		return err
	}

	if navigation.IsExternal(target) {
		n.history.Assign(target, false)

		return nil
	}

	n.history.PushState(target)

	return nil
}

// Replace implements navigation.Navigator.Replace.
func (n *HistoryNavigator) Replace(target string) error {
	if _, err := navigation.Validate(target); err != nil {
		return err
	}

	if navigation.IsExternal(target) {
		n.history.Assign(target, true)

		return nil
	}

	n.history.ReplaceState(target)

	return nil
}

// Back implements navigation.Navigator.Back.
func (n *HistoryNavigator) Back() error {
	n.history.Back()

	return nil
}

// CurrentPath implements navigation.Navigator.CurrentPath.
func (n *HistoryNavigator) CurrentPath() string {
	u, err := url.Parse(n.history.Location())
	if err != nil {
		return "/"
	}

	return u.Path
}

// QueryParam implements navigation.Navigator.QueryParam.
func (n *HistoryNavigator) QueryParam(key string) (string, bool) {
	return navigation.QueryParam(n.history.Location(), key)
}

// Depth returns the number of entries reachable by going back, plus the current one.
// It returns -1 when the history primitive cannot tell.
func (n *HistoryNavigator) Depth() int {
	if d, ok := n.history.(interface{ Depth() int }); ok {
		return d.Depth()
	}

	return -1
}

// MemoryHistory is an in-process History with browser semantics, used outside
// a JavaScript host.
type MemoryHistory struct {
	m        sync.Mutex
	entries  []string
	index    int
	departed string
}

var _ History = (*MemoryHistory)(nil)

// NewMemoryHistory creates a MemoryHistory positioned at initial.
func NewMemoryHistory(initial string) *MemoryHistory {
	if initial == "" {
		initial = "/"
	}

	return &MemoryHistory{entries: []string{initial}}
}

// PushState implements History.PushState. Forward entries are discarded.
func (h *MemoryHistory) PushState(target string) {
	h.m.Lock()
	defer h.m.Unlock()

	h.entries = append(h.entries[:h.index+1], target)
	h.index++
}

// ReplaceState implements History.ReplaceState.
func (h *MemoryHistory) ReplaceState(target string) {
	h.m.Lock()
	defer h.m.Unlock()

	h.entries[h.index] = target
}

// Back implements History.Back.
func (h *MemoryHistory) Back() {
	h.m.Lock()
	defer h.m.Unlock()

	if h.index > 0 {
		h.index--
	}
}

// Location implements History.Location.
func (h *MemoryHistory) Location() string {
	h.m.Lock()
	defer h.m.Unlock()

	return h.entries[h.index]
}

// Assign implements History.Assign by recording the document the app left for.
func (h *MemoryHistory) Assign(target string, replace bool) {
	h.m.Lock()
	defer h.m.Unlock()

	h.departed = target

	if replace {
		h.entries[h.index] = target

		return
	}

	h.entries = append(h.entries[:h.index+1], target)
	h.index++
}

// Departed returns the last external document assigned, if any.
func (h *MemoryHistory) Departed() string {
	h.m.Lock()
	defer h.m.Unlock()

	return h.departed
}

// Depth returns the number of entries up to and including the current one.
func (h *MemoryHistory) Depth() int {
	h.m.Lock()
	defer h.m.Unlock()

	return h.index + 1
}
