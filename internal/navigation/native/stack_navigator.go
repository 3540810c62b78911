// Package native implements navigation for the native target as a route stack.
package native

import (
	"net/url"
	"sync"

	"github.com/mkrupp/apptemplate/internal/navigation"
)

// Opener hands an external URL to the operating system (system browser).
type Opener func(target string) error

// StackNavigator implements navigation.Navigator as a native navigation stack.
// The root entry is never popped.
type StackNavigator struct {
	m      sync.Mutex
	stack  []string
	opener Opener
}

var _ navigation.Navigator = (*StackNavigator)(nil)

// NewStackNavigator creates a StackNavigator with root as its only entry.
// External targets are handed to opener; a nil opener rejects them.
func NewStackNavigator(root string, opener Opener) *StackNavigator {
	if root == "" {
		root = "/"
	}

	return &StackNavigator{
		stack:  []string{root},
		opener: opener,
	}
}

// Push implements navigation.Navigator.Push.
func (n *StackNavigator) Push(target string) error {
	if handled, err := n.external(target); handled {
		return err
	}

	n.m.Lock()
	defer n.m.Unlock()

	n.stack = append(n.stack, target)

	return nil
}

// Replace implements navigation.Navigator.Replace.
func (n *StackNavigator) Replace(target string) error {
	if handled, err := n.external(target); handled {
		return err
	}

	n.m.Lock()
	defer n.m.Unlock()

	n.stack[len(n.stack)-1] = target

	return nil
}

// Back implements navigation.Navigator.Back.
func (n *StackNavigator) Back() error {
	n.m.Lock()
	defer n.m.Unlock()

	if len(n.stack) > 1 {
		n.stack = n.stack[:len(n.stack)-1]
	}

	return nil
}

// CurrentPath implements navigation.Navigator.CurrentPath.
func (n *StackNavigator) CurrentPath() string {
	u, err := url.Parse(n.top())
	if err != nil {
		return "/"
	}

	return u.Path
}

// QueryParam implements navigation.Navigator.QueryParam.
func (n *StackNavigator) QueryParam(key string) (string, bool) {
	return navigation.QueryParam(n.top(), key)
}

// Depth returns the number of entries on the stack.
func (n *StackNavigator) Depth() int {
	n.m.Lock()
	defer n.m.Unlock()

	return len(n.stack)
}

func (n *StackNavigator) top() string {
	n.m.Lock()
	defer n.m.Unlock()

	return n.stack[len(n.stack)-1]
}

func (n *StackNavigator) external(target string) (bool, error) {
	if _, err := navigation.Validate(target); err != nil {
		return true, err
	}

	if !navigation.IsExternal(target) {
		return false, nil
	}

	if n.opener == nil {
		return true, navigation.ErrInvalidTarget
	}

	return true, n.opener(target)
}
