// Package navigation defines the uniform navigation operations shared by every
// platform variant. Variants translate each call synchronously into the host
// runtime's primitive; see the browser, native and edge subpackages.
package navigation

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidTarget is returned when a navigation target is neither an absolute
// path nor an absolute http(s) URL.
var ErrInvalidTarget = errors.New("invalid navigation target")

// Navigator is the uniform navigation surface.
type Navigator interface {
	// Push adds target on top of the history.
	Push(target string) error
	// Replace swaps the current entry for target. The replaced entry must not
	// be reachable through Back afterwards.
	Replace(target string) error
	// Back returns to the previous entry, if any.
	Back() error
	// CurrentPath returns the path of the current entry.
	CurrentPath() string
	// QueryParam returns the value of query parameter key of the current entry.
	QueryParam(key string) (string, bool)
}

// Kind enumerates navigation intents.
type Kind string

const (
	KindPush    Kind = "push"
	KindReplace Kind = "replace"
	KindBack    Kind = "back"
)

// Options modify an Intent.
type Options struct {
	// Query is merged into the target's query string.
	Query url.Values
}

// Intent is a transient request to navigate. It is never persisted.
type Intent struct {
	Kind    Kind
	Target  string
	Options Options
}

// Apply translates intent into the corresponding Navigator call.
func Apply(nav Navigator, intent Intent) error {
	target := intent.Target

	if intent.Kind != KindBack {
		var err error

		target, err = WithQuery(target, intent.Options.Query)
		if err != nil {
			return err
		}
	}

	switch intent.Kind {
	case KindPush:
		return nav.Push(target)
	case KindReplace:
		return nav.Replace(target)
	case KindBack:
		return nav.Back()
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidTarget, intent.Kind)
	}
}

// Validate checks that target is an absolute path or an absolute http(s) URL.
// Paths must not contain a backslash, raw or escaped, since browsers read it
// as a slash and "/\host" would leave the origin.
func Validate(target string) (*url.URL, error) {
	if target == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidTarget)
	}

	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTarget, err)
	}

	switch {
	case u.Scheme == "" && u.Host == "" && strings.HasPrefix(u.Path, "/") && !strings.HasPrefix(target, "//"):
		if strings.Contains(u.Path, "\\") || strings.HasPrefix(u.Path, "//") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTarget, target)
		}

		return u, nil
	case (u.Scheme == "http" || u.Scheme == "https") && u.Host != "":
		return u, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}
}

// WithQuery merges query into target's query string.
func WithQuery(target string, query url.Values) (string, error) {
	u, err := Validate(target)
	if err != nil {
		return "", err
	}

	if len(query) == 0 {
		return target, nil
	}

	q := u.Query()

	for k, vs := range query {
		q.Del(k)

		for _, v := range vs {
			q.Add(k, v)
		}
	}

	u.RawQuery = q.Encode()

	return u.String(), nil
}

// IsExternal reports whether target leaves the application (absolute URL).
func IsExternal(target string) bool {
	u, err := url.Parse(target)

	return err == nil && u.IsAbs()
}

// IsLocal reports whether target is a valid path inside the app.
func IsLocal(target string) bool {
	u, err := Validate(target)

	return err == nil && !u.IsAbs()
}

// QueryParam returns the first value of key in rawURL's query string.
func QueryParam(rawURL, key string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}

	values, ok := u.Query()[key]
	if !ok || len(values) == 0 {
		return "", false
	}

	return values[0], true
}
