// Package credstore defines the secure credential store contract shared by every
// platform variant, and the carrier that moves a credential between HTTP messages
// and the remote auth service.
//
// Variants live in the subpackages browser, native and edge. Exactly one of them is
// linked into a build; see package platform.
package credstore

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mkrupp/apptemplate/internal/domain"
)

// ErrItemNotFound is returned by SecureStorage when no item is stored under a key.
var ErrItemNotFound = errors.New("item not found")

// Store persists at most one credential per logical session.
type Store interface {
	// Get returns the stored credential. Read failures are logged and reported
	// as absent, forcing re-authentication rather than an error.
	Get(ctx context.Context) (domain.Credential, bool)

	// Set stores the credential, superseding any previous one (last writer wins).
	// Failures are logged by the store and returned; callers must not block a
	// user-visible flow on them.
	Set(ctx context.Context, cred domain.Credential) error

	// Remove deletes the stored credential. It is idempotent and never fails
	// from the caller's point of view.
	Remove(ctx context.Context)
}

// Carrier moves a credential between HTTP messages and the remote auth service.
type Carrier interface {
	// Attach adds the credential to an outgoing request to the remote.
	Attach(req *http.Request, cred domain.Credential)

	// Extract returns the credential the remote issued in resp, if any.
	Extract(resp *http.Response) (domain.Credential, bool)
}

// SecureStorage is the host's encrypted-at-rest key/value primitive.
type SecureStorage interface {
	// GetItem returns the value stored under key or ErrItemNotFound.
	GetItem(ctx context.Context, key string) (string, error)
	// SetItem stores value under key, replacing any previous value.
	SetItem(ctx context.Context, key, value string) error
	// DeleteItem removes key. Deleting a missing key returns ErrItemNotFound.
	DeleteItem(ctx context.Context, key string) error
}

// CookieValue returns the value of the first valid cookie named name in cookies.
func CookieValue(cookies []*http.Cookie, name string) (domain.Credential, bool) {
	for _, c := range cookies {
		if c.Name != name {
			continue
		}

		if c.MaxAge < 0 || c.Value == "" || (!c.Expires.IsZero() && c.Expires.Before(time.Now())) {
			return "", false
		}

		return domain.Credential(c.Value), true
	}

	return "", false
}
