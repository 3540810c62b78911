// Package native implements the credential store for the native target. The
// credential is a bearer token kept in the platform's encrypted keystore; it is
// never written to plain persistent storage.
package native

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/mkrupp/apptemplate/internal/credstore"
	"github.com/mkrupp/apptemplate/internal/domain"
	"github.com/mkrupp/apptemplate/internal/infra/logging"
)

const (
	// AuthorizationHeader carries the bearer token to the remote.
	AuthorizationHeader = "Authorization"
	// AuthTokenHeader carries a freshly issued token from the remote.
	AuthTokenHeader = "Set-Auth-Token"
)

// SecureStore implements credstore.Store over a SecureStorage primitive using a
// fixed storage key.
type SecureStore struct {
	storage credstore.SecureStorage
	key     string
	log     logging.Logger
	m       sync.Mutex
}

var _ credstore.Store = (*SecureStore)(nil)

// NewSecureStore creates a SecureStore keeping the credential under key.
func NewSecureStore(storage credstore.SecureStorage, key string) *SecureStore {
	return &SecureStore{
		storage: storage,
		key:     key,
		log:     logging.GetLogger("credstore.native.secure_store").With("key", key),
	}
}

// Get implements credstore.Store.Get. Read failures degrade to "no credential".
func (s *SecureStore) Get(ctx context.Context) (domain.Credential, bool) {
	value, err := s.storage.GetItem(ctx, s.key)
	if err != nil {
		if !errors.Is(err, credstore.ErrItemNotFound) {
			s.log.WarnContext(ctx, "read credential failed", "error", err)
		}

		return "", false
	}

	if value == "" {
		return "", false
	}

	return domain.Credential(value), true
}

// Set implements credstore.Store.Set.
func (s *SecureStore) Set(ctx context.Context, cred domain.Credential) error {
	s.m.Lock()
	defer s.m.Unlock()

	if err := s.storage.SetItem(ctx, s.key, string(cred)); err != nil {
		s.log.ErrorContext(ctx, "write credential failed", "error", err)

		return fmt.Errorf("set item: %w", err)
	}

	s.log.DebugContext(ctx, "credential stored", "credential", cred)

	return nil
}

// Remove implements credstore.Store.Remove. When the keystore refuses the
// delete, the item is overwritten with an empty value, which Get reads as
// absent.
func (s *SecureStore) Remove(ctx context.Context) {
	s.m.Lock()
	defer s.m.Unlock()

	err := s.storage.DeleteItem(ctx, s.key)
	if err == nil || errors.Is(err, credstore.ErrItemNotFound) {
		s.log.DebugContext(ctx, "credential removed")

		return
	}

	s.log.WarnContext(ctx, "delete credential failed, blanking it", "error", err)

	if err := s.storage.SetItem(ctx, s.key, ""); err != nil {
		s.log.ErrorContext(ctx, "blank credential failed", "error", err)

		return
	}

	s.log.DebugContext(ctx, "credential blanked")
}

// BearerCarrier implements credstore.Carrier with bearer tokens.
type BearerCarrier struct{}

var _ credstore.Carrier = BearerCarrier{}

// Attach implements credstore.Carrier.Attach.
func (BearerCarrier) Attach(req *http.Request, cred domain.Credential) {
	if cred == "" {
		return
	}

	req.Header.Set(AuthorizationHeader, "Bearer "+string(cred))
}

// Extract implements credstore.Carrier.Extract.
func (BearerCarrier) Extract(resp *http.Response) (domain.Credential, bool) {
	token := strings.TrimSpace(resp.Header.Get(AuthTokenHeader))
	if token == "" {
		return "", false
	}

	return domain.Credential(token), true
}
