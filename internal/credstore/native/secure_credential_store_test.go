package native_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/zalando/go-keyring"

	"github.com/mkrupp/apptemplate/internal/credstore"
	"github.com/mkrupp/apptemplate/internal/credstore/native"
)

var errStorage = errors.New("keystore unavailable")

// mockStorage implements credstore.SecureStorage for testing.
type mockStorage struct {
	items     map[string]string
	getErr    error
	setErr    error
	deleteErr error
	m         sync.Mutex
}

func newMockStorage() *mockStorage {
	return &mockStorage{items: make(map[string]string)}
}

func (s *mockStorage) GetItem(_ context.Context, key string) (string, error) {
	s.m.Lock()
	defer s.m.Unlock()

	if s.getErr != nil {
		return "", s.getErr
	}

	v, ok := s.items[key]
	if !ok {
		return "", credstore.ErrItemNotFound
	}

	return v, nil
}

func (s *mockStorage) SetItem(_ context.Context, key, value string) error {
	s.m.Lock()
	defer s.m.Unlock()

	if s.setErr != nil {
		return s.setErr
	}

	s.items[key] = value

	return nil
}

func (s *mockStorage) DeleteItem(_ context.Context, key string) error {
	s.m.Lock()
	defer s.m.Unlock()

	if s.deleteErr != nil {
		return s.deleteErr
	}

	if _, ok := s.items[key]; !ok {
		return credstore.ErrItemNotFound
	}

	delete(s.items, key)

	return nil
}

func TestSecureStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := newMockStorage()
	store := native.NewSecureStore(storage, "session_token")

	if _, ok := store.Get(ctx); ok {
		t.Fatal("Get() on empty storage reported a credential")
	}

	if err := store.Set(ctx, "tok-1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if err := store.Set(ctx, "tok-2"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if cred, ok := store.Get(ctx); !ok || cred != "tok-2" {
		t.Errorf("Get() = %q, %v, want %q, true", cred, ok, "tok-2")
	}

	if storage.items["session_token"] != "tok-2" {
		t.Errorf("storage item = %q, want tok-2", storage.items["session_token"])
	}

	store.Remove(ctx)
	store.Remove(ctx) // idempotent

	if _, ok := store.Get(ctx); ok {
		t.Error("Get() after Remove() reported a credential")
	}
}

func TestSecureStore_Failures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("read failure is no credential", func(t *testing.T) {
		t.Parallel()

		storage := newMockStorage()
		storage.items["session_token"] = "tok"
		storage.getErr = errStorage

		if _, ok := native.NewSecureStore(storage, "session_token").Get(ctx); ok {
			t.Error("Get() with failing storage reported a credential")
		}
	})

	t.Run("write failure is returned", func(t *testing.T) {
		t.Parallel()

		storage := newMockStorage()
		storage.setErr = errStorage

		err := native.NewSecureStore(storage, "session_token").Set(ctx, "tok")
		if !errors.Is(err, errStorage) {
			t.Errorf("Set() error = %v, want %v", err, errStorage)
		}
	})

	t.Run("delete failure blanks the credential", func(t *testing.T) {
		t.Parallel()

		storage := newMockStorage()
		storage.items["session_token"] = "tok"
		storage.deleteErr = errStorage

		store := native.NewSecureStore(storage, "session_token")
		store.Remove(ctx)

		if cred, ok := store.Get(ctx); ok {
			t.Errorf("Get() after Remove() = %q, want no credential", cred)
		}

		if storage.items["session_token"] != "" {
			t.Errorf("storage item = %q, want blank", storage.items["session_token"])
		}
	})

	t.Run("delete and blank failure keeps the credential", func(t *testing.T) {
		t.Parallel()

		storage := newMockStorage()
		storage.items["session_token"] = "tok"
		storage.deleteErr = errStorage
		storage.setErr = errStorage

		store := native.NewSecureStore(storage, "session_token")
		store.Remove(ctx)

		if cred, ok := store.Get(ctx); !ok || cred != "tok" {
			t.Errorf("Get() after failed Remove() = %q, %v, want %q, true", cred, ok, "tok")
		}
	})
}

//nolint:paralleltest
func TestKeyringStorage(t *testing.T) {
	keyring.MockInit()

	ctx := context.Background()
	storage := native.KeyringStorage{Service: "apptemplate-test"}

	if _, err := storage.GetItem(ctx, "session_token"); !errors.Is(err, credstore.ErrItemNotFound) {
		t.Fatalf("GetItem() error = %v, want %v", err, credstore.ErrItemNotFound)
	}

	if err := storage.SetItem(ctx, "session_token", "tok"); err != nil {
		t.Fatalf("SetItem() error = %v", err)
	}

	value, err := storage.GetItem(ctx, "session_token")
	if err != nil || value != "tok" {
		t.Errorf("GetItem() = %q, %v, want %q, nil", value, err, "tok")
	}

	if err := storage.DeleteItem(ctx, "session_token"); err != nil {
		t.Fatalf("DeleteItem() error = %v", err)
	}

	if err := storage.DeleteItem(ctx, "session_token"); !errors.Is(err, credstore.ErrItemNotFound) {
		t.Errorf("DeleteItem() twice error = %v, want %v", err, credstore.ErrItemNotFound)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	if err := storage.SetItem(cancelled, "session_token", "tok"); !errors.Is(err, context.Canceled) {
		t.Errorf("SetItem() with cancelled context error = %v, want %v", err, context.Canceled)
	}
}

func TestBearerCarrier(t *testing.T) {
	t.Parallel()

	carrier := native.BearerCarrier{}

	req, err := http.NewRequest(http.MethodGet, "http://api.example.com/api/auth/get-session", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}

	carrier.Attach(req, "tok")

	if got := req.Header.Get(native.AuthorizationHeader); got != "Bearer tok" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer tok")
	}

	resp := &http.Response{Header: http.Header{}}
	if _, ok := carrier.Extract(resp); ok {
		t.Error("Extract() without header reported a credential")
	}

	resp.Header.Set(native.AuthTokenHeader, "issued")

	if cred, ok := carrier.Extract(resp); !ok || cred != "issued" {
		t.Errorf("Extract() = %q, %v, want %q, true", cred, ok, "issued")
	}
}
