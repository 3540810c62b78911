package authsvc_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mkrupp/apptemplate/internal/svc/authsvc"
)

func TestGetPrivateKey(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "keys", "authsvc.key")

	created, err := authsvc.GetPrivateKey(path)
	if err != nil {
		t.Fatalf("GetPrivateKey() create error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("key file not written: %v", err)
	}

	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("key file mode = %o, want 600", perm)
	}

	loaded, err := authsvc.GetPrivateKey(path)
	if err != nil {
		t.Fatalf("GetPrivateKey() load error = %v", err)
	}

	if !created.Equal(loaded) {
		t.Error("loaded key differs from the created one")
	}
}

func TestDecodePrivateKey(t *testing.T) {
	t.Parallel()

	if _, err := authsvc.DecodePrivateKey([]byte("not pem")); !errors.Is(err, authsvc.ErrInvalidSigningKey) {
		t.Errorf("DecodePrivateKey() error = %v, want ErrInvalidSigningKey", err)
	}
}
