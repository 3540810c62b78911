package native

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/mkrupp/apptemplate/internal/credstore"
)

// KeyringStorage implements credstore.SecureStorage on the operating system's
// keystore (Keychain, Secret Service, Windows Credential Manager).
type KeyringStorage struct {
	// Service namespaces the items of this application in the keystore.
	Service string
}

var _ credstore.SecureStorage = KeyringStorage{}

// GetItem implements credstore.SecureStorage.GetItem.
func (s KeyringStorage) GetItem(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("get item: %w", err)
	}

	value, err := keyring.Get(s.Service, key)
	if err != nil {
		return "", fmt.Errorf("keyring get: %w", translate(err))
	}

	return value, nil
}

// SetItem implements credstore.SecureStorage.SetItem.
func (s KeyringStorage) SetItem(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("set item: %w", err)
	}

	if err := keyring.Set(s.Service, key, value); err != nil {
		return fmt.Errorf("keyring set: %w", translate(err))
	}

	return nil
}

// DeleteItem implements credstore.SecureStorage.DeleteItem.
func (s KeyringStorage) DeleteItem(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}

	if err := keyring.Delete(s.Service, key); err != nil {
		return fmt.Errorf("keyring delete: %w", translate(err))
	}

	return nil
}

func translate(err error) error {
	if errors.Is(err, keyring.ErrNotFound) {
		return errors.Join(credstore.ErrItemNotFound, err)
	}

	return err
}
