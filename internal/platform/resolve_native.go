//go:build native && !edge && !web

package platform

import (
	"fmt"
	"net/http"

	"github.com/mkrupp/apptemplate/internal/authclient"
	"github.com/mkrupp/apptemplate/internal/credstore"
	"github.com/mkrupp/apptemplate/internal/credstore/native"
	"github.com/mkrupp/apptemplate/internal/navigation"
	navnative "github.com/mkrupp/apptemplate/internal/navigation/native"
)

// Target is the build target linked into this binary.
const Target = "native"

func newCredentials(host Host) (credstore.Store, credstore.Carrier, *http.Client, error) {
	storage := host.Storage
	if storage == nil {
		if host.KeyringService == "" {
			return nil, nil, nil, fmt.Errorf("%w: keyring service", ErrMissingHostPrimitive)
		}

		storage = native.KeyringStorage{Service: host.KeyringService}
	}

	key := host.StorageKey
	if key == "" {
		key = "session_token"
	}

	return native.NewSecureStore(storage, key), native.BearerCarrier{}, host.HTTPClient, nil
}

func newNavigator(host Host) (navigation.Navigator, error) {
	return navnative.NewStackNavigator(host.Root, host.Opener), nil
}

func newSocialRedirector(host Host, _ navigation.Navigator) (authclient.SocialRedirector, error) {
	if host.Opener == nil || host.DeepLinks == nil {
		return nil, fmt.Errorf("%w: opener and deep links", ErrMissingHostPrimitive)
	}

	return authclient.DeepLinkRedirector{Open: host.Opener, Links: host.DeepLinks}, nil
}
