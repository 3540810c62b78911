//go:build edge && !native && !web

package platform

import (
	"fmt"
	"net/http"

	"github.com/mkrupp/apptemplate/internal/authclient"
	"github.com/mkrupp/apptemplate/internal/credstore"
	"github.com/mkrupp/apptemplate/internal/credstore/edge"
	"github.com/mkrupp/apptemplate/internal/navigation"
	navedge "github.com/mkrupp/apptemplate/internal/navigation/edge"
)

// Target is the build target linked into this binary.
const Target = "edge"

func newCredentials(host Host) (credstore.Store, credstore.Carrier, *http.Client, error) {
	if host.Request == nil || host.ResponseWriter == nil {
		return nil, nil, nil, fmt.Errorf("%w: request and response writer", ErrMissingHostPrimitive)
	}

	cfg := edge.CookieConfig{
		Name:   host.CookieName,
		Secure: host.AppURL != nil && host.AppURL.Scheme == "https",
		MaxAge: host.CookieMaxAge,
	}

	return edge.NewRequestStore(host.ResponseWriter, host.Request, cfg),
		edge.ForwardingCarrier{CookieName: host.CookieName},
		host.HTTPClient,
		nil
}

func newNavigator(host Host) (navigation.Navigator, error) {
	if host.Request == nil || host.ResponseWriter == nil {
		return nil, fmt.Errorf("%w: request and response writer", ErrMissingHostPrimitive)
	}

	return navedge.NewRedirectNavigator(host.ResponseWriter, host.Request), nil
}

func newSocialRedirector(_ Host, nav navigation.Navigator) (authclient.SocialRedirector, error) {
	return authclient.NavigatorRedirector{Navigator: nav}, nil
}
