//go:build !native && !edge

package platform

import (
	"fmt"
	"net/http"

	"github.com/mkrupp/apptemplate/internal/authclient"
	"github.com/mkrupp/apptemplate/internal/credstore"
	"github.com/mkrupp/apptemplate/internal/credstore/browser"
	"github.com/mkrupp/apptemplate/internal/navigation"
	navbrowser "github.com/mkrupp/apptemplate/internal/navigation/browser"
)

// Target is the build target linked into this binary.
const Target = "web"

func newCredentials(host Host) (credstore.Store, credstore.Carrier, *http.Client, error) {
	if host.APIURL == nil {
		return nil, nil, nil, fmt.Errorf("%w: api url", ErrMissingHostPrimitive)
	}

	client := *host.HTTPClient

	if client.Jar == nil {
		jar, err := browser.NewCookieJar()
		if err != nil {
			return nil, nil, nil, err
		}

		client.Jar = jar
	}

	return browser.NewJarStore(client.Jar, host.APIURL, host.CookieName),
		browser.CookieCarrier{CookieName: host.CookieName},
		&client,
		nil
}

func newNavigator(host Host) (navigation.Navigator, error) {
	history := navbrowser.History(host.History)
	if host.History == nil {
		history = navbrowser.DefaultHistory()
	}

	return navbrowser.NewHistoryNavigator(history), nil
}

func newSocialRedirector(_ Host, nav navigation.Navigator) (authclient.SocialRedirector, error) {
	return authclient.NavigatorRedirector{Navigator: nav}, nil
}
