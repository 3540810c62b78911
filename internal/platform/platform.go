// Package platform links exactly one implementation of each logical module
// into a binary. The target is chosen with build tags:
//
//	(none) or web   browser cookie jar, history navigation
//	native          OS keystore bearer token, stack navigation
//	edge            request cookies, HTTP redirect navigation
//
// Only the selected variant packages are imported, so the others are never
// compiled into the binary. Setting more than one target tag fails the build.
package platform

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mkrupp/apptemplate/internal/authclient"
	"github.com/mkrupp/apptemplate/internal/credstore"
	"github.com/mkrupp/apptemplate/internal/navigation"
)

// ErrMissingHostPrimitive is returned when the host does not provide a
// primitive the selected target needs.
var ErrMissingHostPrimitive = errors.New("missing host primitive")

// Every target file must provide these; a missing one is a compile error
// naming the constructor.
var (
	_ func(Host) (credstore.Store, credstore.Carrier, *http.Client, error)  = newCredentials
	_ func(Host) (navigation.Navigator, error)                              = newNavigator
	_ func(Host, navigation.Navigator) (authclient.SocialRedirector, error) = newSocialRedirector
	_ string                                                                = Target
)

// History is the browser history primitive. It has the method set of
// browser.History and is declared here so hosts can provide one without
// importing the variant.
type History interface {
	PushState(target string)
	ReplaceState(target string)
	Back()
	Location() string
	Assign(target string, replace bool)
}

// Host carries the primitives of the runtime the binary runs in. Each target
// reads only the fields it needs.
type Host struct {
	HTTPClient *http.Client
	APIURL     *url.URL
	AppURL     *url.URL

	// CookieName is the session cookie of the remote (web, edge).
	CookieName string
	// CookieMaxAge bounds the relayed session cookie (edge).
	CookieMaxAge time.Duration
	// History is the browser history (web). Defaults to the window history.
	History History

	// Request and ResponseWriter belong to the request being served (edge).
	Request        *http.Request
	ResponseWriter http.ResponseWriter

	// Storage is the secure storage primitive (native). Defaults to the OS
	// keystore under KeyringService.
	Storage        credstore.SecureStorage
	StorageKey     string
	KeyringService string
	// Root is the bottom of the navigation stack (native).
	Root string
	// Opener opens URLs in the system browser (native).
	Opener func(target string) error
	// DeepLinks delivers URLs the app is opened with (native).
	DeepLinks <-chan string
}

// Variant holds the implementations selected for the build target.
type Variant struct {
	Target     string
	HTTPClient *http.Client
	Store      credstore.Store
	Carrier    credstore.Carrier
	Navigator  navigation.Navigator
	Redirector authclient.SocialRedirector
}

// Resolve builds the selected implementations for host.
func Resolve(host Host) (Variant, error) {
	if host.HTTPClient == nil {
		host.HTTPClient = &http.Client{}
	}

	store, carrier, client, err := newCredentials(host)
	if err != nil {
		return Variant{}, fmt.Errorf("%s credentials: %w", Target, err)
	}

	nav, err := newNavigator(host)
	if err != nil {
		return Variant{}, fmt.Errorf("%s navigator: %w", Target, err)
	}

	redirector, err := newSocialRedirector(host, nav)
	if err != nil {
		return Variant{}, fmt.Errorf("%s social redirector: %w", Target, err)
	}

	return Variant{
		Target:     Target,
		HTTPClient: client,
		Store:      store,
		Carrier:    carrier,
		Navigator:  nav,
		Redirector: redirector,
	}, nil
}
