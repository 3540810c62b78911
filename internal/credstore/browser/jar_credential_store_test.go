package browser_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/mkrupp/apptemplate/internal/credstore/browser"
)

func newStore(t *testing.T, rawURL string) (*browser.JarStore, http.CookieJar, *url.URL) {
	t.Helper()

	jar, err := browser.NewCookieJar()
	if err != nil {
		t.Fatalf("NewCookieJar() error = %v", err)
	}

	apiURL, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}

	return browser.NewJarStore(jar, apiURL, "session_token"), jar, apiURL
}

func TestJarStore_SetGetRemove(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _, _ := newStore(t, "http://api.example.com")

	if _, ok := store.Get(ctx); ok {
		t.Fatal("Get() on empty jar reported a credential")
	}

	if err := store.Set(ctx, "first"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if err := store.Set(ctx, "second"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	cred, ok := store.Get(ctx)
	if !ok || cred != "second" {
		t.Errorf("Get() = %q, %v, want %q, true", cred, ok, "second")
	}

	store.Remove(ctx)
	store.Remove(ctx)

	if cred, ok := store.Get(ctx); ok {
		t.Errorf("Get() after Remove() = %q, want none", cred)
	}
}

func TestJarStore_SeesCookiesSetByRemote(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session_token", Value: "from-remote", Path: "/", HttpOnly: true})
	}))
	defer srv.Close()

	store, jar, _ := newStore(t, srv.URL)
	client := &http.Client{Jar: jar}

	resp, err := client.Get(srv.URL + "/api/auth/sign-in/email")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()

	cred, ok := store.Get(context.Background())
	if !ok || cred != "from-remote" {
		t.Errorf("Get() = %q, %v, want %q, true", cred, ok, "from-remote")
	}

	carrier := browser.CookieCarrier{CookieName: "session_token"}

	extracted, ok := carrier.Extract(resp)
	if !ok || extracted != "from-remote" {
		t.Errorf("Extract() = %q, %v, want %q, true", extracted, ok, "from-remote")
	}
}
