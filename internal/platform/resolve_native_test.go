//go:build native && !edge && !web

package platform_test

import (
	"context"
	"testing"

	"github.com/zalando/go-keyring"

	"github.com/mkrupp/apptemplate/internal/credstore/native"
	"github.com/mkrupp/apptemplate/internal/platform"
)

func TestResolveNative(t *testing.T) {
	keyring.MockInit()

	variant, err := platform.Resolve(platform.Host{
		KeyringService: "apptemplate-test",
		Opener:         func(string) error { return nil },
		DeepLinks:      make(chan string),
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if _, ok := variant.Carrier.(native.BearerCarrier); !ok {
		t.Errorf("carrier = %T, want native.BearerCarrier", variant.Carrier)
	}

	ctx := context.Background()

	if err := variant.Store.Set(ctx, "token"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if cred, ok := variant.Store.Get(ctx); !ok || cred != "token" {
		t.Errorf("Get() = %q, %v", cred, ok)
	}

	if _, err := platform.Resolve(platform.Host{KeyringService: "apptemplate-test"}); err == nil {
		t.Error("Resolve() without deep links succeeded")
	}
}
