package browser_test

import (
	"testing"

	"github.com/mkrupp/apptemplate/internal/navigation/browser"
)

func TestHistoryNavigator(t *testing.T) {
	t.Parallel()

	history := browser.NewMemoryHistory("/")
	nav := browser.NewHistoryNavigator(history)

	if err := nav.Push("/dashboard?tab=profile"); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	if got := nav.CurrentPath(); got != "/dashboard" {
		t.Errorf("CurrentPath() = %q, want /dashboard", got)
	}

	if v, ok := nav.QueryParam("tab"); !ok || v != "profile" {
		t.Errorf("QueryParam(tab) = %q, %v, want profile, true", v, ok)
	}

	depth := nav.Depth()

	if err := nav.Replace("/after-login"); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	if nav.Depth() != depth {
		t.Errorf("Depth() after Replace() = %d, want %d", nav.Depth(), depth)
	}

	if err := nav.Back(); err != nil {
		t.Fatalf("Back() error = %v", err)
	}

	if got := nav.CurrentPath(); got != "/" {
		t.Errorf("CurrentPath() after Back() = %q, want / (replaced entry must be unreachable)", got)
	}

	if err := nav.Push("relative"); err == nil {
		t.Error("Push(relative) expected error")
	}
}

func TestHistoryNavigator_External(t *testing.T) {
	t.Parallel()

	history := browser.NewMemoryHistory("/sign-in")
	nav := browser.NewHistoryNavigator(history)

	if err := nav.Replace("https://accounts.example.com/auth"); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	if got := history.Departed(); got != "https://accounts.example.com/auth" {
		t.Errorf("Departed() = %q", got)
	}

	if nav.Depth() != 1 {
		t.Errorf("Depth() = %d, want 1", nav.Depth())
	}
}

func TestMemoryHistory_PushDiscardsForward(t *testing.T) {
	t.Parallel()

	h := browser.NewMemoryHistory("")
	h.PushState("/a")
	h.PushState("/b")
	h.Back()
	h.PushState("/c")
	h.Back()

	if got := h.Location(); got != "/a" {
		t.Errorf("Location() = %q, want /a", got)
	}

	h.Back()
	h.Back()

	if got := h.Location(); got != "/" {
		t.Errorf("Location() = %q, want /", got)
	}
}
