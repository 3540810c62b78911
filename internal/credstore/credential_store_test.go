package credstore_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/mkrupp/apptemplate/internal/credstore"
	"github.com/mkrupp/apptemplate/internal/domain"
)

func TestCookieValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cookies []*http.Cookie
		want    domain.Credential
		wantOK  bool
	}{
		{
			name:    "no cookies",
			cookies: nil,
		},
		{
			name:    "other cookie",
			cookies: []*http.Cookie{{Name: "theme", Value: "dark"}},
		},
		{
			name:    "session cookie",
			cookies: []*http.Cookie{{Name: "theme", Value: "dark"}, {Name: "session_token", Value: "tok"}},
			want:    "tok",
			wantOK:  true,
		},
		{
			name:    "deletion cookie",
			cookies: []*http.Cookie{{Name: "session_token", Value: "tok", MaxAge: -1}},
		},
		{
			name:    "expired cookie",
			cookies: []*http.Cookie{{Name: "session_token", Value: "tok", Expires: time.Now().Add(-time.Hour)}},
		},
		{
			name:    "empty value",
			cookies: []*http.Cookie{{Name: "session_token"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := credstore.CookieValue(tt.cookies, "session_token")
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("CookieValue() = %q, %v, want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
