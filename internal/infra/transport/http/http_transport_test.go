package http_test

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	context_ "github.com/mkrupp/apptemplate/internal/infra/context"
	"github.com/mkrupp/apptemplate/internal/infra/logging"
	http_ "github.com/mkrupp/apptemplate/internal/infra/transport/http"
)

func TestWrapTraceID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		incoming string
	}{
		{name: "generated"},
		{name: "forwarded", incoming: "upstream-id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var seen string

			handler := http_.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen, _ = context_.TraceIDFromContext(r.Context())

				out, _ := http.NewRequestWithContext(r.Context(), http.MethodGet, "http://remote.test", nil)
				http_.PropagateTraceID(out)
				w.Header().Set("X-Outgoing", out.Header.Get(http_.TraceIDHeader))
			}), logging.NewNopLogger())

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(http_.TraceIDHeader, tt.incoming)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if seen == "" || (tt.incoming != "" && seen != tt.incoming) {
				t.Errorf("trace id in context = %q, incoming %q", seen, tt.incoming)
			}

			if got := rec.Header().Get(http_.TraceIDHeader); got != seen {
				t.Errorf("echoed trace id = %q, want %q", got, seen)
			}

			if got := rec.Header().Get("X-Outgoing"); got != seen {
				t.Errorf("propagated trace id = %q, want %q", got, seen)
			}
		})
	}
}

func TestRescueingMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		accept          string
		wantContentType string
		wantBody        string
	}{
		{name: "page", accept: "text/html", wantContentType: "text/plain", wantBody: "Internal Server Error"},
		{name: "api", accept: "application/json", wantContentType: "application/json", wantBody: `"code":"INTERNAL_SERVER_ERROR"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := http_.Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				panic("boom")
			}), logging.NewNopLogger())

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Accept", tt.accept)

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusInternalServerError {
				t.Errorf("status = %d, want 500", rec.Code)
			}

			if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, tt.wantContentType) {
				t.Errorf("Content-Type = %q, want %q", got, tt.wantContentType)
			}

			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestServeShutsDownWithContext(t *testing.T) {
	t.Parallel()

	sock, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	go func() {
		done <- http_.Serve(ctx, sock, handler, http_.HTTPTransportConfig{ShutdownTimeout: time.Second}, logging.NewNopLogger())
	}()

	resp, err := http.Get("http://" + sock.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}

	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}
