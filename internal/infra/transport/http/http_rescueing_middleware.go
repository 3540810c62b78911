package http

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/mkrupp/apptemplate/internal/infra/logging"
)

const internalErrorJSON = `{"code":"INTERNAL_SERVER_ERROR","message":"internal server error"}`

// RescueingMiddleware recovers from handler panics, logs them with the stack,
// and answers 500. Clients that talk JSON get the {code, message} error body
// the auth client understands; pages get plain text.
func RescueingMiddleware(next http.Handler, log logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}

			if err, ok := p.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(p)
			}

			log.ErrorContext(r.Context(), "request panic",
				slog.Group("http", "uri", r.RequestURI, "method", r.Method),
				slog.Group("error", "panic", p, "stack", string(debug.Stack())),
			)

			if !wantsJSON(r) {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)

				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(internalErrorJSON))
		}()

		next.ServeHTTP(w, r)
	})
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}
