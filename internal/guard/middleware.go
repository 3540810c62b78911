package guard

import (
	"net/http"

	"github.com/mkrupp/apptemplate/internal/authclient"
	context_ "github.com/mkrupp/apptemplate/internal/infra/context"
	"github.com/mkrupp/apptemplate/internal/infra/logging"
	"github.com/mkrupp/apptemplate/internal/navigation"
	"github.com/mkrupp/apptemplate/internal/session"
)

// Scope builds the request-scoped session stream and navigator.
type Scope func(w http.ResponseWriter, r *http.Request) (*authclient.SessionStream, navigation.Navigator, error)

// Middleware guards next on server-rendered targets. The session is resolved
// before anything is written; unauthorized requests get the guard's redirect,
// authorized ones reach next with the session in the request context.
func Middleware(cfg Config, scope Scope, next http.Handler) http.Handler {
	log := logging.GetLogger("guard.middleware")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		stream, nav, err := scope(w, r)
		if err != nil {
			log.ErrorContext(ctx, "request scope failed", "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)

			return
		}

		hook := session.NewHook(stream)
		guard := New(nav, cfg, Immediate)

		guard.Mount(ctx, hook)
		defer guard.Unmount()

		hook.Load(ctx)

		switch guard.Status() {
		case Authorized:
			if state := stream.Get(); state.Data != nil {
				ctx = context_.WithSession(ctx, *state.Data)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		case Unauthorized:
			log.DebugContext(ctx, "unauthorized request redirected", "path", r.URL.Path)
		default:
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}
