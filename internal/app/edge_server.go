package app

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"

	"github.com/mkrupp/apptemplate/internal/authclient"
	"github.com/mkrupp/apptemplate/internal/domain"
	"github.com/mkrupp/apptemplate/internal/guard"
	context_ "github.com/mkrupp/apptemplate/internal/infra/context"
	"github.com/mkrupp/apptemplate/internal/infra/logging"
	http_ "github.com/mkrupp/apptemplate/internal/infra/transport/http"
	"github.com/mkrupp/apptemplate/internal/navigation"
	"github.com/mkrupp/apptemplate/internal/platform"
)

// ErrWrongTarget is returned when a component is used in a build for another target.
var ErrWrongTarget = errors.New("wrong build target")

const (
	afterSignIn    = "/dashboard"
	socialCallback = "/auth/callback"
)

//nolint:gochecknoglobals
var pages = template.Must(template.New("pages").Parse(`
{{define "layout"}}<!doctype html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
{{if .Error}}<p role="alert">{{.Error}}</p>{{end}}
{{if .Notice}}<p role="status">{{.Notice}}</p>{{end}}
{{template "content" .}}
</body></html>{{end}}
{{define "home"}}{{if .User}}<p>Signed in as {{.User.Email}}</p>
<a href="/dashboard">Dashboard</a>
<form method="post" action="/sign-out"><button>Sign out</button></form>
{{else}}<a href="/sign-in">Sign in</a>{{end}}{{end}}
{{define "sign-in"}}<form method="post" action="/sign-in">
<input type="hidden" name="redirect" value="{{.Redirect}}">
<input name="email" type="email" value="{{.Email}}"><input name="password" type="password">
<button>Sign in</button></form>
<form method="post" action="/sign-up">
<input name="name"><input name="email" type="email"><input name="password" type="password">
<button>Sign up</button></form>
<form method="post" action="/sign-in/social"><input type="hidden" name="provider" value="github">
<button>Continue with GitHub</button></form>
<a href="/forgot-password">Forgot password?</a>{{end}}
{{define "dashboard"}}<h1>Welcome {{with .User}}{{if .Name}}{{.Name}}{{else}}{{.Email}}{{end}}{{end}}</h1>
<form method="post" action="/sign-out"><button>Sign out</button></form>{{end}}
{{define "forgot-password"}}<form method="post" action="/forgot-password">
<input name="email" type="email"><button>Send reset link</button></form>{{end}}
{{define "reset-password"}}<form method="post" action="/reset-password">
<input type="hidden" name="token" value="{{.Token}}"><input name="password" type="password">
<button>Set password</button></form>{{end}}
`))

type pageData struct {
	Title    string
	Page     string
	User     *domain.User
	Error    string
	Notice   string
	Email    string
	Redirect string
	Token    string
}

// EdgeServer renders the app's pages on the server. Every request builds its
// own App, so the credential store and navigator are bound to that request.
type EdgeServer struct {
	cfg    Config
	client *http.Client
	log    logging.Logger
	mux    *http.ServeMux
}

var _ http_.HTTPTransport = (*EdgeServer)(nil)

// NewEdgeServer creates the server-rendered app. It is only available in
// binaries built for the edge target.
func NewEdgeServer(cfg Config, client *http.Client) (*EdgeServer, error) {
	if platform.Target != "edge" {
		return nil, fmt.Errorf("%w: serving pages needs the edge target, this binary is %s", ErrWrongTarget, platform.Target)
	}

	if client == nil {
		client = &http.Client{Timeout: cfg.Auth.RequestTimeout}
	}

	s := &EdgeServer{
		cfg:    cfg,
		client: client,
		log:    logging.GetLogger("app.edge_server"),
		mux:    http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /{$}", s.handleHome)
	s.mux.HandleFunc("GET /sign-in", s.handleSignInPage)
	s.mux.HandleFunc("POST /sign-in", s.handleSignIn)
	s.mux.HandleFunc("POST /sign-up", s.handleSignUp)
	s.mux.HandleFunc("POST /sign-in/social", s.handleSocial)
	s.mux.HandleFunc("GET "+socialCallback, s.handleCallback)
	s.mux.HandleFunc("POST /sign-out", s.handleSignOut)
	s.mux.HandleFunc("GET /forgot-password", s.page("forgot-password", "Forgot password"))
	s.mux.HandleFunc("POST /forgot-password", s.handleForgotPassword)
	s.mux.HandleFunc("GET /reset-password", s.handleResetPasswordPage)
	s.mux.HandleFunc("POST /reset-password", s.handleResetPassword)
	s.mux.Handle("GET /dashboard", guard.Middleware(cfg.Guard, s.scope, http.HandlerFunc(s.handleDashboard)))

	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *EdgeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *EdgeServer) app(w http.ResponseWriter, r *http.Request) (*App, error) {
	return New(r.Context(), s.cfg, platform.Host{
		HTTPClient:     s.client,
		Request:        r,
		ResponseWriter: w,
	})
}

func (s *EdgeServer) scope(w http.ResponseWriter, r *http.Request) (*authclient.SessionStream, navigation.Navigator, error) {
	a, err := s.app(w, r)
	if err != nil {
		return nil, nil, err
	}

	return a.Client.Session(), a.Navigator, nil
}

func (s *EdgeServer) render(w http.ResponseWriter, r *http.Request, status int, data pageData) {
	tmpl, err := pages.Clone()
	if err == nil {
		_, err = tmpl.New("content").Parse(`{{template "` + data.Page + `" .}}`)
	}

	if err != nil {
		s.fail(w, r, fmt.Errorf("prepare template: %w", err))

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)

	if err := tmpl.ExecuteTemplate(w, "layout", data); err != nil {
		s.log.ErrorContext(r.Context(), "render page", "page", data.Page, "error", err)
	}
}

func (s *EdgeServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (s *EdgeServer) page(name, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, r, http.StatusOK, pageData{Page: name, Title: title})
	}
}

func (s *EdgeServer) handleHome(w http.ResponseWriter, r *http.Request) {
	a, err := s.app(w, r)
	if err != nil {
		s.fail(w, r, err)

		return
	}

	view := a.Session.Load(r.Context())
	s.render(w, r, http.StatusOK, pageData{Page: "home", Title: "Home", User: view.User, Error: errorText(view.Error)})
}

func (s *EdgeServer) handleSignInPage(w http.ResponseWriter, r *http.Request) {
	redirect, _ := navigation.QueryParam(r.URL.String(), guard.RedirectParam)
	s.render(w, r, http.StatusOK, pageData{Page: "sign-in", Title: "Sign in", Redirect: redirect})
}

func (s *EdgeServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	a, err := s.app(w, r)
	if err != nil {
		s.fail(w, r, err)

		return
	}

	email := r.PostFormValue("email")

	if _, err := a.Client.SignInEmail(r.Context(), email, r.PostFormValue("password")); err != nil {
		s.render(w, r, statusOf(err), pageData{
			Page: "sign-in", Title: "Sign in", Error: errorText(err), Email: email,
			Redirect: r.PostFormValue("redirect"),
		})

		return
	}

	s.navigate(w, r, a, localTarget(r.PostFormValue("redirect")))
}

func (s *EdgeServer) handleSignUp(w http.ResponseWriter, r *http.Request) {
	a, err := s.app(w, r)
	if err != nil {
		s.fail(w, r, err)

		return
	}

	req := authclient.SignUpRequest{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
		Name:     r.PostFormValue("name"),
	}

	if _, err := a.Client.SignUp(r.Context(), req); err != nil {
		s.render(w, r, statusOf(err), pageData{Page: "sign-in", Title: "Sign up", Error: errorText(err), Email: req.Email})

		return
	}

	s.navigate(w, r, a, afterSignIn)
}

func (s *EdgeServer) handleSocial(w http.ResponseWriter, r *http.Request) {
	a, err := s.app(w, r)
	if err != nil {
		s.fail(w, r, err)

		return
	}

	_, err = a.Client.SignInSocial(r.Context(), r.PostFormValue("provider"), a.CallbackURL(socialCallback))
	if errors.Is(err, domain.ErrNavigatedAway) {
		return
	}

	if err == nil {
		s.navigate(w, r, a, afterSignIn)

		return
	}

	s.render(w, r, statusOf(err), pageData{Page: "sign-in", Title: "Sign in", Error: errorText(err)})
}

func (s *EdgeServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	a, err := s.app(w, r)
	if err != nil {
		s.fail(w, r, err)

		return
	}

	if _, err := a.Client.CompleteSocial(r.Context(), r.URL); err != nil {
		s.render(w, r, statusOf(err), pageData{Page: "sign-in", Title: "Sign in", Error: errorText(err)})

		return
	}

	s.navigate(w, r, a, afterSignIn)
}

func (s *EdgeServer) handleSignOut(w http.ResponseWriter, r *http.Request) {
	a, err := s.app(w, r)
	if err != nil {
		s.fail(w, r, err)

		return
	}

	if err := a.Client.SignOut(r.Context()); err != nil {
		s.log.WarnContext(r.Context(), "remote sign out failed", "error", err)
	}

	s.navigate(w, r, a, "/")
}

func (s *EdgeServer) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	a, err := s.app(w, r)
	if err != nil {
		s.fail(w, r, err)

		return
	}

	req := authclient.ForgetPasswordRequest{
		Email:      r.PostFormValue("email"),
		RedirectTo: a.CallbackURL("/reset-password"),
	}

	if err := a.Client.ForgetPassword(r.Context(), req); err != nil {
		s.render(w, r, statusOf(err), pageData{Page: "forgot-password", Title: "Forgot password", Error: errorText(err)})

		return
	}

	s.render(w, r, http.StatusOK, pageData{
		Page: "forgot-password", Title: "Forgot password",
		Notice: "If an account exists for that address, a reset link is on its way.",
	})
}

func (s *EdgeServer) handleResetPasswordPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, pageData{Page: "reset-password", Title: "Reset password", Token: r.URL.Query().Get("token")})
}

func (s *EdgeServer) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	a, err := s.app(w, r)
	if err != nil {
		s.fail(w, r, err)

		return
	}

	req := authclient.ResetPasswordRequest{
		Token:       r.PostFormValue("token"),
		NewPassword: r.PostFormValue("password"),
	}

	if err := a.Client.ResetPassword(r.Context(), req); err != nil {
		s.render(w, r, statusOf(err), pageData{
			Page: "reset-password", Title: "Reset password", Error: errorText(err), Token: req.Token,
		})

		return
	}

	s.navigate(w, r, a, "/sign-in")
}

func (s *EdgeServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	current, _ := context_.SessionFromContext(r.Context())
	s.render(w, r, http.StatusOK, pageData{Page: "dashboard", Title: "Dashboard", User: current.User})
}

func (s *EdgeServer) navigate(w http.ResponseWriter, r *http.Request, a *App, target string) {
	if err := a.Navigator.Replace(target); err != nil {
		s.fail(w, r, fmt.Errorf("navigate: %w", err))
	}
}

// localTarget keeps post-sign-in redirects inside the app.
func localTarget(target string) string {
	if !navigation.IsLocal(target) {
		return afterSignIn
	}

	return target
}

func errorText(err error) string {
	if err == nil {
		return ""
	}

	var authErr *domain.AuthError
	if errors.As(err, &authErr) && authErr.Message != "" {
		return authErr.Message
	}

	return "Something went wrong, please try again."
}

func statusOf(err error) int {
	switch domain.CodeOf(err) {
	case domain.CodeValidation, domain.CodeInvalidCredentials, domain.CodeInvalidToken:
		return http.StatusUnprocessableEntity
	case domain.CodeUserAlreadyExists:
		return http.StatusConflict
	case domain.CodeRateLimited:
		return http.StatusTooManyRequests
	case domain.CodeNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
