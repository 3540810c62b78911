// Command authsvc is a development implementation of the remote auth
// service the app talks to.
package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mkrupp/apptemplate/internal/infra/config"
	"github.com/mkrupp/apptemplate/internal/infra/logging"
	"github.com/mkrupp/apptemplate/internal/infra/transport/http"
	"github.com/mkrupp/apptemplate/internal/repo/session"
	"github.com/mkrupp/apptemplate/internal/repo/user"
	"github.com/mkrupp/apptemplate/internal/svc/authsvc"
)

const (
	appName = "apptemplate"
	svcName = "authsvc"
)

type Config struct {
	config.EnvConfig

	Log       logging.LoggerConfig                  `envPrefix:"LOG_"`
	Auth      authsvc.AuthConfig                    `envPrefix:"AUTH_"`
	RateLimit authsvc.RateLimitConfig               `envPrefix:"RATE_LIMIT_"`
	HTTP      authsvc.HTTPTransportConfig           `envPrefix:"HTTP_"`
	User      user.SQLiteUserRepositoryConfig       `envPrefix:"USER_"`
	Session   session.SQLiteSessionRepositoryConfig `envPrefix:"SESSION_"`
}

func main() {
	var (
		cfg Config
		ctx = context.Background()

		configPrefix = strings.ToUpper(strings.Join([]string{appName, svcName}, "_"))
		loggerName   = strings.ToLower(strings.Join([]string{appName, svcName}, "."))
	)

	if err := config.Parse(ctx, &cfg, configPrefix); err != nil {
		panic(err)
	}

	if err := logging.Configure(ctx, cfg.Log, loggerName); err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		panic(err)
	}
}

func run(ctx context.Context, cfg Config) (err error) {
	log := logging.GetLogger("cmd.authsvc")

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "error", "err", err)
		} else {
			log.InfoContext(ctx, "shutdown")
		}
	}()

	authSvc, err := authsvc.NewAuthService(
		user.SQLiteUserRepositoryFactory(cfg.User),
		session.SQLiteSessionRepositoryFactory(cfg.Session),
		authsvc.NewLimiter(cfg.RateLimit),
		authsvc.LogMailer{Log: logging.GetLogger("svc.authsvc.mailer")},
		cfg.Auth,
	)
	if err != nil {
		return fmt.Errorf("new auth service: %w", err)
	}

	defer func() {
		if closeErr := authSvc.Close(); closeErr != nil {
			log.WarnContext(ctx, "close auth service", "error", closeErr)
		}
	}()

	httpTransport := authsvc.NewHTTPTransport(authSvc, cfg.HTTP)

	if err := http.ListenAndServe(ctx, httpTransport, cfg.HTTP.HTTPTransportConfig); err != nil {
		return fmt.Errorf("listen and serve: %w", err)
	}

	return nil
}
