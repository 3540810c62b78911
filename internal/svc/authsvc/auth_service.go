package authsvc

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mkrupp/apptemplate/internal/domain"
	"github.com/mkrupp/apptemplate/internal/infra/logging"
	"github.com/mkrupp/apptemplate/internal/repo/session"
	"github.com/mkrupp/apptemplate/internal/repo/user"
	"github.com/mkrupp/apptemplate/internal/util/encoding"
)

var (
	// ErrInvalidEmail is returned for malformed email addresses.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrPasswordTooShort is returned for passwords below the minimum length.
	ErrPasswordTooShort = errors.New("password too short")
	// ErrPasswordTooLong is returned for passwords above the maximum length.
	ErrPasswordTooLong = errors.New("password too long")
	// ErrUntrustedOrigin is returned for callback and redirect URLs outside the trusted origins.
	ErrUntrustedOrigin = errors.New("untrusted origin")
)

const (
	maxPasswordLength = 128
	resetTokenBytes   = 20
	stateDuration     = 10 * time.Minute
)

// AuthConfig contains configuration parameters for the authentication service.
type AuthConfig struct {
	// SigningKeyFile is the path to the RSA private key file, created on first start
	SigningKeyFile string `env:"SIGNING_KEY_FILE" envDefault:"var/storage/authsvc.key"`
	// Issuer is the iss claim of every token
	Issuer string `env:"ISSUER" envDefault:"apptemplate-authsvc"`
	// TokenDuration is the lifetime of a session
	TokenDuration time.Duration `env:"TOKEN_DURATION" envDefault:"168h"`
	// ResetTokenDuration is the lifetime of a password reset link
	ResetTokenDuration time.Duration `env:"RESET_TOKEN_DURATION" envDefault:"1h"`
	// MinPasswordLength is the shortest accepted password
	MinPasswordLength int `env:"MIN_PASSWORD_LENGTH" envDefault:"8"`
	// TrustedOrigins limits callback and redirect URLs; empty allows any
	TrustedOrigins []string `env:"TRUSTED_ORIGINS" envSeparator:","`

	Password PasswordHasherConfig `envPrefix:"ARGON2_"`
	Social   SocialConfig         `envPrefix:"SOCIAL_"`
}

// Issued is a freshly created session and its credential.
type Issued struct {
	Token   string
	Session domain.Session
}

// AuthService provides account management and session issuance.
type AuthService struct {
	Config   AuthConfig
	Users    user.Repository
	Sessions session.Repository
	Hasher   *PasswordHasher
	Tokens   *TokenIssuer
	Limiter  Limiter
	Mailer   Mailer
	Social   *SocialProviders
	Log      logging.Logger
	Now      func() time.Time
}

// NewAuthService creates an AuthService. The signing key is loaded or
// generated and both repositories are opened.
func NewAuthService(
	users user.RepositoryFactory,
	sessions session.RepositoryFactory,
	limiter Limiter,
	mailer Mailer,
	cfg AuthConfig,
) (*AuthService, error) {
	signingKey, err := GetPrivateKey(cfg.SigningKeyFile)
	if err != nil {
		return nil, fmt.Errorf("get private key: %w", err)
	}

	userRepo, err := users()
	if err != nil {
		return nil, fmt.Errorf("new user repo: %w", err)
	}

	sessionRepo, err := sessions()
	if err != nil {
		_ = userRepo.Close()

		return nil, fmt.Errorf("new session repo: %w", err)
	}

	return New(cfg, signingKey, userRepo, sessionRepo, limiter, mailer), nil
}

// New assembles an AuthService from ready dependencies.
func New(
	cfg AuthConfig,
	signingKey *rsa.PrivateKey,
	users user.Repository,
	sessions session.Repository,
	limiter Limiter,
	mailer Mailer,
) *AuthService {
	if limiter == nil {
		limiter = NopLimiter{}
	}

	if mailer == nil {
		mailer = LogMailer{}
	}

	if cfg.TokenDuration <= 0 {
		cfg.TokenDuration = 7 * 24 * time.Hour
	}

	if cfg.ResetTokenDuration <= 0 {
		cfg.ResetTokenDuration = time.Hour
	}

	s := &AuthService{
		Config:   cfg,
		Users:    users,
		Sessions: sessions,
		Hasher:   NewPasswordHasher(cfg.Password),
		Limiter:  limiter,
		Mailer:   mailer,
		Social:   NewSocialProviders(cfg.Social, nil),
		Log:      logging.GetLogger("svc.authsvc.auth_service"),
		Now:      time.Now,
	}

	s.Tokens = NewTokenIssuer(signingKey, cfg.Issuer, func() time.Time { return s.Now() })

	return s
}

func (s *AuthService) validateCredentials(email, password string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}

	switch {
	case len(password) < s.Config.MinPasswordLength:
		return ErrPasswordTooShort
	case len(password) > maxPasswordLength:
		return ErrPasswordTooLong
	}

	return nil
}

func (s *AuthService) checkOrigin(raw string) error {
	if len(s.Config.TrustedOrigins) == 0 {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return errors.Join(ErrUntrustedOrigin, err)
	}

	// relative paths stay on the app's origin
	if u.Scheme == "" && u.Host == "" && strings.HasPrefix(u.Path, "/") {
		return nil
	}

	origin := u.Scheme + "://" + u.Host
	for _, trusted := range s.Config.TrustedOrigins {
		if strings.EqualFold(strings.TrimSuffix(trusted, "/"), origin) {
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrUntrustedOrigin, origin)
}

func (s *AuthService) limit(ctx context.Context, key string) error {
	err := s.Limiter.Allow(ctx, key)
	if errors.Is(err, domain.ErrRateLimited) {
		return err
	} else if err != nil {
		s.Log.WarnContext(ctx, "rate limiter unavailable, allowing attempt", "error", err)
	}

	return nil
}

// SignUp creates an account and signs it in.
func (s *AuthService) SignUp(ctx context.Context, email, password, name string) (_ Issued, err error) {
	log := s.Log.With(logging.Group("user", "email", email))

	defer func() {
		if err != nil {
			log.WarnContext(ctx, "sign up failed", "error", err)
		} else {
			log.DebugContext(ctx, "user signed up")
		}
	}()

	email = strings.ToLower(strings.TrimSpace(email))

	if err := s.validateCredentials(email, password); err != nil {
		return Issued{}, err
	}

	hash, err := s.Hasher.Hash(password)
	if err != nil {
		return Issued{}, fmt.Errorf("hash password: %w", err)
	}

	account, err := s.createAccount(ctx, domain.User{Email: email, Name: name}, hash)
	if err != nil {
		return Issued{}, err
	}

	return s.issue(ctx, account.User)
}

func (s *AuthService) createAccount(ctx context.Context, u domain.User, passwordHash string) (domain.Account, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return domain.Account{}, fmt.Errorf("new user id: %w", err)
	}

	u.ID = id.String()
	u.CreatedAt = s.Now().UTC().Truncate(time.Millisecond)

	account := domain.Account{User: u, PasswordHash: passwordHash}
	if err := s.Users.CreateUser(ctx, account); err != nil {
		return domain.Account{}, fmt.Errorf("create user: %w", err)
	}

	return account, nil
}

// SignIn checks an email and password and issues a session.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (_ Issued, err error) {
	log := s.Log.With(logging.Group("user", "email", email))

	defer func() {
		if err != nil {
			log.WarnContext(ctx, "sign in failed", "error", err)
		} else {
			log.DebugContext(ctx, "user signed in")
		}
	}()

	email = strings.ToLower(strings.TrimSpace(email))

	if err := s.limit(ctx, "sign-in:"+email); err != nil {
		return Issued{}, err
	}

	account, lookupErr := s.Users.GetUserByEmail(ctx, email)
	if lookupErr != nil && !errors.Is(lookupErr, domain.ErrUserNotFound) {
		return Issued{}, fmt.Errorf("get user: %w", lookupErr)
	}

	// unknown and social-only accounts have no hash and are compared against
	// a throwaway one
	ok, err := s.Hasher.Verify(password, account.PasswordHash)
	if err != nil {
		return Issued{}, fmt.Errorf("verify password: %w", err)
	}

	if lookupErr != nil {
		return Issued{}, errors.Join(domain.ErrInvalidCredentials, lookupErr)
	} else if !ok {
		return Issued{}, domain.ErrInvalidCredentials
	}

	return s.issue(ctx, account.User)
}

func (s *AuthService) issue(ctx context.Context, u domain.User) (Issued, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Issued{}, fmt.Errorf("new session id: %w", err)
	}

	now := s.Now()
	expiresAt := now.Add(s.Config.TokenDuration).UTC().Truncate(time.Second)

	if err := s.Sessions.CreateSession(ctx, session.Record{
		ID:        id.String(),
		UserID:    u.ID,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}); err != nil {
		return Issued{}, fmt.Errorf("create session: %w", err)
	}

	//nolint:exhaustruct
	token, err := s.Tokens.Sign(&SessionClaims{
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id.String(),
			Subject:   u.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	if err != nil {
		return Issued{}, err
	}

	return Issued{
		Token:   token,
		Session: domain.Session{ID: id.String(), User: &u, ExpiresAt: &expiresAt},
	}, nil
}

// Authenticate resolves a credential to its live session. Forged, expired
// and revoked credentials return domain.ErrInvalidAuthToken.
func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.Session, error) {
	var claims SessionClaims
	if err := s.Tokens.Verify(token, &claims); err != nil {
		return domain.Session{}, err
	}

	rec, err := s.Sessions.GetSession(ctx, claims.ID, s.Now())
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}

	account, err := s.Users.GetUserByID(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.Session{}, errors.Join(domain.ErrInvalidAuthToken, err)
		}

		return domain.Session{}, fmt.Errorf("get user: %w", err)
	}

	return domain.Session{ID: rec.ID, User: &account.User, ExpiresAt: &rec.ExpiresAt}, nil
}

// SignOut revokes the session of token. Unknown or invalid tokens are not
// an error; there is nothing left to revoke.
func (s *AuthService) SignOut(ctx context.Context, token string) error {
	var claims SessionClaims
	if err := s.Tokens.Verify(token, &claims); err != nil {
		s.Log.DebugContext(ctx, "sign out without valid session", "error", err)

		return nil
	}

	if err := s.Sessions.DeleteSession(ctx, claims.ID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	return nil
}

// ForgetPassword mails a reset link to email when an account exists. The
// outcome is the same either way.
func (s *AuthService) ForgetPassword(ctx context.Context, email, redirectTo string) (err error) {
	log := s.Log.With(logging.Group("user", "email", email))

	defer func() {
		if err != nil {
			log.WarnContext(ctx, "forget password failed", "error", err)
		}
	}()

	if redirectTo == "" {
		redirectTo = "/reset-password"
	}

	if err := s.checkOrigin(redirectTo); err != nil {
		return err
	}

	email = strings.ToLower(strings.TrimSpace(email))

	if err := s.limit(ctx, "forget-password:"+email); err != nil {
		return err
	}

	account, err := s.Users.GetUserByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		log.DebugContext(ctx, "reset requested for unknown account")

		return nil
	} else if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	token, err := encoding.NewToken(resetTokenBytes)
	if err != nil {
		return fmt.Errorf("new reset token: %w", err)
	}

	if err := s.Users.CreateResetToken(ctx, token, account.ID, s.Now().Add(s.Config.ResetTokenDuration)); err != nil {
		return fmt.Errorf("create reset token: %w", err)
	}

	link, err := url.Parse(redirectTo)
	if err != nil {
		return fmt.Errorf("parse redirect: %w", err)
	}

	q := link.Query()
	q.Set("token", token)
	link.RawQuery = q.Encode()

	// a delivery failure must not answer differently from an unknown account
	if err := s.Mailer.SendResetLink(ctx, account.Email, link.String()); err != nil {
		log.ErrorContext(ctx, "send reset link failed", "error", err)
	}

	return nil
}

// ResetPassword sets a new password using a reset token. The token is
// accepted as the user typed it back.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	defer func() {
		if err != nil {
			s.Log.WarnContext(ctx, "reset password failed", "error", err)
		}
	}()

	switch {
	case len(newPassword) < s.Config.MinPasswordLength:
		return ErrPasswordTooShort
	case len(newPassword) > maxPasswordLength:
		return ErrPasswordTooLong
	}

	userID, err := s.Users.ConsumeResetToken(ctx, encoding.NormalizeToken(token), s.Now())
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}

	hash, err := s.Hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.Users.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	return nil
}

// SocialURL returns the provider page for a social sign-in that returns to
// callbackURL.
func (s *AuthService) SocialURL(provider, callbackURL string) (string, error) {
	if err := s.checkOrigin(callbackURL); err != nil {
		return "", err
	}

	//nolint:exhaustruct
	state, err := s.Tokens.Sign(&StateClaims{
		Provider:    provider,
		CallbackURL: callbackURL,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(s.Now().Add(stateDuration)),
		},
	})
	if err != nil {
		return "", err
	}

	return s.Social.AuthCodeURL(provider, state)
}

// CallbackURL verifies the state of a provider callback and returns the URL
// the client asked to come back to.
func (s *AuthService) CallbackURL(provider, state string) (string, error) {
	var claims StateClaims
	if err := s.Tokens.Verify(state, &claims); err != nil {
		return "", err
	}

	if claims.Provider != provider {
		return "", fmt.Errorf("%w: state was issued for %q", domain.ErrInvalidAuthToken, claims.Provider)
	}

	return claims.CallbackURL, nil
}

// CompleteSocial exchanges the provider code, finds or creates the account
// and issues a session.
func (s *AuthService) CompleteSocial(ctx context.Context, provider, code string) (_ Issued, err error) {
	log := s.Log.With("provider", provider)

	defer func() {
		if err != nil {
			log.WarnContext(ctx, "social sign in failed", "error", err)
		} else {
			log.DebugContext(ctx, "user signed in with provider")
		}
	}()

	profile, err := s.Social.Exchange(ctx, provider, code)
	if err != nil {
		return Issued{}, err
	}

	email := strings.ToLower(profile.Email)

	account, err := s.Users.GetUserByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		account, err = s.createAccount(ctx, domain.User{
			Email:         email,
			Name:          profile.Name,
			Image:         profile.Image,
			EmailVerified: true,
		}, "")
	}

	if err != nil {
		return Issued{}, fmt.Errorf("get user: %w", err)
	}

	return s.issue(ctx, account.User)
}

// Close releases resources held by the service, such as database connections.
func (s *AuthService) Close() error {
	return errors.Join(s.Users.Close(), s.Sessions.Close())
}
