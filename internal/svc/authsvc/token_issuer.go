package authsvc

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mkrupp/apptemplate/internal/domain"
)

// SessionClaims are the claims of a session credential. The JWT id is the
// session id, the subject is the user id.
type SessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// StateClaims protect the social sign-in round trip through the provider.
type StateClaims struct {
	Provider    string `json:"provider"`
	CallbackURL string `json:"callbackURL"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies PS256 tokens with the service's key.
type TokenIssuer struct {
	key    *rsa.PrivateKey
	issuer string
	now    func() time.Time
}

// NewTokenIssuer creates a TokenIssuer.
func NewTokenIssuer(key *rsa.PrivateKey, issuer string, now func() time.Time) *TokenIssuer {
	if now == nil {
		now = time.Now
	}

	return &TokenIssuer{key: key, issuer: issuer, now: now}
}

// Sign signs claims. Issuer and issued-at are filled in.
func (t *TokenIssuer) Sign(claims jwt.Claims) (string, error) {
	switch c := claims.(type) {
	case *SessionClaims:
		c.Issuer, c.IssuedAt = t.issuer, jwt.NewNumericDate(t.now())
	case *StateClaims:
		c.Issuer, c.IssuedAt = t.issuer, jwt.NewNumericDate(t.now())
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodPS256, claims).SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// Verify parses token into claims and checks signature, issuer and expiry.
// Any failure is reported as domain.ErrInvalidAuthToken.
func (t *TokenIssuer) Verify(token string, claims jwt.Claims) error {
	if token == "" {
		return domain.ErrNoAuthToken
	}

	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return &t.key.PublicKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodPS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return errors.Join(domain.ErrInvalidAuthToken, err)
	}

	return nil
}
