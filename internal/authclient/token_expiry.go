package authclient

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mkrupp/apptemplate/internal/domain"
)

// credentialExpired reports whether cred is a JWT whose exp claim lies before
// now. Opaque credentials and JWTs without exp are never considered expired;
// the remote stays the authority on them.
func credentialExpired(cred domain.Credential, now time.Time) bool {
	claims := jwt.RegisteredClaims{}

	if _, _, err := jwt.NewParser().ParseUnverified(cred.String(), &claims); err != nil {
		return false
	}

	return claims.ExpiresAt != nil && !claims.ExpiresAt.After(now)
}
