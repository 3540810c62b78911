package authsvc

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

// ErrInvalidHash is returned when a stored password hash cannot be parsed.
var ErrInvalidHash = errors.New("invalid password hash")

// PasswordHasherConfig holds the argon2id cost parameters.
type PasswordHasherConfig struct {
	Memory      uint32 `env:"MEMORY_KB" envDefault:"65536"`
	Time        uint32 `env:"TIME" envDefault:"1"`
	Parallelism uint8  `env:"PARALLELISM" envDefault:"4"`
	SaltLength  uint32 `env:"SALT_LENGTH" envDefault:"16"`
	KeyLength   uint32 `env:"KEY_LENGTH" envDefault:"32"`
}

// PasswordHasher hashes passwords with argon2id into PHC strings:
// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>.
type PasswordHasher struct {
	cfg PasswordHasherConfig

	dummyOnce sync.Once
	dummy     string
}

// NewPasswordHasher creates a PasswordHasher, filling in zero parameters.
func NewPasswordHasher(cfg PasswordHasherConfig) *PasswordHasher {
	if cfg.Memory == 0 {
		cfg.Memory = 64 * 1024
	}

	if cfg.Time == 0 {
		cfg.Time = 1
	}

	if cfg.Parallelism == 0 {
		cfg.Parallelism = 4
	}

	if cfg.SaltLength == 0 {
		cfg.SaltLength = 16
	}

	if cfg.KeyLength == 0 {
		cfg.KeyLength = 32
	}

	return &PasswordHasher{cfg: cfg}
}

// Hash returns the PHC string of password with a fresh salt.
func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, h.cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.cfg.Time, h.cfg.Memory, h.cfg.Parallelism, h.cfg.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.cfg.Memory, h.cfg.Time, h.cfg.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches the PHC string encoded. The
// parameters stored in encoded are used, not the hasher's own.
//
// An empty encoded (no account, or an account without a password) never
// matches, but still costs one comparison against a throwaway hash so the
// caller's timing does not reveal which case it was.
func (h *PasswordHasher) Verify(password, encoded string) (bool, error) {
	if encoded == "" {
		h.dummyOnce.Do(func() {
			h.dummy, _ = h.Hash("unused password")
		})

		if h.dummy != "" {
			_, _ = h.verify(password, h.dummy)
		}

		return false, nil
	}

	return h.verify(password, encoded)
}

func (h *PasswordHasher) verify(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false, ErrInvalidHash
	}

	var (
		memory, time uint32
		parallelism  uint8
	)

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &parallelism); err != nil {
		return false, errors.Join(ErrInvalidHash, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, errors.Join(ErrInvalidHash, err)
	}

	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 {
		return false, errors.Join(ErrInvalidHash, err)
	}

	//nolint:gosec
	got := argon2.IDKey([]byte(password), salt, time, memory, parallelism, uint32(len(want)))

	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
