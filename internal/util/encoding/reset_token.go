// Package encoding produces human-transcribable tokens.
package encoding

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
)

// Crockford's alphabet leaves out I, L, O and U.
const crockfordAlphabet = "0123456789abcdefghjkmnpqrstvwxyz"

//nolint:gochecknoglobals
var crockford = base32.NewEncoding(crockfordAlphabet).WithPadding(base32.NoPadding)

// groupSize is the number of characters between hyphens in a formatted token.
const groupSize = 4

// EncodeToken encodes b in lowercase Crockford base32, grouped by hyphens.
func EncodeToken(b []byte) string {
	raw := crockford.EncodeToString(b)

	var out strings.Builder

	for i, r := range raw {
		if i > 0 && i%groupSize == 0 {
			out.WriteByte('-')
		}

		out.WriteRune(r)
	}

	return out.String()
}

// NewToken returns size random bytes as an encoded token.
func NewToken(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}

	return EncodeToken(b), nil
}

// NormalizeToken undoes the usual transcription slips so a token typed back
// by a person compares equal to the issued one: case is folded, whitespace
// and hyphens are dropped, O reads as 0, I and L read as 1.
func NormalizeToken(token string) string {
	normalized := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '-':
			return -1
		case 'o', 'O':
			return '0'
		case 'i', 'I', 'l', 'L':
			return '1'
		}

		if 'A' <= r && r <= 'Z' {
			return r + ('a' - 'A')
		}

		return r
	}, token)

	if len(normalized) == 0 {
		return ""
	}

	var out strings.Builder

	for i := 0; i < len(normalized); i += groupSize {
		if i > 0 {
			out.WriteByte('-')
		}

		out.WriteString(normalized[i:min(i+groupSize, len(normalized))])
	}

	return out.String()
}
