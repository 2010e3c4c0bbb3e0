package ports

import (
	"time"

	"github.com/sirpyerre/tenant-portal/internal/core/domain"
)

// PasswordHasher hashes and verifies passwords. Verify never fails loudly:
// mismatch and malformed hashes both yield false.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
}

// TokenCodec signs and verifies self-contained tokens.
type TokenCodec interface {
	Issue(claims domain.TokenClaims, ttl time.Duration) (string, domain.TokenClaims, error)
	Verify(token string, kind domain.TokenKind) (domain.TokenClaims, error)
}
