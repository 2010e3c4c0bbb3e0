package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sirpyerre/tenant-portal/internal/core/domain"
	"github.com/sirpyerre/tenant-portal/internal/core/ports"
)

// Verification failures. Callers treat all of them as "unauthenticated"; the
// distinction exists for logging.
var (
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMismatch  = errors.New("token issuer, audience or kind mismatch")
)

// JWTConfig configures the codec.
type JWTConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// JWTCodec implements ports.TokenCodec with HS256 JWTs.
type JWTCodec struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

var _ ports.TokenCodec = (*JWTCodec)(nil)

// NewJWTCodec returns a codec. The secret is copied.
func NewJWTCodec(cfg JWTConfig) *JWTCodec {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &JWTCodec{
		secret:   append([]byte(nil), cfg.Secret...),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		now:      now,
	}
}

type tokenClaims struct {
	Kind     domain.TokenKind `json:"typ"`
	UserID   string           `json:"uid"`
	TenantID string           `json:"tid"`
	Email    string           `json:"email"`
	Role     domain.Role      `json:"role"`
	jwt.RegisteredClaims
}

// Issue signs claims with an expiry of ttl from now. Issued-at is truncated to the
// second so the returned ExpiresAt is exactly what a verifier will see.
func (c *JWTCodec) Issue(claims domain.TokenClaims, ttl time.Duration) (string, domain.TokenClaims, error) {
	if ttl <= 0 {
		return "", domain.TokenClaims{}, fmt.Errorf("issue token: non-positive ttl %s", ttl)
	}

	iat := c.now().UTC().Truncate(time.Second)
	exp := iat.Add(ttl)

	tc := tokenClaims{
		Kind:     claims.Kind,
		UserID:   claims.UserID,
		TenantID: claims.TenantID,
		Email:    claims.Email,
		Role:     claims.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   claims.UserID,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        claims.TokenID,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tc).SignedString(c.secret)
	if err != nil {
		return "", domain.TokenClaims{}, fmt.Errorf("sign token: %w", err)
	}

	claims.IssuedAt = iat
	claims.ExpiresAt = exp
	return signed, claims, nil
}

// Verify checks signature, algorithm, issuer, audience, expiry and the claim shape.
func (c *JWTCodec) Verify(token string, kind domain.TokenKind) (domain.TokenClaims, error) {
	var tc tokenClaims
	_, err := jwt.ParseWithClaims(token, &tc, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return domain.TokenClaims{}, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenInvalidIssuer), errors.Is(err, jwt.ErrTokenInvalidAudience):
			return domain.TokenClaims{}, ErrTokenMismatch
		default:
			return domain.TokenClaims{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
	}

	if tc.Kind != kind {
		return domain.TokenClaims{}, ErrTokenMismatch
	}
	if tc.UserID == "" || tc.TenantID == "" || tc.Email == "" || !tc.Role.Valid() || tc.Subject != tc.UserID {
		return domain.TokenClaims{}, ErrTokenMalformed
	}
	if kind == domain.TokenRefresh && tc.ID == "" {
		return domain.TokenClaims{}, ErrTokenMalformed
	}
	if tc.IssuedAt == nil {
		return domain.TokenClaims{}, ErrTokenMalformed
	}

	return domain.TokenClaims{
		Kind:      tc.Kind,
		UserID:    tc.UserID,
		TenantID:  tc.TenantID,
		Email:     tc.Email,
		Role:      tc.Role,
		TokenID:   tc.ID,
		IssuedAt:  tc.IssuedAt.Time.UTC(),
		ExpiresAt: tc.ExpiresAt.Time.UTC(),
	}, nil
}
