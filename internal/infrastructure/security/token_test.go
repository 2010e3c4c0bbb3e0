package security

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sirpyerre/tenant-portal/internal/core/domain"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type stepClock struct{ t time.Time }

func (c *stepClock) now() time.Time { return c.t }

func newTestCodec(clock *stepClock) *JWTCodec {
	return NewJWTCodec(JWTConfig{
		Secret:   testSecret,
		Issuer:   "tenant-portal",
		Audience: "tenant-portal-users",
		Now:      clock.now,
	})
}

func sampleClaims(kind domain.TokenKind) domain.TokenClaims {
	c := domain.TokenClaims{
		Kind:     kind,
		UserID:   "usr_1",
		TenantID: "ten_1",
		Email:    "alice@example.com",
		Role:     domain.RoleOwner,
	}
	if kind == domain.TokenRefresh {
		c.TokenID = "rt_1"
	}
	return c
}

func TestJWTCodec_RoundTrip(t *testing.T) {
	clock := &stepClock{t: time.Date(2026, 3, 1, 12, 0, 0, 500, time.UTC)}
	codec := newTestCodec(clock)

	for _, kind := range []domain.TokenKind{domain.TokenAccess, domain.TokenRefresh} {
		in := sampleClaims(kind)
		token, issued, err := codec.Issue(in, 15*time.Minute)
		if err != nil {
			t.Fatalf("%s: issue: %v", kind, err)
		}

		got, err := codec.Verify(token, kind)
		if err != nil {
			t.Fatalf("%s: verify: %v", kind, err)
		}
		if !got.IssuedAt.Equal(issued.IssuedAt) || !got.ExpiresAt.Equal(issued.ExpiresAt) || got.Kind != kind {
			t.Fatalf("%s: claims differ\n got  %+v\n want %+v", kind, got, issued)
		}
		if got.UserID != in.UserID || got.TenantID != in.TenantID || got.Email != in.Email || got.Role != in.Role || got.TokenID != in.TokenID {
			t.Fatalf("%s: identity claims not preserved: %+v", kind, got)
		}
		if !got.IssuedAt.Equal(clock.t.Truncate(time.Second)) {
			t.Fatalf("%s: unexpected iat %s", kind, got.IssuedAt)
		}
	}
}

func TestJWTCodec_ExpiresAtExactlyTTL(t *testing.T) {
	clock := &stepClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	codec := newTestCodec(clock)

	token, _, err := codec.Issue(sampleClaims(domain.TokenAccess), time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	clock.t = clock.t.Add(time.Minute - time.Second)
	if _, err := codec.Verify(token, domain.TokenAccess); err != nil {
		t.Fatalf("token should be valid before expiry: %v", err)
	}

	clock.t = clock.t.Add(time.Second)
	if _, err := codec.Verify(token, domain.TokenAccess); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired at now == exp, got %v", err)
	}
}

func TestJWTCodec_KindMismatch(t *testing.T) {
	codec := newTestCodec(&stepClock{t: time.Now()})
	token, _, err := codec.Issue(sampleClaims(domain.TokenAccess), time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := codec.Verify(token, domain.TokenRefresh); !errors.Is(err, ErrTokenMismatch) {
		t.Fatalf("expected ErrTokenMismatch, got %v", err)
	}
}

func TestJWTCodec_IssuerAudienceMismatch(t *testing.T) {
	clock := &stepClock{t: time.Now()}
	token, _, err := newTestCodec(clock).Issue(sampleClaims(domain.TokenAccess), time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	otherIssuer := NewJWTCodec(JWTConfig{Secret: testSecret, Issuer: "someone-else", Audience: "tenant-portal-users", Now: clock.now})
	if _, err := otherIssuer.Verify(token, domain.TokenAccess); !errors.Is(err, ErrTokenMismatch) {
		t.Fatalf("expected issuer mismatch, got %v", err)
	}
	otherAudience := NewJWTCodec(JWTConfig{Secret: testSecret, Issuer: "tenant-portal", Audience: "billing", Now: clock.now})
	if _, err := otherAudience.Verify(token, domain.TokenAccess); !errors.Is(err, ErrTokenMismatch) {
		t.Fatalf("expected audience mismatch, got %v", err)
	}
}

func TestJWTCodec_RejectsForgeries(t *testing.T) {
	clock := &stepClock{t: time.Now()}
	codec := newTestCodec(clock)

	wrongKey := NewJWTCodec(JWTConfig{Secret: []byte("another-secret-another-secret-xx"), Issuer: "tenant-portal", Audience: "tenant-portal-users", Now: clock.now})
	forged, _, err := wrongKey.Issue(sampleClaims(domain.TokenAccess), time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := codec.Verify(forged, domain.TokenAccess); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed for wrong key, got %v", err)
	}

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"typ": "access", "uid": "usr_1", "tid": "ten_1", "email": "a@b.co", "role": "OWNER",
		"sub": "usr_1", "iss": "tenant-portal", "aud": "tenant-portal-users",
		"iat": clock.t.Unix(), "exp": clock.t.Add(time.Minute).Unix(),
	})
	none, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := codec.Verify(none, domain.TokenAccess); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected alg=none to be rejected, got %v", err)
	}

	if _, err := codec.Verify("a.b.c", domain.TokenAccess); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed for garbage, got %v", err)
	}
}

func TestJWTCodec_RejectsBadClaimShape(t *testing.T) {
	clock := &stepClock{t: time.Now()}
	codec := newTestCodec(clock)

	badRole := sampleClaims(domain.TokenAccess)
	badRole.Role = "ROOT"
	token, _, err := codec.Issue(badRole, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := codec.Verify(token, domain.TokenAccess); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected unknown role to be rejected, got %v", err)
	}

	noID := sampleClaims(domain.TokenRefresh)
	noID.TokenID = ""
	token, _, err = codec.Issue(noID, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := codec.Verify(token, domain.TokenRefresh); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected refresh token without id to be rejected, got %v", err)
	}
}

func TestJWTCodec_RejectsNonPositiveTTL(t *testing.T) {
	codec := newTestCodec(&stepClock{t: time.Now()})
	if _, _, err := codec.Issue(sampleClaims(domain.TokenAccess), 0); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}
