// Package security holds the cryptographic adapters of the session subsystem:
// an Argon2id password hasher and an HS256 JWT codec.
package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/sirpyerre/tenant-portal/internal/core/ports"
)

const argon2Version = argon2.Version // 19

var errInvalidHash = errors.New("invalid argon2id hash")

// Argon2Params controls Argon2id cost. MemoryKiB is in KiB as argon2.IDKey expects.
type Argon2Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params is 64 MiB, 3 passes, 4 lanes.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		MemoryKiB:   64 * 1024,
		Iterations:  3,
		Parallelism: 4,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Argon2idHasher implements ports.PasswordHasher.
type Argon2idHasher struct {
	params Argon2Params
}

var _ ports.PasswordHasher = (*Argon2idHasher)(nil)

// NewArgon2idHasher returns a hasher using params for new hashes and as the
// upper bound (x2) accepted when verifying stored hashes.
func NewArgon2idHasher(params Argon2Params) *Argon2idHasher {
	return &Argon2idHasher{params: params}
}

// Hash returns a PHC string:
//
//	$argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
func (h *Argon2idHasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Iterations, h.params.MemoryKiB, h.params.Parallelism, h.params.KeyLength)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Version,
		h.params.MemoryKiB,
		h.params.Iterations,
		h.params.Parallelism,
		b64.EncodeToString(salt),
		b64.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encoded. Malformed hashes and hashes whose
// cost is far above the configured one return false.
func (h *Argon2idHasher) Verify(encoded, password string) bool {
	params, salt, expected, err := decodeHash(encoded)
	if err != nil {
		return false
	}
	if !withinBounds(params, h.params) {
		return false
	}

	key := argon2.IDKey([]byte(password), salt, params.Iterations, params.MemoryKiB, params.Parallelism, uint32(len(expected))) // #nosec G115 -- bounded by withinBounds
	return subtle.ConstantTimeCompare(key, expected) == 1
}

func withinBounds(got, limits Argon2Params) bool {
	if got.MemoryKiB > limits.MemoryKiB*2 || got.Iterations > limits.Iterations*2 || got.Parallelism > limits.Parallelism*2 {
		return false
	}
	if got.SaltLength < 8 || got.SaltLength > 64 {
		return false
	}
	return got.KeyLength >= 16 && got.KeyLength <= 128
}

func decodeHash(encoded string) (Argon2Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Argon2Params{}, nil, nil, errInvalidHash
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2Version) {
		return Argon2Params{}, nil, nil, errInvalidHash
	}

	var mem, iter, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iter, &par); err != nil {
		return Argon2Params{}, nil, nil, errInvalidHash
	}
	if mem == 0 || iter == 0 || par == 0 || par > 255 {
		return Argon2Params{}, nil, nil, errInvalidHash
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return Argon2Params{}, nil, nil, errInvalidHash
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil {
		return Argon2Params{}, nil, nil, errInvalidHash
	}

	return Argon2Params{
		MemoryKiB:   mem,
		Iterations:  iter,
		Parallelism: uint8(par),
		SaltLength:  uint32(len(salt)), // #nosec G115
		KeyLength:   uint32(len(key)),  // #nosec G115
	}, salt, key, nil
}
