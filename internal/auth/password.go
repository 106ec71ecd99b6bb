// Package auth holds credential hashing, session tokens and the login and
// admin checks.
//
// PASSWORDS:
// Argon2id, memory-hard. There is no input length limit: long passphrases
// are hashed in full.
//
// Hash format (PHC string, self-describing):
//
//	$argon2id$v=19$m=65536,t=3,p=1$<base64 salt>$<base64 hash>
//	          ^    ^                ^
//	          |    parameters       random 16-byte salt
//	          algorithm version
//
// The parameters travel with the hash, so raising them later leaves
// existing accounts valid.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters (OWASP recommendation).
const (
	defaultTime    = 3         // iterations
	defaultMemory  = 64 * 1024 // KiB (64 MiB)
	defaultThreads = 1
	keyLen         = 32
	saltLen        = 16
)

// Upper bounds accepted when decoding a stored hash. A corrupted or hostile
// hash must not be able to make Verify allocate gigabytes.
const (
	maxTime    = 16
	maxMemory  = 1024 * 1024 // 1 GiB
	maxThreads = 16
	maxKeyLen  = 128
)

// argonParams is the tunable cost of a hash.
type argonParams struct {
	time    uint32
	memory  uint32
	threads uint8
}

// PasswordService provides Argon2id hashing and verification.
//
// It's a struct (not free functions) so that the cost can be injected in
// tests: the default 64 MiB per hash makes a test suite crawl.
type PasswordService struct {
	params argonParams

	// dummyHash is verified against when a login names an unknown account,
	// so that "no such user" costs the same time as "wrong password".
	dummyHash string
}

// NewPasswordService creates a PasswordService with the default parameters.
func NewPasswordService() *PasswordService {
	return newPasswordServiceWithParams(argonParams{
		time:    defaultTime,
		memory:  defaultMemory,
		threads: defaultThreads,
	})
}

// newPasswordServiceWithParams creates a PasswordService with custom cost.
// Unexported helper used by the tests in this package.
func newPasswordServiceWithParams(p argonParams) *PasswordService {
	ps := &PasswordService{params: p}
	// Hash only fails if the system RNG fails; an empty dummy simply makes
	// VerifyDummy return immediately.
	ps.dummyHash, _ = ps.Hash("dummy-password-for-timing")
	return ps
}

// NewPasswordServiceForTest creates a PasswordService with minimal Argon2
// cost (1 iteration, 64 KiB). Use this in tests in other packages.
//
// Do NOT use in production.
func NewPasswordServiceForTest() *PasswordService {
	return newPasswordServiceWithParams(argonParams{time: 1, memory: 64, threads: 1})
}

// Hash hashes the given plaintext password with Argon2id and a fresh random
// salt. The result is opaque to callers: store it as-is.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(plaintext), salt, p.params.time, p.params.memory, p.params.threads, keyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.params.memory, p.params.time, p.params.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plaintext matches the stored hash.
//
// A malformed hash and a wrong password are indistinguishable: both return
// false. The final comparison is constant-time.
func (p *PasswordService) Verify(plaintext, encodedHash string) bool {
	salt, key, params, err := decodePHC(encodedHash)
	if err != nil {
		return false
	}

	candidate := argon2.IDKey([]byte(plaintext), salt, params.time, params.memory, params.threads, uint32(len(key))) //nolint:gosec // bounded by maxKeyLen

	return subtle.ConstantTimeCompare(key, candidate) == 1
}

// VerifyDummy burns the same CPU and memory as a real Verify. Call it when
// the account being logged into does not exist.
func (p *PasswordService) VerifyDummy(plaintext string) {
	if p.dummyHash != "" {
		p.Verify(plaintext, p.dummyHash)
	}
}

// decodePHC parses an Argon2id PHC string into its components.
func decodePHC(encoded string) (salt, key []byte, params argonParams, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return nil, nil, params, fmt.Errorf("invalid PHC hash format")
	}

	if parts[1] != "argon2id" {
		return nil, nil, params, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, params, fmt.Errorf("parsing version: %w", err)
	}
	if version != argon2.Version {
		return nil, nil, params, fmt.Errorf("unsupported argon2 version %d", version)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.time, &params.threads); err != nil {
		return nil, nil, params, fmt.Errorf("parsing parameters: %w", err)
	}
	if params.time == 0 || params.time > maxTime ||
		params.memory == 0 || params.memory > maxMemory ||
		params.threads == 0 || params.threads > maxThreads {
		return nil, nil, params, fmt.Errorf("argon2 parameters out of range")
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding salt: %w", err)
	}

	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding hash: %w", err)
	}
	if len(key) == 0 || len(key) > maxKeyLen {
		return nil, nil, params, fmt.Errorf("hash length out of range")
	}

	return salt, key, params, nil
}
