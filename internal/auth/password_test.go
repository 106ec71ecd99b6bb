package auth

import (
	"strings"
	"testing"
)

// =========================================================================
// HELPER
// =========================================================================

// newTestPasswordService returns a PasswordService with minimal Argon2 cost
// so each hash takes microseconds instead of ~100ms.
func newTestPasswordService() *PasswordService {
	return newPasswordServiceWithParams(argonParams{time: 1, memory: 64, threads: 1})
}

// =========================================================================
// Hash TESTS
// =========================================================================

func TestHash_ReturnsNonEmptyHash(t *testing.T) {
	ps := newTestPasswordService()

	hash, err := ps.Hash("my-secret-password")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if hash == "" {
		t.Error("Hash() returned empty string")
	}
}

func TestHash_OutputLooksArgon2id(t *testing.T) {
	ps := newTestPasswordService()

	hash, err := ps.Hash("password123")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	if !strings.HasPrefix(hash, "$argon2id$v=19$") {
		t.Errorf("Hash() does not look like an argon2id PHC string: %q", hash)
	}
	if strings.Contains(hash, "password123") {
		t.Error("Hash() output contains the plaintext")
	}
}

func TestHash_SamePasswordProducesDifferentHashes(t *testing.T) {
	ps := newTestPasswordService()

	hash1, _ := ps.Hash("same-password")
	hash2, _ := ps.Hash("same-password")

	if hash1 == hash2 {
		t.Error("Hash() produced identical hashes for the same password (salt must be random)")
	}
}

func TestHash_AcceptsLongPasswords(t *testing.T) {
	ps := newTestPasswordService()

	// bcrypt would silently truncate at 72 bytes; argon2id uses every byte.
	long := strings.Repeat("a", 500)
	hash, err := ps.Hash(long)
	if err != nil {
		t.Fatalf("Hash() error for 500-byte password: %v", err)
	}

	if !ps.Verify(long, hash) {
		t.Error("Verify() failed for the 500-byte password")
	}
	if ps.Verify(strings.Repeat("a", 499)+"b", hash) {
		t.Error("Verify() accepted a password differing only in byte 500")
	}
}

// =========================================================================
// Verify TESTS
// =========================================================================

func TestVerify_CorrectPassword(t *testing.T) {
	ps := newTestPasswordService()

	hash, err := ps.Hash("correct-horse-battery-staple")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	if !ps.Verify("correct-horse-battery-staple", hash) {
		t.Error("Verify() = false for the correct password")
	}
}

func TestVerify_WrongPassword(t *testing.T) {
	ps := newTestPasswordService()

	hash, _ := ps.Hash("the-real-password")

	if ps.Verify("the-wrong-password", hash) {
		t.Fatal("Verify() = true for a wrong password")
	}
}

func TestVerify_EmptyPassword(t *testing.T) {
	ps := newTestPasswordService()

	hash, _ := ps.Hash("some-password")

	if ps.Verify("", hash) {
		t.Fatal("Verify() = true for an empty password")
	}
}

func TestVerify_MalformedHashes(t *testing.T) {
	ps := newTestPasswordService()
	good, _ := ps.Hash("password")
	parts := strings.Split(good, "$")

	cases := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"garbage", "not-a-valid-hash"},
		{"bcrypt hash", "$2a$12$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"},
		{"wrong algorithm", strings.Replace(good, "argon2id", "argon2i", 1)},
		{"wrong version", strings.Replace(good, "v=19", "v=16", 1)},
		{"bad params", "$argon2id$v=19$m=x,t=1,p=1$" + parts[4] + "$" + parts[5]},
		{"zero time", "$argon2id$v=19$m=64,t=0,p=1$" + parts[4] + "$" + parts[5]},
		{"huge memory", "$argon2id$v=19$m=999999999,t=1,p=1$" + parts[4] + "$" + parts[5]},
		{"bad salt", "$argon2id$v=19$m=64,t=1,p=1$!!!$" + parts[5]},
		{"bad key", "$argon2id$v=19$m=64,t=1,p=1$" + parts[4] + "$!!!"},
		{"empty key", "$argon2id$v=19$m=64,t=1,p=1$" + parts[4] + "$"},
		{"too many parts", good + "$extra"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// Must neither panic nor match.
			if ps.Verify("password", tc.hash) {
				t.Errorf("Verify() = true for malformed hash %q", tc.hash)
			}
		})
	}
}

func TestVerify_HashFromOtherParamsStillVerifies(t *testing.T) {
	// Parameters travel inside the hash, so a service configured with
	// different cost can still verify older hashes.
	old := newPasswordServiceWithParams(argonParams{time: 2, memory: 128, threads: 1})
	current := newTestPasswordService()

	hash, _ := old.Hash("rotated-params")
	if !current.Verify("rotated-params", hash) {
		t.Error("Verify() failed for a hash made with different parameters")
	}
}

func TestVerifyDummy_DoesNotPanic(t *testing.T) {
	ps := newTestPasswordService()
	ps.VerifyDummy("anything")

	empty := &PasswordService{}
	empty.VerifyDummy("anything")
}

// =========================================================================
// ROUND-TRIP TEST
// =========================================================================

func TestHashVerify_RoundTrip(t *testing.T) {
	ps := newTestPasswordService()

	cases := []struct {
		name     string
		password string
	}{
		{"simple alphanumeric", "hello123"},
		{"special characters", "p@$$w0rd!#%"},
		{"unicode", "পাসওয়ার্ড-密码"},
		{"whitespace", "  leading and trailing  "},
		{"contains dollar separators", "$argon2id$v=19$"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hash, err := ps.Hash(tc.password)
			if err != nil {
				t.Fatalf("Hash(%q) error = %v", tc.password, err)
			}

			if !ps.Verify(tc.password, hash) {
				t.Errorf("Verify() failed for %q", tc.password)
			}
		})
	}
}
