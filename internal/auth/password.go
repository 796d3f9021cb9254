// Package auth — password hashing.
//
// Passwords are hashed with Argon2id, a memory-hard function: cracking
// hardware has to pay for memory as well as compute. Each hash uses a fresh
// random salt, and the output is a self-describing PHC string
//
//	$argon2id$v=19$m=65536,t=2,p=1$<salt>$<digest>
//
// so verification needs no side-channel lookup of parameters — the stored
// string alone says how to recompute the digest. Parameters can be tuned
// later without invalidating old hashes; verification always honours the
// parameters embedded in the stored string.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Default Argon2id parameters: 64 MiB memory, 2 passes, 1 lane.
const (
	defaultMemory  uint32 = 64 * 1024 // KiB
	defaultTime    uint32 = 2
	defaultThreads uint8  = 1
	saltLength             = 16
	keyLength       uint32 = 32
)

var errMalformedHash = errors.New("auth: malformed password hash")

// PasswordHasher hashes and verifies passwords.
//
// Hashing is CPU- and memory-bound, so both operations run through a bounded
// worker-slot semaphore: at most `workers` hashes execute at once and excess
// callers queue on the channel. A burst of login attempts therefore cannot
// starve the I/O goroutines serving unrelated requests.
type PasswordHasher struct {
	memory  uint32
	time    uint32
	threads uint8
	slots   chan struct{}
}

// NewPasswordHasher creates a PasswordHasher with the default Argon2id
// parameters and the given number of concurrent hashing slots.
func NewPasswordHasher(workers int) *PasswordHasher {
	return newPasswordHasher(workers, defaultMemory, defaultTime, defaultThreads)
}

// NewPasswordHasherForTest creates a PasswordHasher with deliberately weak
// parameters (1 MiB, one pass) so test suites don't spend their time in
// argon2. Do NOT use in production.
func NewPasswordHasherForTest(workers int) *PasswordHasher {
	return newPasswordHasher(workers, 1024, 1, 1)
}

func newPasswordHasher(workers int, memory, time uint32, threads uint8) *PasswordHasher {
	if workers < 1 {
		workers = 1
	}
	return &PasswordHasher{
		memory:  memory,
		time:    time,
		threads: threads,
		slots:   make(chan struct{}, workers),
	}
}

// Hash hashes the given plaintext with Argon2id and a fresh random salt.
// The returned PHC string is stored directly in the database.
//
// Blocks until a worker slot is free or the context is cancelled.
func (h *PasswordHasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if err := h.acquire(ctx); err != nil {
		return "", err
	}
	defer h.release()

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generating salt: %w", err)
	}

	digest := argon2.IDKey([]byte(plaintext), salt, h.time, h.memory, h.threads, keyLength)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.memory,
		h.time,
		h.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	)

	return encoded, nil
}

// Verify reports whether plaintext matches the stored PHC hash string.
//
// A mismatch and a malformed stored hash both come back as false — callers
// treat them identically (reject the credentials), and the distinction must
// not leak to clients. The digest comparison is constant-time.
func (h *PasswordHasher) Verify(ctx context.Context, plaintext, encoded string) bool {
	if err := h.acquire(ctx); err != nil {
		return false
	}
	defer h.release()

	memory, time, threads, salt, digest, err := decodeHash(encoded)
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(plaintext), salt, time, memory, threads, uint32(len(digest)))

	return subtle.ConstantTimeCompare(computed, digest) == 1
}

func (h *PasswordHasher) acquire(ctx context.Context) error {
	select {
	case h.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("auth: waiting for hashing slot: %w", ctx.Err())
	}
}

func (h *PasswordHasher) release() {
	<-h.slots
}

// decodeHash parses a PHC-format Argon2id string back into its parameters,
// salt, and digest. Verification uses the parameters from the stored hash,
// not the hasher's current ones.
func decodeHash(encoded string) (memory, time uint32, threads uint8, salt, digest []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return 0, 0, 0, nil, nil, errMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return 0, 0, 0, nil, nil, errMalformedHash
	}

	var p uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &p); err != nil {
		return 0, 0, 0, nil, nil, errMalformedHash
	}

	// argon2.IDKey panics on zero rounds or zero lanes, and an absurd m=
	// would allocate it verbatim. A stored hash carrying parameters outside
	// these bounds is corrupt, not a password mismatch we can compute.
	const maxMemory = 4 * 1024 * 1024 // 4 GiB in KiB
	if time < 1 || p < 1 || memory < 8*uint32(p) || memory > maxMemory {
		return 0, 0, 0, nil, nil, errMalformedHash
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return 0, 0, 0, nil, nil, errMalformedHash
	}

	digest, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(digest) == 0 {
		return 0, 0, 0, nil, nil, errMalformedHash
	}

	return memory, time, p, salt, digest, nil
}
