package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/alexedwards/argon2id"
)

// ErrInvalidKey is returned when an API key matches no configured key.
var ErrInvalidKey = errors.New("invalid api key")

// ErrUnknownHashType is returned when a stored hash has an unrecognized format.
var ErrUnknownHashType = errors.New("unknown hash type")

// KeyRing holds the configured API keys and verifies presented keys.
// Successful Argon2id verifications are remembered by SHA-256 of the raw
// key so that polling guards do not pay the Argon2id cost on every request.
type KeyRing struct {
	keys []Key

	mu       sync.RWMutex
	verified map[string]int // sha256(raw) -> index into keys
}

// NewKeyRing validates keys and builds a KeyRing.
func NewKeyRing(keys []Key) (*KeyRing, error) {
	for _, k := range keys {
		if !k.Role.IsValid() {
			return nil, fmt.Errorf("key %q: invalid role %q", k.Name, k.Role)
		}
		if DetectHashType(k.Hash) == "unknown" {
			return nil, fmt.Errorf("key %q: %w", k.Name, ErrUnknownHashType)
		}
	}
	return &KeyRing{
		keys:     append([]Key(nil), keys...),
		verified: make(map[string]int),
	}, nil
}

// Len returns the number of configured keys.
func (r *KeyRing) Len() int { return len(r.keys) }

// Authenticate returns the caller owning rawKey.
func (r *KeyRing) Authenticate(rawKey string) (*Caller, error) {
	if rawKey == "" {
		return nil, ErrInvalidKey
	}
	digest := HashKey(rawKey)

	r.mu.RLock()
	idx, ok := r.verified[digest]
	r.mu.RUnlock()
	if ok {
		return r.caller(idx), nil
	}

	for i, k := range r.keys {
		match, err := VerifyKey(rawKey, k.Hash)
		if err != nil || !match {
			continue
		}
		if DetectHashType(k.Hash) == "argon2id" {
			r.mu.Lock()
			r.verified[digest] = i
			r.mu.Unlock()
		}
		return r.caller(i), nil
	}
	return nil, ErrInvalidKey
}

func (r *KeyRing) caller(i int) *Caller {
	return &Caller{Name: r.keys[i].Name, Role: r.keys[i].Role}
}

// HashKey returns the SHA-256 hex hash of the raw key.
func HashKey(rawKey string) string {
	hash := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(hash[:])
}

// argon2idParams are the OWASP minimum parameters for Argon2id.
var argon2idParams = &argon2id.Params{
	Memory:      47 * 1024, // 47 MiB (OWASP minimum: 46 MiB)
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// HashKeyArgon2id returns a salted Argon2id hash of the raw key in PHC
// format, suitable for auth.api_keys[].key_hash.
func HashKeyArgon2id(rawKey string) (string, error) {
	return argon2id.CreateHash(rawKey, argon2idParams)
}

// DetectHashType identifies the hash algorithm used for a stored hash.
// Returns "argon2id" for PHC format, "sha256" for prefixed or bare hex,
// "unknown" for unrecognized formats.
func DetectHashType(storedHash string) string {
	if strings.HasPrefix(storedHash, "$argon2id$") {
		return "argon2id"
	}
	if strings.HasPrefix(storedHash, "sha256:") {
		return "sha256"
	}
	// Legacy bare SHA-256 hex is exactly 64 hex characters
	if len(storedHash) == 64 && isHexString(storedHash) {
		return "sha256"
	}
	return "unknown"
}

// isHexString checks if a string contains only valid hexadecimal characters.
func isHexString(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// VerifyKey verifies a raw key against a stored hash.
// Supports Argon2id (PHC format), SHA-256 prefixed, and legacy bare SHA-256 hex.
// Returns (true, nil) if match, (false, nil) if no match,
// (false, ErrUnknownHashType) for unrecognized hash formats.
func VerifyKey(rawKey, storedHash string) (bool, error) {
	hashType := DetectHashType(storedHash)

	switch hashType {
	case "argon2id":
		match, err := safeArgon2idCompare(rawKey, storedHash)
		if err != nil {
			return false, err
		}
		return match, nil

	case "sha256":
		var expectedHash string
		if strings.HasPrefix(storedHash, "sha256:") {
			expectedHash = strings.TrimPrefix(storedHash, "sha256:")
		} else {
			expectedHash = storedHash // legacy bare hex
		}

		computedHash := HashKey(rawKey)

		match := subtle.ConstantTimeCompare([]byte(computedHash), []byte(expectedHash)) == 1
		return match, nil

	default:
		return false, ErrUnknownHashType
	}
}

// safeArgon2idCompare converts the panic argon2 raises on malformed
// parameters (t=0, p=0) into an error.
func safeArgon2idCompare(rawKey, storedHash string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("invalid argon2id hash parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(rawKey, storedHash)
}
