package application

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidPINHash         = errors.New("application: invalid PIN hash format")
	ErrIncompatiblePINVersion = errors.New("application: incompatible PIN hash version")
)

// MinPINLength is the shortest PIN HashPIN accepts.
const MinPINLength = 4

type Argon2idParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2idParams are sized for a check on every API request.
var DefaultArgon2idParams = Argon2idParams{
	Memory:      19 * 1024,
	Iterations:  2,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// HashPIN derives an encoded argon2id hash for pin.
func HashPIN(pin string, params Argon2idParams) (string, error) {
	if len(strings.TrimSpace(pin)) < MinPINLength {
		vErr := &ValidationError{}
		vErr.add("pin", fmt.Sprintf("pin must be at least %d characters", MinPINLength))
		return "", vErr
	}

	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(pin), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	// Format is $argon2id$v=19$m=...,t=...,p=...$salt$hash
	format := "$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s"
	return fmt.Sprintf(format, argon2.Version, params.Memory, params.Iterations, params.Parallelism, b64Salt, b64Hash), nil
}

type pinHash struct {
	params Argon2idParams
	salt   []byte
	key    []byte
}

func parsePINHash(encoded string) (pinHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return pinHash{}, ErrInvalidPINHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return pinHash{}, fmt.Errorf("%w: %v", ErrInvalidPINHash, err)
	}
	if version != argon2.Version {
		return pinHash{}, ErrIncompatiblePINVersion
	}

	var parsed pinHash
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &parsed.params.Memory, &parsed.params.Iterations, &parsed.params.Parallelism); err != nil {
		return pinHash{}, fmt.Errorf("%w: %v", ErrInvalidPINHash, err)
	}

	var err error
	parsed.salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return pinHash{}, fmt.Errorf("%w: %v", ErrInvalidPINHash, err)
	}
	parsed.params.SaltLength = uint32(len(parsed.salt))

	parsed.key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return pinHash{}, fmt.Errorf("%w: %v", ErrInvalidPINHash, err)
	}
	parsed.params.KeyLength = uint32(len(parsed.key))
	return parsed, nil
}

func (h pinHash) matches(pin string) bool {
	candidate := argon2.IDKey([]byte(pin), h.salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)
	return subtle.ConstantTimeCompare(h.key, candidate) == 1
}

// VerifyPIN checks pin against an encoded hash. A mismatch returns ErrUnauthorized.
func VerifyPIN(encoded, pin string) error {
	parsed, err := parsePINHash(encoded)
	if err != nil {
		return err
	}
	if parsed.matches(pin) {
		return nil
	}
	return ErrUnauthorized
}

// PINGuard checks request PINs against a configured hash. The digest of the
// last accepted PIN is remembered so repeated requests skip the key derivation.
type PINGuard struct {
	hash pinHash

	mu       sync.Mutex
	accepted []byte
}

// NewPINGuard parses encoded. An empty hash yields a nil guard, which accepts
// every request.
func NewPINGuard(encoded string) (*PINGuard, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, nil
	}
	parsed, err := parsePINHash(encoded)
	if err != nil {
		return nil, err
	}
	return &PINGuard{hash: parsed}, nil
}

// Enabled reports whether requests must carry a PIN.
func (g *PINGuard) Enabled() bool {
	return g != nil
}

// Check returns ErrUnauthorized unless pin matches the configured hash.
func (g *PINGuard) Check(pin string) error {
	if g == nil {
		return nil
	}
	if pin == "" {
		return ErrUnauthorized
	}

	digest := sha256.Sum256([]byte(pin))

	g.mu.Lock()
	accepted := g.accepted
	g.mu.Unlock()
	if accepted != nil && subtle.ConstantTimeCompare(accepted, digest[:]) == 1 {
		return nil
	}

	if !g.hash.matches(pin) {
		return ErrUnauthorized
	}

	g.mu.Lock()
	g.accepted = digest[:]
	g.mu.Unlock()
	return nil
}
