package password

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16

	// DefaultMaxPasswordBytes bounds the input fed to the hash when
	// Config.MaxPasswordBytes is zero.
	DefaultMaxPasswordBytes = 1024
)

// Config holds Argon2id cost parameters and the global pepper.
type Config struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	Pepper      []byte

	// MaxPasswordBytes rejects oversized inputs before any hashing work.
	MaxPasswordBytes int
}

// Argon2 hashes and verifies passwords. It is immutable after construction and
// safe for concurrent use.
type Argon2 struct {
	config Config
}

// NewArgon2 validates cfg and returns a hasher. The pepper is copied.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	cfg.Pepper = append([]byte(nil), cfg.Pepper...)
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	return &Argon2{config: cfg}, nil
}

// CreateSalt returns SaltLength bytes from the system CSPRNG.
func (a *Argon2) CreateSalt() ([]byte, error) {
	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// HashPassword derives the Argon2id hash of the peppered password. The result
// is deterministic for a given password, salt and configuration.
func (a *Argon2) HashPassword(password string, salt []byte) ([]byte, error) {
	// Password processing uses raw string bytes exactly as provided (no Unicode normalization).
	if len(password) > a.config.MaxPasswordBytes {
		return nil, errors.New("password exceeds maximum length")
	}
	if len(salt) == 0 {
		return nil, errors.New("salt must not be empty")
	}

	return argon2.IDKey(
		a.pepper(password),
		salt,
		a.config.Time,
		a.config.Memory,
		a.config.Parallelism,
		a.config.KeyLength,
	), nil
}

// VerifyPassword recomputes the hash for password and salt and compares it
// with hash in constant time.
func (a *Argon2) VerifyPassword(password string, hash, salt []byte) (bool, error) {
	if len(hash) == 0 {
		return false, errors.New("invalid hash length")
	}

	computed, err := a.HashPassword(password, salt)
	if err != nil {
		return false, err
	}

	return subtle.ConstantTimeCompare(computed, hash) == 1, nil
}

func (a *Argon2) pepper(password string) []byte {
	mac := hmac.New(sha256.New, a.config.Pepper)
	_, _ = mac.Write([]byte(password))
	return mac.Sum(nil)
}

func validateConfig(cfg Config) error {
	if cfg.Memory < minMemoryKB {
		return errors.New("password memory must be >= 8192 KB")
	}
	if cfg.Time < minTimeCost {
		return errors.New("password time must be >= 1")
	}
	if cfg.Parallelism < minParallelism {
		return errors.New("password parallelism must be >= 1")
	}
	if cfg.SaltLength < minSaltLength {
		return errors.New("password salt length must be >= 16")
	}
	if cfg.KeyLength < minKeyLength {
		return errors.New("password key length must be >= 16")
	}
	if cfg.MaxPasswordBytes < 0 {
		return errors.New("password max bytes must be >= 0")
	}
	if len(cfg.Pepper) == 0 {
		return errors.New("password pepper must not be empty")
	}

	return nil
}
