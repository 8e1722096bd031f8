package trustcore

import (
	"errors"
	"time"

	"github.com/RedBox-TN/Backend-sub000/session"
)

// Config is the full engine configuration. Field tags follow the keys read by
// internal/settings.
type Config struct {
	Session       SessionConfig       `mapstructure:"session"`
	Password      PasswordConfig      `mapstructure:"password"`
	TOTP          TOTPConfig          `mapstructure:"totp"`
	Security      SecurityConfig      `mapstructure:"security"`
	DeviceBinding DeviceBindingConfig `mapstructure:"device_binding"`
	Audit         AuditConfig         `mapstructure:"audit"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls token issuance and session lifetimes. PendingTTL
// applies to sessions awaiting a second factor and must be strictly shorter
// than TTL.
type SessionConfig struct {
	RedisPrefix      string        `mapstructure:"redis_prefix"`
	TTL              time.Duration `mapstructure:"ttl"`
	PendingTTL       time.Duration `mapstructure:"pending_ttl"`
	TokenBytes       int           `mapstructure:"token_bytes"`
	MaxTokenAttempts int           `mapstructure:"max_token_attempts"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id parameters and the password policy. Pepper
// is a process-wide secret and must never be stored next to the hashes.
type PasswordConfig struct {
	Memory           uint32 `mapstructure:"memory"`
	Time             uint32 `mapstructure:"time"`
	Parallelism      uint8  `mapstructure:"parallelism"`
	SaltLength       uint32 `mapstructure:"salt_length"`
	KeyLength        uint32 `mapstructure:"key_length"`
	Pepper           string `mapstructure:"pepper"`
	MaxPasswordBytes int    `mapstructure:"max_password_bytes"`
	MinLength        int    `mapstructure:"min_length"`
	HistorySize      int    `mapstructure:"history_size"`
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig configures second-factor secrets and verification. MaxAttempts
// bounds wrong codes per pending session before it is discarded.
type TOTPConfig struct {
	Issuer      string `mapstructure:"issuer"`
	SecretSize  uint   `mapstructure:"secret_size"`
	Digits      int    `mapstructure:"digits"`
	Period      uint   `mapstructure:"period"`
	Skew        uint   `mapstructure:"skew"`
	Algorithm   string `mapstructure:"algorithm"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds lockout policy.
type SecurityConfig struct {
	MaxLoginAttempts int `mapstructure:"max_login_attempts"`
}

// DeviceBindingConfig controls the advisory device check. RevokeOnMismatch
// deletes the session on a mismatch instead of only rejecting the request.
type DeviceBindingConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	RevokeOnMismatch bool `mapstructure:"revoke_on_mismatch"`
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
	DropIfFull bool `mapstructure:"drop_if_full"`
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `mapstructure:"enabled"`
	EnableLatencyHistograms bool `mapstructure:"enable_latency_histograms"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults. Password.Pepper is left empty
// and must be supplied.
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			RedisPrefix:      session.DefaultPrefix,
			TTL:              time.Hour,
			PendingTTL:       5 * time.Minute,
			TokenBytes:       session.DefaultTokenBytes,
			MaxTokenAttempts: session.DefaultMaxTokenAttempts,
		},
		Password: PasswordConfig{
			Memory:           64 * 1024,
			Time:             3,
			Parallelism:      2,
			SaltLength:       16,
			KeyLength:        32,
			MaxPasswordBytes: 1024,
			MinLength:        8,
			HistorySize:      5,
		},
		TOTP: TOTPConfig{
			Issuer:      "RedBox",
			SecretSize:  20,
			Digits:      6,
			Period:      30,
			Skew:        1,
			Algorithm:   "SHA1",
			MaxAttempts: 5,
		},
		Security: SecurityConfig{
			MaxLoginAttempts: 5,
		},
		DeviceBinding: DeviceBindingConfig{
			Enabled: true,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	// Session
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.PendingTTL <= 0 {
		return errors.New("Session PendingTTL must be > 0")
	}
	if c.Session.PendingTTL >= c.Session.TTL {
		return errors.New("Session PendingTTL must be shorter than TTL")
	}
	if c.Session.TokenBytes < session.MinTokenBytes {
		return errors.New("Session TokenBytes must be >= 12")
	}
	if c.Session.MaxTokenAttempts < 1 {
		return errors.New("Session MaxTokenAttempts must be >= 1")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.Pepper == "" {
		return errors.New("Password Pepper is required")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxPasswordBytes < c.Password.MinLength {
		return errors.New("Password MaxPasswordBytes must be >= MinLength")
	}
	if c.Password.HistorySize < 0 {
		return errors.New("Password HistorySize must be >= 0")
	}

	// TOTP
	if c.TOTP.Issuer == "" {
		return errors.New("TOTP Issuer must not be empty")
	}
	if c.TOTP.MaxAttempts < 1 {
		return errors.New("TOTP MaxAttempts must be >= 1")
	}

	// Security
	if c.Security.MaxLoginAttempts < 1 {
		return errors.New("Security MaxLoginAttempts must be >= 1")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
