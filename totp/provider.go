// Package totp generates time-based one-time-password shared secrets and
// verifies codes against them (RFC 6238).
package totp

import (
	"errors"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Config controls secret generation and code verification.
type Config struct {
	Issuer     string
	SecretSize uint
	Digits     int
	Period     uint
	Skew       uint
	Algorithm  string // "SHA1" (default), "SHA256", "SHA512"
}

// SharedSecret is returned when a client enrolls a second factor.
type SharedSecret struct {
	// Secret is the base32 (unpadded) shared secret stored with the credential.
	Secret string
	// ProvisioningURI is the otpauth:// payload rendered as a QR code.
	ProvisioningURI string
	// ManualEntryCode is Secret grouped in blocks of four for typing.
	ManualEntryCode string
}

// Provider is safe for concurrent use.
type Provider struct {
	config    Config
	digits    otp.Digits
	algorithm otp.Algorithm
	now       func() time.Time
}

// New validates cfg and returns a Provider.
func New(cfg Config) (*Provider, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("totp issuer is required")
	}
	if cfg.SecretSize < 10 {
		return nil, errors.New("totp secret size must be >= 10 bytes")
	}
	if cfg.Period < 15 {
		return nil, errors.New("totp period must be >= 15 seconds")
	}

	var digits otp.Digits
	switch cfg.Digits {
	case 6:
		digits = otp.DigitsSix
	case 8:
		digits = otp.DigitsEight
	default:
		return nil, errors.New("totp digits must be 6 or 8")
	}

	algorithm, err := parseAlgorithm(cfg.Algorithm)
	if err != nil {
		return nil, err
	}

	return &Provider{
		config:    cfg,
		digits:    digits,
		algorithm: algorithm,
		now:       time.Now,
	}, nil
}

// CreateSharedSecret generates a fresh secret for identityLabel (usually the
// username) and the matching provisioning payload.
func (p *Provider) CreateSharedSecret(identityLabel string) (SharedSecret, error) {
	if identityLabel == "" {
		return SharedSecret{}, errors.New("totp identity label is required")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      p.config.Issuer,
		AccountName: identityLabel,
		Period:      p.config.Period,
		SecretSize:  p.config.SecretSize,
		Digits:      p.digits,
		Algorithm:   p.algorithm,
	})
	if err != nil {
		return SharedSecret{}, err
	}

	return SharedSecret{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		ManualEntryCode: groupCode(key.Secret()),
	}, nil
}

// VerifyCode reports whether code is valid for secret at the current time,
// accepting Skew steps before and after the current one.
func (p *Provider) VerifyCode(secret, code string) (bool, error) {
	return p.VerifyCodeAt(secret, code, p.now())
}

// VerifyCodeAt is VerifyCode evaluated at t.
func (p *Provider) VerifyCodeAt(secret, code string, t time.Time) (bool, error) {
	if secret == "" {
		return false, errors.New("empty totp secret")
	}

	code = strings.TrimSpace(code)
	if len(code) != p.config.Digits {
		return false, nil
	}

	ok, err := totp.ValidateCustom(code, secret, t.UTC(), totp.ValidateOpts{
		Period:    p.config.Period,
		Skew:      p.config.Skew,
		Digits:    p.digits,
		Algorithm: p.algorithm,
	})
	if err != nil {
		if errors.Is(err, otp.ErrValidateInputInvalidLength) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

// GenerateCodeAt returns the code for secret at t. Clients and tests use it;
// the server only verifies.
func (p *Provider) GenerateCodeAt(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t.UTC(), totp.ValidateOpts{
		Period:    p.config.Period,
		Digits:    p.digits,
		Algorithm: p.algorithm,
	})
}

func parseAlgorithm(name string) (otp.Algorithm, error) {
	switch strings.ToUpper(name) {
	case "", "SHA1":
		return otp.AlgorithmSHA1, nil
	case "SHA256":
		return otp.AlgorithmSHA256, nil
	case "SHA512":
		return otp.AlgorithmSHA512, nil
	default:
		return 0, errors.New("unsupported totp algorithm")
	}
}

func groupCode(secret string) string {
	var b strings.Builder
	for i, r := range secret {
		if i > 0 && i%4 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}
