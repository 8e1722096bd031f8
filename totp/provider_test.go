package totp

import (
	"encoding/base32"
	"net/url"
	"strings"
	"testing"
	"time"
)

var rawEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

func newTestProvider(t *testing.T, cfg Config) *Provider {
	t.Helper()
	if cfg.Issuer == "" {
		cfg.Issuer = "RedBox"
	}
	if cfg.SecretSize == 0 {
		cfg.SecretSize = 20
	}
	if cfg.Period == 0 {
		cfg.Period = 30
	}
	if cfg.Digits == 0 {
		cfg.Digits = 6
	}
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

type vector struct {
	ts   int64
	code string
}

func checkVectors(t *testing.T, p *Provider, secret string, cases []vector) {
	t.Helper()
	for _, tc := range cases {
		ok, err := p.VerifyCodeAt(secret, tc.code, time.Unix(tc.ts, 0))
		if err != nil || !ok {
			t.Fatalf("vector failed at t=%d, ok=%v err=%v", tc.ts, ok, err)
		}
	}
}

func TestVerifyRFCVectorsSHA1(t *testing.T) {
	p := newTestProvider(t, Config{Digits: 8, Algorithm: "SHA1"})
	secret := rawEncoding.EncodeToString([]byte("12345678901234567890"))
	if secret != "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ" {
		t.Fatalf("unexpected base32 secret %q", secret)
	}
	checkVectors(t, p, secret, []vector{
		{59, "94287082"},
		{1111111109, "07081804"},
		{1111111111, "14050471"},
		{1234567890, "89005924"},
		{2000000000, "69279037"},
		{20000000000, "65353130"},
	})
}

func TestVerifyRFCVectorsSHA256(t *testing.T) {
	p := newTestProvider(t, Config{Digits: 8, Algorithm: "SHA256"})
	secret := rawEncoding.EncodeToString([]byte("12345678901234567890123456789012"))
	checkVectors(t, p, secret, []vector{
		{59, "46119246"},
		{1111111109, "68084774"},
		{1111111111, "67062674"},
		{1234567890, "91819424"},
		{2000000000, "90698825"},
		{20000000000, "77737706"},
	})
}

func TestVerifyRFCVectorsSHA512(t *testing.T) {
	p := newTestProvider(t, Config{Digits: 8, Algorithm: "SHA512"})
	secret := rawEncoding.EncodeToString([]byte("1234567890123456789012345678901234567890123456789012345678901234"))
	checkVectors(t, p, secret, []vector{
		{59, "90693936"},
		{1111111109, "25091201"},
		{1111111111, "99943326"},
		{1234567890, "93441116"},
		{2000000000, "38618901"},
		{20000000000, "47863826"},
	})
}

func TestCreateSharedSecret(t *testing.T) {
	p := newTestProvider(t, Config{})

	s, err := p.CreateSharedSecret("alice")
	if err != nil {
		t.Fatalf("CreateSharedSecret: %v", err)
	}

	raw, err := rawEncoding.DecodeString(s.Secret)
	if err != nil {
		t.Fatalf("secret is not base32: %v", err)
	}
	if len(raw) != 20 {
		t.Fatalf("expected 20 secret bytes, got %d", len(raw))
	}

	u, err := url.Parse(s.ProvisioningURI)
	if err != nil {
		t.Fatalf("parse provisioning uri: %v", err)
	}
	if u.Scheme != "otpauth" || u.Host != "totp" {
		t.Fatalf("unexpected provisioning uri %q", s.ProvisioningURI)
	}
	if u.Query().Get("secret") != s.Secret {
		t.Fatal("provisioning uri does not carry the secret")
	}
	if u.Query().Get("issuer") != "RedBox" {
		t.Fatalf("unexpected issuer %q", u.Query().Get("issuer"))
	}

	if strings.ReplaceAll(s.ManualEntryCode, " ", "") != s.Secret {
		t.Fatalf("manual entry code %q does not match secret", s.ManualEntryCode)
	}
	for _, group := range strings.Split(s.ManualEntryCode, " ") {
		if len(group) > 4 {
			t.Fatalf("manual entry group %q longer than 4", group)
		}
	}

	other, err := p.CreateSharedSecret("alice")
	if err != nil {
		t.Fatalf("CreateSharedSecret: %v", err)
	}
	if other.Secret == s.Secret {
		t.Fatal("expected distinct secrets")
	}
}

func TestCreateSharedSecretRequiresLabel(t *testing.T) {
	p := newTestProvider(t, Config{})
	if _, err := p.CreateSharedSecret(""); err == nil {
		t.Fatal("expected error for empty label")
	}
}

func TestVerifyCodeRoundTripWithSkew(t *testing.T) {
	p := newTestProvider(t, Config{Skew: 1})
	s, err := p.CreateSharedSecret("alice")
	if err != nil {
		t.Fatalf("CreateSharedSecret: %v", err)
	}

	now := time.Unix(1700000000, 0)
	p.now = func() time.Time { return now }

	code, err := p.GenerateCodeAt(s.Secret, now)
	if err != nil {
		t.Fatalf("GenerateCodeAt: %v", err)
	}
	if ok, err := p.VerifyCode(s.Secret, code); err != nil || !ok {
		t.Fatalf("expected current code to verify, ok=%v err=%v", ok, err)
	}

	prev, _ := p.GenerateCodeAt(s.Secret, now.Add(-30*time.Second))
	if ok, _ := p.VerifyCode(s.Secret, prev); !ok {
		t.Fatal("expected previous step to verify within skew")
	}

	old, _ := p.GenerateCodeAt(s.Secret, now.Add(-5*time.Minute))
	if old != code {
		if ok, _ := p.VerifyCode(s.Secret, old); ok {
			t.Fatal("expected stale code to fail")
		}
	}
}

func TestVerifyCodeRejectsMalformed(t *testing.T) {
	p := newTestProvider(t, Config{})
	s, err := p.CreateSharedSecret("alice")
	if err != nil {
		t.Fatalf("CreateSharedSecret: %v", err)
	}

	for _, code := range []string{"", "12345", "1234567", "abcdef"} {
		ok, err := p.VerifyCode(s.Secret, code)
		if ok {
			t.Fatalf("expected %q to fail", code)
		}
		if err != nil && code != "abcdef" {
			t.Fatalf("unexpected error for %q: %v", code, err)
		}
	}

	if _, err := p.VerifyCode("", "123456"); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestNewValidation(t *testing.T) {
	base := Config{Issuer: "RedBox", SecretSize: 20, Digits: 6, Period: 30}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing issuer", func(c *Config) { c.Issuer = "" }},
		{"short secret", func(c *Config) { c.SecretSize = 8 }},
		{"short period", func(c *Config) { c.Period = 5 }},
		{"bad digits", func(c *Config) { c.Digits = 7 }},
		{"bad algorithm", func(c *Config) { c.Algorithm = "MD5" }},
	}

	if _, err := New(base); err != nil {
		t.Fatalf("expected base config to be valid: %v", err)
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			if _, err := New(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
