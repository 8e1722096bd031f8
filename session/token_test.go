package session

import (
	"strings"
	"testing"
)

func TestTokenLengthAndUniqueness(t *testing.T) {
	const n = 12
	want := TokenLength(n)
	if want != 16 {
		t.Fatalf("expected 16 characters for 12 bytes, got %d", want)
	}

	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		tok, err := NewToken(n)
		if err != nil {
			t.Fatalf("NewToken: %v", err)
		}
		if len(tok) != want {
			t.Fatalf("token %q has length %d, want %d", tok, len(tok), want)
		}
		if strings.Contains(tok, "=") {
			t.Fatalf("token %q carries padding", tok)
		}
		if !ValidToken(tok, n) {
			t.Fatalf("issued token %q fails shape check", tok)
		}
		if _, dup := seen[tok]; dup {
			t.Fatalf("collision on %q after %d tokens", tok, i)
		}
		seen[tok] = struct{}{}
	}
}

func TestValidTokenRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"short",
		"AAAAAAAAAAAAAAA=",
		"AAAAAAAAAAAAAAA+",
		"AAAAAAAAAAAAAAA/",
		"AAAAAAAAAAAAAAAAA",
	}
	for _, tok := range cases {
		if ValidToken(tok, 12) {
			t.Fatalf("expected %q to be rejected", tok)
		}
	}
	if !ValidToken("AAAAAAAAAAAAAA-_", 12) {
		t.Fatal("expected url-safe alphabet to be accepted")
	}
}

func TestNewTokenRejectsLowEntropy(t *testing.T) {
	if _, err := NewToken(MinTokenBytes - 1); err == nil {
		t.Fatal("expected error below minimum entropy")
	}
}
