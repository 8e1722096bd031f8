package session

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// MinTokenBytes is the smallest accepted token entropy.
const MinTokenBytes = 12

// NewToken returns n random bytes encoded with unpadded base64url.
func NewToken(n int) (string, error) {
	if n < MinTokenBytes {
		return "", errors.New("token entropy too small")
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// TokenLength is the encoded length of a token carrying n random bytes.
func TokenLength(n int) int {
	return base64.RawURLEncoding.EncodedLen(n)
}

// ValidToken reports whether token has the shape of one issued with n bytes.
// A well-formed token is not necessarily live.
func ValidToken(token string, n int) bool {
	if len(token) != TokenLength(n) {
		return false
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
