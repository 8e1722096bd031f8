package session

import (
	"time"

	"github.com/RedBox-TN/Backend-sub000/permission"
)

// Record is the cached authorization state behind a token.
type Record struct {
	UserID      string
	Username    string
	Role        string
	Permissions permission.Mask
	DeviceHash  uint64

	// TfaEnabled records whether the identity had a second factor at login.
	TfaEnabled bool
	// IsAuthenticated is false while a second factor is outstanding.
	IsAuthenticated bool

	// CreatedAt is the login time in unix milliseconds.
	CreatedAt int64
}

// Issued is the result of writing or rotating a session.
type Issued struct {
	Token     string
	ExpiresAt time.Time
}
