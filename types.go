package trustcore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/RedBox-TN/Backend-sub000/permission"
)

// Credential is the durable authentication state of one identity.
type Credential struct {
	UserID          string
	Username        string
	Email           string
	PasswordHash    []byte
	Salt            []byte
	PasswordHistory []PasswordHistoryEntry
	InvalidAttempts int
	Blocked         bool
	RoleID          string
	TOTPEnabled     bool
	TOTPSecret      string
	LastAccess      time.Time
}

// PasswordHistoryEntry is a previously used password, newest first in
// Credential.PasswordHistory.
type PasswordHistoryEntry struct {
	Hash      []byte
	Salt      []byte
	ChangedAt time.Time
}

// Role carries the permission bits granted to its members.
type Role struct {
	ID          string
	Name        string
	Permissions permission.Mask
}

// Directory is the durable user and role store. Implementations return
// ErrUserNotFound or ErrRoleNotFound for missing records and must be safe for
// concurrent use.
type Directory interface {
	FindByUsername(ctx context.Context, username string) (*Credential, error)
	FindByEmail(ctx context.Context, email string) (*Credential, error)
	FindByID(ctx context.Context, userID string) (*Credential, error)

	// RecordLoginFailure atomically increments the invalid-attempt counter
	// and sets the blocked flag once it reaches maxAttempts.
	RecordLoginFailure(ctx context.Context, userID string, maxAttempts int) (attempts int, blocked bool, err error)
	// RecordLoginSuccess resets the counter and stamps the last access time.
	RecordLoginSuccess(ctx context.Context, userID string, at time.Time) error
	// SetBlocked sets the blocked flag; unblocking also resets the counter.
	SetBlocked(ctx context.Context, userID string, blocked bool) error

	UpdatePassword(ctx context.Context, userID string, hash, salt []byte, history []PasswordHistoryEntry) error
	UpdateTOTP(ctx context.Context, userID, secret string, enabled bool) error

	GetRole(ctx context.Context, roleID string) (Role, error)
}

// Identifier selects the credential for a login: exactly one of Username or
// Email.
type Identifier struct {
	Username string
	Email    string
}

// normalize trims both fields and checks that exactly one remains set.
func (id Identifier) normalize() (Identifier, error) {
	id.Username = strings.TrimSpace(id.Username)
	id.Email = strings.TrimSpace(id.Email)
	if (id.Username != "") == (id.Email != "") {
		return Identifier{}, fmt.Errorf("%w: exactly one of username or email is required", ErrInvalidRequest)
	}
	return id, nil
}

// Status is the outcome of an authentication operation.
type Status string

const (
	StatusLoginSuccess       Status = "login_success"
	StatusRequire2FA         Status = "require_2fa"
	StatusAlreadyLogged      Status = "already_logged"
	StatusUserNotExist       Status = "user_not_exist"
	StatusInvalidCredentials Status = "invalid_credentials"
	StatusIsBlocked          Status = "is_blocked"

	StatusUserNotLogged       Status = "user_not_logged"
	StatusTfaNotEnabled       Status = "tfa_not_enabled"
	StatusAlreadyVerified     Status = "already_verified"
	StatusInvalidCode         Status = "invalid_code"
	StatusTfaAttemptsExceeded Status = "tfa_attempts_exceeded"
	StatusVerified            Status = "verified"

	StatusNotLogged Status = "not_logged"
	StatusLoggedOut Status = "logged_out"

	StatusInvalidToken Status = "invalid_token"
	StatusRefreshed    Status = "refreshed"
)

// LoginResult is returned by Engine.Login. Token and ExpiresAt are set for
// StatusLoginSuccess and StatusRequire2FA; AttemptsLeft for
// StatusInvalidCredentials.
type LoginResult struct {
	Status       Status
	Token        string
	ExpiresAt    time.Time
	AttemptsLeft int
}

// Verify2FAResult is returned by Engine.Verify2FA.
type Verify2FAResult struct {
	Status    Status
	ExpiresAt time.Time
}

// RefreshResult is returned by Engine.RefreshToken.
type RefreshResult struct {
	Status    Status
	Token     string
	ExpiresAt time.Time
}

// LogoutResult is returned by Engine.Logout.
type LogoutResult struct {
	Status Status
}

// Identity is the authorized caller attached to a request.
type Identity struct {
	UserID      string
	Username    string
	Role        string
	Permissions permission.Mask
}
