package trustcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RedBox-TN/Backend-sub000/totp"
)

// NewCredential hashes pw and returns a credential ready to be stored in a
// directory. The user id is a fresh UUID.
func (e *Engine) NewCredential(username, email, pw, roleID string) (*Credential, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || roleID == "" {
		return nil, fmt.Errorf("%w: username and role are required", ErrInvalidRequest)
	}
	if err := e.checkPasswordPolicy(pw); err != nil {
		return nil, err
	}

	salt, hash, err := e.hashNew(pw)
	if err != nil {
		return nil, err
	}

	return &Credential{
		UserID:       uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Salt:         salt,
		RoleID:       roleID,
	}, nil
}

// UnblockAccount clears the blocked flag and the attempt counter. It is the
// out-of-band recovery path for a locked account.
func (e *Engine) UnblockAccount(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	if err := e.directory.SetBlocked(ctx, userID, false); err != nil {
		return directoryError(err)
	}

	e.metricInc(MetricAccountUnblocked)
	e.emitAudit(ctx, auditEventAccountUnblocked, true, userID, "", "", nil, nil)
	return nil
}

// ChangePassword replaces the password of the identity behind token. The
// new password must satisfy the length policy and differ from the current
// one and the last Password.HistorySize ones. The session stays valid.
func (e *Engine) ChangePassword(ctx context.Context, token, oldPassword, newPassword string) error {
	id, err := e.Authorize(ctx, token, AuthenticationRequired())
	if err != nil {
		return err
	}
	if oldPassword == "" || len(oldPassword) > e.config.Password.MaxPasswordBytes {
		return fmt.Errorf("%w: old password length", ErrInvalidRequest)
	}
	if err := e.checkPasswordPolicy(newPassword); err != nil {
		e.passwordChangeFailed(ctx, id, err)
		return err
	}

	cred, err := e.directory.FindByID(ctx, id.UserID)
	if err != nil {
		return directoryError(err)
	}

	ok, err := e.hasher.VerifyPassword(oldPassword, cred.PasswordHash, cred.Salt)
	if err != nil {
		return err
	}
	if !ok {
		e.passwordChangeFailed(ctx, id, ErrInvalidCredentials)
		return ErrInvalidCredentials
	}

	if reused, err := e.passwordReused(newPassword, cred); err != nil {
		return err
	} else if reused {
		e.passwordChangeFailed(ctx, id, ErrPasswordReuse)
		return ErrPasswordReuse
	}

	salt, hash, err := e.hashNew(newPassword)
	if err != nil {
		return err
	}

	history := make([]PasswordHistoryEntry, 0, e.config.Password.HistorySize)
	if e.config.Password.HistorySize > 0 {
		history = append(history, PasswordHistoryEntry{
			Hash:      cred.PasswordHash,
			Salt:      cred.Salt,
			ChangedAt: e.now().UTC(),
		})
		for _, h := range cred.PasswordHistory {
			if len(history) >= e.config.Password.HistorySize {
				break
			}
			history = append(history, h)
		}
	}

	if err := e.directory.UpdatePassword(ctx, id.UserID, hash, salt, history); err != nil {
		return directoryError(err)
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChange, true, id.UserID, id.Username, "", nil, nil)
	return nil
}

// BeginTOTPEnrollment creates a new shared secret for the identity behind
// token and stores it disabled. The second factor takes effect only after
// ConfirmTOTPEnrollment.
func (e *Engine) BeginTOTPEnrollment(ctx context.Context, token string) (totp.SharedSecret, error) {
	id, err := e.Authorize(ctx, token, AuthenticationRequired())
	if err != nil {
		return totp.SharedSecret{}, err
	}

	cred, err := e.directory.FindByID(ctx, id.UserID)
	if err != nil {
		return totp.SharedSecret{}, directoryError(err)
	}
	if cred.TOTPEnabled {
		return totp.SharedSecret{}, ErrTOTPAlreadyEnabled
	}

	secret, err := e.totp.CreateSharedSecret(cred.Username)
	if err != nil {
		return totp.SharedSecret{}, err
	}
	if err := e.directory.UpdateTOTP(ctx, cred.UserID, secret.Secret, false); err != nil {
		return totp.SharedSecret{}, directoryError(err)
	}

	return secret, nil
}

// ConfirmTOTPEnrollment enables the second factor once the client proves it
// holds the secret from BeginTOTPEnrollment.
func (e *Engine) ConfirmTOTPEnrollment(ctx context.Context, token, code string) error {
	id, err := e.Authorize(ctx, token, AuthenticationRequired())
	if err != nil {
		return err
	}

	cred, err := e.directory.FindByID(ctx, id.UserID)
	if err != nil {
		return directoryError(err)
	}
	if cred.TOTPEnabled {
		return ErrTOTPAlreadyEnabled
	}
	if cred.TOTPSecret == "" {
		return ErrTOTPNotEnrolled
	}
	if err := e.checkCode(cred.TOTPSecret, code); err != nil {
		return err
	}

	if err := e.directory.UpdateTOTP(ctx, cred.UserID, cred.TOTPSecret, true); err != nil {
		return directoryError(err)
	}

	e.metricInc(MetricTOTPEnrolled)
	e.emitAudit(ctx, auditEventTOTPEnrolled, true, cred.UserID, cred.Username, "", nil, nil)
	return nil
}

// DisableTOTP removes the second factor after verifying a current code.
func (e *Engine) DisableTOTP(ctx context.Context, token, code string) error {
	id, err := e.Authorize(ctx, token, AuthenticationRequired())
	if err != nil {
		return err
	}

	cred, err := e.directory.FindByID(ctx, id.UserID)
	if err != nil {
		return directoryError(err)
	}
	if !cred.TOTPEnabled {
		return ErrTOTPNotEnrolled
	}
	if err := e.checkCode(cred.TOTPSecret, code); err != nil {
		return err
	}

	if err := e.directory.UpdateTOTP(ctx, cred.UserID, "", false); err != nil {
		return directoryError(err)
	}

	e.metricInc(MetricTOTPDisabled)
	e.emitAudit(ctx, auditEventTOTPDisabled, true, cred.UserID, cred.Username, "", nil, nil)
	return nil
}

func (e *Engine) checkCode(secret, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("%w: code is required", ErrInvalidRequest)
	}
	ok, err := e.totp.VerifyCode(secret, code)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTOTPUnavailable, err)
	}
	if !ok {
		return ErrTOTPInvalid
	}
	return nil
}

func (e *Engine) checkPasswordPolicy(pw string) error {
	if utf8.RuneCountInString(pw) < e.config.Password.MinLength {
		return fmt.Errorf("%w: password shorter than %d characters", ErrPasswordPolicy, e.config.Password.MinLength)
	}
	if len(pw) > e.config.Password.MaxPasswordBytes {
		return fmt.Errorf("%w: password longer than %d bytes", ErrPasswordPolicy, e.config.Password.MaxPasswordBytes)
	}
	return nil
}

func (e *Engine) hashNew(pw string) (salt, hash []byte, err error) {
	salt, err = e.hasher.CreateSalt()
	if err != nil {
		return nil, nil, err
	}
	hash, err = e.hasher.HashPassword(pw, salt)
	if err != nil {
		return nil, nil, err
	}
	return salt, hash, nil
}

func (e *Engine) passwordReused(pw string, cred *Credential) (bool, error) {
	candidates := append([]PasswordHistoryEntry{{Hash: cred.PasswordHash, Salt: cred.Salt}}, cred.PasswordHistory...)
	for _, h := range candidates {
		if len(h.Hash) == 0 || len(h.Salt) == 0 {
			continue
		}
		ok, err := e.hasher.VerifyPassword(pw, h.Hash, h.Salt)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) passwordChangeFailed(ctx context.Context, id *Identity, err error) {
	e.metricInc(MetricPasswordChangeFailure)
	e.emitAudit(ctx, auditEventPasswordChange, false, id.UserID, id.Username, "", err, nil)
	if !errors.Is(err, ErrPasswordPolicy) {
		e.logger.Info("password change rejected", zap.String("user_id", id.UserID), zap.Error(err))
	}
}
