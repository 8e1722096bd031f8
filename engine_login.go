package trustcore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/RedBox-TN/Backend-sub000/device"
	"github.com/RedBox-TN/Backend-sub000/session"
)

// Login verifies a password for the identity named by id and opens a
// session. The client IP and User-Agent are read from ctx (see
// WithClientIP and WithUserAgent) and recorded in the device binding.
//
// A credential with a second factor gets a pending session and
// StatusRequire2FA; otherwise the session is fully authenticated and the
// status is StatusLoginSuccess. Each wrong password increments the
// identity's attempt counter; reaching Security.MaxLoginAttempts blocks the
// account until UnblockAccount.
//
// An identity with a live session gets StatusAlreadyLogged before its
// password is looked at, so a wrong password sent while the owner is logged
// in never counts towards the lockout.
func (e *Engine) Login(ctx context.Context, id Identifier, pw string) (LoginResult, error) {
	if e == nil || e.directory == nil {
		return LoginResult{}, ErrEngineNotReady
	}
	id, err := id.normalize()
	if err != nil {
		return LoginResult{}, err
	}
	if pw == "" || len(pw) > e.config.Password.MaxPasswordBytes {
		return LoginResult{}, fmt.Errorf("%w: password length", ErrInvalidRequest)
	}

	start := time.Now()
	defer e.observeSince(MetricLoginLatency, start)

	cred, err := e.lookup(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLogin, false, "", id.Username, StatusUserNotExist, nil, nil)
			return LoginResult{Status: StatusUserNotExist}, nil
		}
		return LoginResult{}, err
	}

	if _, live, err := e.sessions.IsAlreadyLogged(ctx, cred.UserID); err != nil {
		return LoginResult{}, err
	} else if live {
		return e.alreadyLogged(ctx, cred), nil
	}

	if cred.Blocked {
		e.metricInc(MetricLoginBlocked)
		e.emitAudit(ctx, auditEventLogin, false, cred.UserID, cred.Username, StatusIsBlocked, nil, nil)
		return LoginResult{Status: StatusIsBlocked}, nil
	}

	ok, err := e.hasher.VerifyPassword(pw, cred.PasswordHash, cred.Salt)
	if err != nil {
		return LoginResult{}, err
	}
	if !ok {
		return e.loginFailed(ctx, cred)
	}

	now := e.now()
	if err := e.directory.RecordLoginSuccess(ctx, cred.UserID, now); err != nil {
		return LoginResult{}, directoryError(err)
	}

	role, err := e.directory.GetRole(ctx, cred.RoleID)
	if err != nil {
		return LoginResult{}, directoryError(err)
	}

	rec := &session.Record{
		UserID:      cred.UserID,
		Username:    cred.Username,
		Role:        role.Name,
		Permissions: role.Permissions,
		DeviceHash:  device.Calculate(userAgentFromContext(ctx), clientIPFromContext(ctx)),
		TfaEnabled:  cred.TOTPEnabled,
		CreatedAt:   now.UnixMilli(),
	}

	var (
		issued session.Issued
		status Status
	)
	if cred.TOTPEnabled {
		issued, err = e.sessions.StorePending(ctx, rec, e.config.Session.PendingTTL)
		status = StatusRequire2FA
	} else {
		issued, err = e.sessions.Store(ctx, rec, e.config.Session.TTL)
		status = StatusLoginSuccess
	}
	if err != nil {
		if errors.Is(err, session.ErrAlreadyLogged) {
			return e.alreadyLogged(ctx, cred), nil
		}
		return LoginResult{}, err
	}

	if status == StatusRequire2FA {
		e.metricInc(MetricLoginRequire2FA)
	} else {
		e.metricInc(MetricLoginSuccess)
	}
	e.emitAudit(ctx, auditEventLogin, true, cred.UserID, cred.Username, status, nil, nil)
	e.logger.Debug("login accepted",
		zap.String("user_id", cred.UserID),
		zap.String("status", string(status)),
	)

	return LoginResult{
		Status:    status,
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
	}, nil
}

func (e *Engine) loginFailed(ctx context.Context, cred *Credential) (LoginResult, error) {
	left, blocked, err := e.recordFailure(ctx, cred)
	if err != nil {
		return LoginResult{}, err
	}
	if blocked {
		return LoginResult{Status: StatusIsBlocked}, nil
	}

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLogin, false, cred.UserID, cred.Username, StatusInvalidCredentials, nil,
		map[string]string{"attempts_left": strconv.Itoa(left)})

	return LoginResult{Status: StatusInvalidCredentials, AttemptsLeft: left}, nil
}

// recordFailure counts a wrong password or second-factor code against cred.
// It returns the attempts left before the account blocks, and whether this
// failure blocked it.
func (e *Engine) recordFailure(ctx context.Context, cred *Credential) (int, bool, error) {
	maxAttempts := e.config.Security.MaxLoginAttempts
	attempts, blocked, err := e.directory.RecordLoginFailure(ctx, cred.UserID, maxAttempts)
	if err != nil {
		return 0, false, directoryError(err)
	}

	if blocked {
		e.metricInc(MetricAccountLocked)
		e.emitAudit(ctx, auditEventAccountBlocked, false, cred.UserID, cred.Username, StatusIsBlocked, nil,
			map[string]string{"attempts": strconv.Itoa(attempts)})
		e.logger.Warn("account blocked after failed attempts",
			zap.String("user_id", cred.UserID),
			zap.Int("attempts", attempts),
		)
		return 0, true, nil
	}
	return max(maxAttempts-attempts, 0), false, nil
}

func (e *Engine) alreadyLogged(ctx context.Context, cred *Credential) LoginResult {
	e.metricInc(MetricLoginAlreadyLogged)
	e.emitAudit(ctx, auditEventLogin, false, cred.UserID, cred.Username, StatusAlreadyLogged, nil, nil)
	return LoginResult{Status: StatusAlreadyLogged}
}

func (e *Engine) lookup(ctx context.Context, id Identifier) (*Credential, error) {
	var (
		cred *Credential
		err  error
	)
	if id.Username != "" {
		cred, err = e.directory.FindByUsername(ctx, id.Username)
	} else {
		cred, err = e.directory.FindByEmail(ctx, id.Email)
	}
	if err != nil {
		return nil, directoryError(err)
	}
	if cred == nil {
		return nil, ErrUserNotFound
	}
	return cred, nil
}

// directoryError passes known directory sentinels through and wraps
// everything else as ErrDirectoryUnavailable.
func directoryError(err error) error {
	if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrRoleNotFound) ||
		errors.Is(err, ErrDirectoryUnavailable) || errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
}
