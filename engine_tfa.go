package trustcore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/RedBox-TN/Backend-sub000/session"
)

// Verify2FA confirms the second factor of the pending session behind token.
// On success the session becomes fully authenticated under the same token
// with the full session TTL. A later call with the same token reports
// StatusAlreadyVerified.
//
// A wrong code counts as a failed attempt on the credential, like a wrong
// password; if that blocks the account the pending session is discarded and
// StatusIsBlocked is returned. Wrong codes are also counted per token; after
// TOTP.MaxAttempts the pending session is discarded and
// StatusTfaAttemptsExceeded is returned, forcing a fresh password login.
func (e *Engine) Verify2FA(ctx context.Context, token, code string) (Verify2FAResult, error) {
	if e == nil || e.sessions == nil {
		return Verify2FAResult{}, ErrEngineNotReady
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return Verify2FAResult{}, fmt.Errorf("%w: code is required", ErrInvalidRequest)
	}

	rec, err := e.sessions.TryGet(ctx, token)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return e.tfaOutcome(ctx, nil, StatusUserNotLogged), nil
		}
		return Verify2FAResult{}, err
	}
	if !rec.TfaEnabled {
		return e.tfaOutcome(ctx, rec, StatusTfaNotEnabled), nil
	}
	if rec.IsAuthenticated {
		return e.tfaOutcome(ctx, rec, StatusAlreadyVerified), nil
	}

	cred, err := e.directory.FindByID(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			if err := e.sessions.Delete(ctx, token); err != nil {
				return Verify2FAResult{}, err
			}
			return e.tfaOutcome(ctx, rec, StatusUserNotLogged), nil
		}
		return Verify2FAResult{}, directoryError(err)
	}
	if !cred.TOTPEnabled || cred.TOTPSecret == "" {
		return e.tfaOutcome(ctx, rec, StatusTfaNotEnabled), nil
	}

	ok, err := e.totp.VerifyCode(cred.TOTPSecret, code)
	if err != nil {
		return Verify2FAResult{}, fmt.Errorf("%w: %v", ErrTOTPUnavailable, err)
	}
	if !ok {
		return e.tfaFailed(ctx, token, rec, cred)
	}

	issued, err := e.sessions.SetCompleted(ctx, token, e.config.Session.TTL)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrAlreadyCompleted):
			return e.tfaOutcome(ctx, rec, StatusAlreadyVerified), nil
		case errors.Is(err, session.ErrNotFound):
			return e.tfaOutcome(ctx, rec, StatusUserNotLogged), nil
		}
		return Verify2FAResult{}, err
	}

	if err := e.tfaLimiter.Reset(ctx, token); err != nil {
		e.logger.Warn("tfa limiter reset failed", zap.Error(err))
	}
	if cred.InvalidAttempts > 0 {
		if err := e.directory.RecordLoginSuccess(ctx, cred.UserID, e.now()); err != nil {
			return Verify2FAResult{}, directoryError(err)
		}
	}

	res := e.tfaOutcome(ctx, rec, StatusVerified)
	res.ExpiresAt = issued.ExpiresAt
	return res, nil
}

// tfaFailed counts a wrong code against both the credential and the pending
// token. Either limit discards the pending session.
func (e *Engine) tfaFailed(ctx context.Context, token string, rec *session.Record, cred *Credential) (Verify2FAResult, error) {
	_, blocked, err := e.recordFailure(ctx, cred)
	if err != nil {
		return Verify2FAResult{}, err
	}

	status := StatusIsBlocked
	if !blocked {
		exceeded, err := e.tfaLimiter.RecordFailure(ctx, token)
		if err != nil {
			return Verify2FAResult{}, err
		}
		if !exceeded {
			return e.tfaOutcome(ctx, rec, StatusInvalidCode), nil
		}
		status = StatusTfaAttemptsExceeded
	}

	if err := e.sessions.Delete(ctx, token); err != nil {
		return Verify2FAResult{}, err
	}
	if err := e.tfaLimiter.Reset(ctx, token); err != nil {
		e.logger.Warn("tfa limiter reset failed", zap.Error(err))
	}
	e.metricInc(MetricSessionRevoked)
	return e.tfaOutcome(ctx, rec, status), nil
}

func (e *Engine) tfaOutcome(ctx context.Context, rec *session.Record, status Status) Verify2FAResult {
	var userID, username string
	if rec != nil {
		userID, username = rec.UserID, rec.Username
	}

	success := status == StatusVerified
	switch status {
	case StatusVerified:
		e.metricInc(MetricTFASuccess)
	case StatusTfaAttemptsExceeded:
		e.metricInc(MetricTFAAttemptsExceeded)
	default:
		e.metricInc(MetricTFAFailure)
	}
	e.emitAudit(ctx, auditEventTFA, success, userID, username, status, nil, nil)

	return Verify2FAResult{Status: status}
}
