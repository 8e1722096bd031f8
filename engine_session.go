package trustcore

import (
	"context"
	"errors"

	"github.com/RedBox-TN/Backend-sub000/session"
)

// Logout deletes the session behind token. An empty or malformed token
// reports StatusNotLogged; a well-formed token whose session is already gone
// is a successful no-op.
func (e *Engine) Logout(ctx context.Context, token string) (LogoutResult, error) {
	if e == nil || e.sessions == nil {
		return LogoutResult{}, ErrEngineNotReady
	}
	if token == "" || !e.sessions.ValidToken(token) {
		e.emitAudit(ctx, auditEventLogout, false, "", "", StatusNotLogged, nil, nil)
		return LogoutResult{Status: StatusNotLogged}, nil
	}

	if err := e.sessions.Delete(ctx, token); err != nil {
		return LogoutResult{}, err
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, "", "", StatusLoggedOut, nil, nil)
	return LogoutResult{Status: StatusLoggedOut}, nil
}

// RefreshToken rotates an authenticated session to a new token with a fresh
// TTL. The old token stops working immediately. Unknown, expired and pending
// tokens report StatusInvalidToken.
//
// The new token exists only in the returned result; a caller that loses it
// must log in again.
func (e *Engine) RefreshToken(ctx context.Context, token string) (RefreshResult, error) {
	if e == nil || e.sessions == nil {
		return RefreshResult{}, ErrEngineNotReady
	}

	issued, err := e.sessions.RefreshToken(ctx, token, e.config.Session.TTL)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrSessionPending) {
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefresh, false, "", "", StatusInvalidToken, nil, nil)
			return RefreshResult{Status: StatusInvalidToken}, nil
		}
		e.metricInc(MetricRefreshFailure)
		return RefreshResult{}, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefresh, true, "", "", StatusRefreshed, nil, nil)
	return RefreshResult{
		Status:    StatusRefreshed,
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
	}, nil
}

// ActiveSession reports the live session of userID, if any.
func (e *Engine) ActiveSession(ctx context.Context, userID string) (session.Active, bool, error) {
	if e == nil || e.sessions == nil {
		return session.Active{}, false, ErrEngineNotReady
	}
	return e.sessions.IsAlreadyLogged(ctx, userID)
}
