package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	trustcore "github.com/RedBox-TN/Backend-sub000"
	"github.com/RedBox-TN/Backend-sub000/gateway"
	"github.com/RedBox-TN/Backend-sub000/session"
)

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password" binding:"required"`
}

type codeRequest struct {
	Code string `json:"code" binding:"required"`
}

type passwordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

// statusResponse is the body of every authentication outcome.
type statusResponse struct {
	Status          trustcore.Status `json:"status"`
	Token           string           `json:"token,omitempty"`
	ExpiresAtUnixMs int64            `json:"expiresAtUnixMs,omitempty"`
	AttemptsLeft    *int             `json:"attemptsLeft,omitempty"`
}

type identityResponse struct {
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	Permissions uint64 `json:"permissions"`
}

type totpResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioningUri"`
	ManualEntryCode string `json:"manualEntryCode"`
}

func (a *API) health(c *gin.Context) {
	latency, err := a.core.Ping(c.Request.Context())
	if err != nil {
		a.logger.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "redisLatencyMs": latency.Milliseconds()})
}

func (a *API) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.fail(c, trustcore.ErrInvalidRequest)
		return
	}

	res, err := a.core.Login(requestContext(c), trustcore.Identifier{Username: req.Username, Email: req.Email}, req.Password)
	if err != nil {
		a.fail(c, err)
		return
	}

	body := statusResponse{Status: res.Status, Token: res.Token, ExpiresAtUnixMs: unixMs(res)}
	switch res.Status {
	case trustcore.StatusUserNotExist:
		// Unknown users answer like a wrong password, minus the attempt count.
		body.Status = trustcore.StatusInvalidCredentials
	case trustcore.StatusInvalidCredentials:
		left := res.AttemptsLeft
		body.AttemptsLeft = &left
	}
	c.JSON(loginHTTPStatus(body.Status), body)
}

func (a *API) verify2FA(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.fail(c, trustcore.ErrInvalidRequest)
		return
	}

	res, err := a.core.Verify2FA(requestContext(c), bearer(c), req.Code)
	if err != nil {
		a.fail(c, err)
		return
	}

	body := statusResponse{Status: res.Status}
	if !res.ExpiresAt.IsZero() {
		body.ExpiresAtUnixMs = res.ExpiresAt.UnixMilli()
	}
	c.JSON(tfaHTTPStatus(res.Status), body)
}

func (a *API) refresh(c *gin.Context) {
	res, err := a.core.RefreshToken(requestContext(c), bearer(c))
	if err != nil {
		a.fail(c, err)
		return
	}

	body := statusResponse{Status: res.Status, Token: res.Token}
	if !res.ExpiresAt.IsZero() {
		body.ExpiresAtUnixMs = res.ExpiresAt.UnixMilli()
	}
	code := http.StatusOK
	if res.Status != trustcore.StatusRefreshed {
		code = http.StatusUnauthorized
	}
	c.JSON(code, body)
}

func (a *API) logout(c *gin.Context) {
	res, err := a.core.Logout(requestContext(c), bearer(c))
	if err != nil {
		a.fail(c, err)
		return
	}

	code := http.StatusOK
	if res.Status != trustcore.StatusLoggedOut {
		code = http.StatusUnauthorized
	}
	c.JSON(code, statusResponse{Status: res.Status})
}

func (a *API) me(c *gin.Context) {
	id := gateway.GinIdentity(c)
	if id == nil {
		a.fail(c, trustcore.ErrUnauthorized)
		return
	}
	c.JSON(http.StatusOK, identityResponse{
		UserID:      id.UserID,
		Username:    id.Username,
		Role:        id.Role,
		Permissions: id.Permissions.Raw(),
	})
}

func (a *API) changePassword(c *gin.Context) {
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.fail(c, trustcore.ErrInvalidRequest)
		return
	}
	if err := a.core.ChangePassword(requestContext(c), bearer(c), req.OldPassword, req.NewPassword); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) beginTOTP(c *gin.Context) {
	secret, err := a.core.BeginTOTPEnrollment(requestContext(c), bearer(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, totpResponse{
		Secret:          secret.Secret,
		ProvisioningURI: secret.ProvisioningURI,
		ManualEntryCode: secret.ManualEntryCode,
	})
}

func (a *API) confirmTOTP(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.fail(c, trustcore.ErrInvalidRequest)
		return
	}
	if err := a.core.ConfirmTOTPEnrollment(requestContext(c), bearer(c), req.Code); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) disableTOTP(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.fail(c, trustcore.ErrInvalidRequest)
		return
	}
	if err := a.core.DisableTOTP(requestContext(c), bearer(c), req.Code); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) unblock(c *gin.Context) {
	if err := a.core.UnblockAccount(requestContext(c), c.Param("id")); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// fail answers an error. Backend failures are logged; their text never
// reaches the client.
func (a *API) fail(c *gin.Context, err error) {
	code := errorHTTPStatus(err)
	if code >= http.StatusInternalServerError {
		a.logger.Error("request failed", zap.String("route", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(code, gin.H{"error": errorCode(err)})
}

func requestContext(c *gin.Context) context.Context {
	return gateway.RequestContext(c.Request.Context(), c.ClientIP(), c.Request.UserAgent())
}

func bearer(c *gin.Context) string {
	return gateway.BearerToken(c.GetHeader("Authorization"))
}

func unixMs(res trustcore.LoginResult) int64 {
	if res.ExpiresAt.IsZero() {
		return 0
	}
	return res.ExpiresAt.UnixMilli()
}

func loginHTTPStatus(s trustcore.Status) int {
	switch s {
	case trustcore.StatusLoginSuccess, trustcore.StatusRequire2FA:
		return http.StatusOK
	case trustcore.StatusAlreadyLogged:
		return http.StatusConflict
	case trustcore.StatusIsBlocked:
		return http.StatusLocked
	default:
		return http.StatusUnauthorized
	}
}

func tfaHTTPStatus(s trustcore.Status) int {
	switch s {
	case trustcore.StatusVerified:
		return http.StatusOK
	case trustcore.StatusTfaNotEnabled, trustcore.StatusAlreadyVerified:
		return http.StatusConflict
	case trustcore.StatusTfaAttemptsExceeded:
		return http.StatusTooManyRequests
	case trustcore.StatusIsBlocked:
		return http.StatusLocked
	default:
		return http.StatusUnauthorized
	}
}

func errorHTTPStatus(err error) int {
	switch {
	case errors.Is(err, trustcore.ErrInvalidRequest), errors.Is(err, trustcore.ErrPasswordPolicy):
		return http.StatusBadRequest
	case errors.Is(err, trustcore.ErrUnauthorized), errors.Is(err, trustcore.ErrInvalidCredentials),
		errors.Is(err, trustcore.ErrTOTPInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, trustcore.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, trustcore.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, trustcore.ErrPasswordReuse), errors.Is(err, trustcore.ErrTOTPAlreadyEnabled),
		errors.Is(err, trustcore.ErrTOTPNotEnrolled):
		return http.StatusConflict
	case errors.Is(err, session.ErrRedisUnavailable), errors.Is(err, trustcore.ErrDirectoryUnavailable),
		errors.Is(err, trustcore.ErrTOTPUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(err error) string {
	switch errorHTTPStatus(err) {
	case http.StatusBadRequest:
		if errors.Is(err, trustcore.ErrPasswordPolicy) {
			return "password_policy"
		}
		return "invalid_request"
	case http.StatusUnauthorized:
		if errors.Is(err, trustcore.ErrTOTPInvalid) {
			return "invalid_code"
		}
		if errors.Is(err, trustcore.ErrInvalidCredentials) {
			return "invalid_credentials"
		}
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		switch {
		case errors.Is(err, trustcore.ErrPasswordReuse):
			return "password_reused"
		case errors.Is(err, trustcore.ErrTOTPAlreadyEnabled):
			return "totp_already_enabled"
		default:
			return "totp_not_enrolled"
		}
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}
