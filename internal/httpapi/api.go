package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	trustcore "github.com/RedBox-TN/Backend-sub000"
	"github.com/RedBox-TN/Backend-sub000/gateway"
	"github.com/RedBox-TN/Backend-sub000/internal/observability"
	"github.com/RedBox-TN/Backend-sub000/permission"
	"github.com/RedBox-TN/Backend-sub000/totp"
)

// Core is the engine surface served over HTTP. *trustcore.Engine
// satisfies it.
type Core interface {
	gateway.Authorizer

	Login(ctx context.Context, id trustcore.Identifier, pw string) (trustcore.LoginResult, error)
	Verify2FA(ctx context.Context, token, code string) (trustcore.Verify2FAResult, error)
	RefreshToken(ctx context.Context, token string) (trustcore.RefreshResult, error)
	Logout(ctx context.Context, token string) (trustcore.LogoutResult, error)

	ChangePassword(ctx context.Context, token, oldPassword, newPassword string) error
	BeginTOTPEnrollment(ctx context.Context, token string) (totp.SharedSecret, error)
	ConfirmTOTPEnrollment(ctx context.Context, token, code string) error
	DisableTOTP(ctx context.Context, token, code string) error
	UnblockAccount(ctx context.Context, userID string) error

	Ping(ctx context.Context) (time.Duration, error)
}

// Options configures optional routes.
type Options struct {
	// AdminPermissions guards the account administration routes. They are
	// not registered when it is zero.
	AdminPermissions permission.Mask
	// MetricsPath and MetricsHandler add an anonymous metrics route.
	MetricsPath    string
	MetricsHandler http.Handler
	TrustedProxies []string
}

type API struct {
	core   Core
	logger *zap.Logger
}

// NewRouter returns a gin engine serving core. The logger must not be nil.
func NewRouter(core Core, logger *zap.Logger, opts Options) (*gin.Engine, error) {
	api := &API{core: core, logger: logger.Named("httpapi")}

	r := gin.New()
	if err := r.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, err
	}
	r.Use(observability.Recover(logger), observability.RequestLogger(logger))

	table := map[string]trustcore.Access{
		"GET /health":             trustcore.Anonymous(),
		"POST /auth/login":        trustcore.Anonymous(),
		"POST /auth/2fa":          trustcore.Anonymous(),
		"POST /auth/refresh":      trustcore.Anonymous(),
		"POST /auth/logout":       trustcore.Anonymous(),
		"GET /auth/me":            trustcore.AuthenticationRequired(),
		"POST /auth/password":     trustcore.AuthenticationRequired(),
		"POST /auth/totp/enroll":  trustcore.AuthenticationRequired(),
		"POST /auth/totp/confirm": trustcore.AuthenticationRequired(),
		"DELETE /auth/totp":       trustcore.AuthenticationRequired(),
	}
	if opts.AdminPermissions != 0 {
		table["POST /admin/users/:id/unblock"] = trustcore.RequiredPermissions(opts.AdminPermissions)
	}
	if opts.MetricsHandler != nil && opts.MetricsPath != "" {
		table["GET "+opts.MetricsPath] = trustcore.Anonymous()
	}

	r.Use(gateway.GinRoutes(core, table))

	r.GET("/health", api.health)

	auth := r.Group("/auth")
	auth.POST("/login", api.login)
	auth.POST("/2fa", api.verify2FA)
	auth.POST("/refresh", api.refresh)
	auth.POST("/logout", api.logout)
	auth.GET("/me", api.me)
	auth.POST("/password", api.changePassword)
	auth.POST("/totp/enroll", api.beginTOTP)
	auth.POST("/totp/confirm", api.confirmTOTP)
	auth.DELETE("/totp", api.disableTOTP)

	if opts.AdminPermissions != 0 {
		r.POST("/admin/users/:id/unblock", api.unblock)
	}
	if opts.MetricsHandler != nil && opts.MetricsPath != "" {
		r.GET(opts.MetricsPath, gin.WrapH(opts.MetricsHandler))
	}

	return r, nil
}
