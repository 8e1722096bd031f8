package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	trustcore "github.com/RedBox-TN/Backend-sub000"
	"github.com/RedBox-TN/Backend-sub000/session"
)

// Authorizer is satisfied by *trustcore.Engine.
type Authorizer interface {
	Authorize(ctx context.Context, token string, access trustcore.Access) (*trustcore.Identity, error)
}

// Protect returns middleware enforcing access on every request. An invalid
// access value makes the wrapped handler answer 500.
func Protect(authz Authorizer, access trustcore.Access) func(http.Handler) http.Handler {
	accessErr := access.Validate()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if accessErr != nil || authz == nil {
				writeError(w, http.StatusInternalServerError)
				return
			}

			ctx := RequestContext(r.Context(), ClientIP(r), r.UserAgent())
			id, err := authz.Authorize(ctx, BearerToken(r.Header.Get("Authorization")), access)
			if err != nil {
				writeError(w, StatusCode(err))
				return
			}

			if id != nil {
				ctx = trustcore.WithIdentity(ctx, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestContext attaches the device attributes used by the session binding.
func RequestContext(ctx context.Context, ip, userAgent string) context.Context {
	return trustcore.WithUserAgent(trustcore.WithClientIP(ctx, ip), userAgent)
}

// BearerToken extracts the token from an Authorization header value. It
// returns "" when the header is not a bearer credential.
func BearerToken(value string) string {
	const bearer = "Bearer "
	if len(value) <= len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return ""
	}
	return strings.TrimSpace(value[len(bearer):])
}

// ClientIP returns the host part of r.RemoteAddr. Forwarding headers are not
// trusted here; put a proxy-aware component in front when needed.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// StatusCode maps an authorization error to an HTTP status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, trustcore.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, trustcore.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, session.ErrRedisUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int) {
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="redbox"`)
	}
	http.Error(w, strings.ToLower(http.StatusText(status)), status)
}
