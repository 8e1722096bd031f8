package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"

	trustcore "github.com/RedBox-TN/Backend-sub000"
)

// IdentityKey is the gin context key holding the *trustcore.Identity.
const IdentityKey = "trustcore.identity"

// Gin enforces one access requirement as gin middleware.
func Gin(authz Authorizer, access trustcore.Access) gin.HandlerFunc {
	accessErr := access.Validate()
	return func(c *gin.Context) {
		if accessErr != nil {
			abort(c, http.StatusInternalServerError)
			return
		}
		authorizeGin(c, authz, access)
	}
}

// GinRoutes enforces a per-route table keyed by "METHOD /full/path" as
// registered with gin (c.FullPath()). Requests to a route missing from the
// table, or declared with an invalid access value, get 500. Requests that
// match no route are left to gin's 404 handling.
func GinRoutes(authz Authorizer, table map[string]trustcore.Access) gin.HandlerFunc {
	routes := make(map[string]trustcore.Access, len(table))
	for route, access := range table {
		if access.Validate() == nil {
			routes[route] = access
		}
	}

	return func(c *gin.Context) {
		if c.FullPath() == "" {
			c.Next()
			return
		}
		access, ok := routes[c.Request.Method+" "+c.FullPath()]
		if !ok {
			abort(c, http.StatusInternalServerError)
			return
		}
		authorizeGin(c, authz, access)
	}
}

// GinIdentity returns the identity set by Gin or GinRoutes.
func GinIdentity(c *gin.Context) *trustcore.Identity {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return nil
	}
	id, _ := v.(*trustcore.Identity)
	return id
}

func authorizeGin(c *gin.Context, authz Authorizer, access trustcore.Access) {
	if authz == nil {
		abort(c, http.StatusInternalServerError)
		return
	}

	ctx := RequestContext(c.Request.Context(), c.ClientIP(), c.Request.UserAgent())
	id, err := authz.Authorize(ctx, BearerToken(c.GetHeader("Authorization")), access)
	if err != nil {
		abort(c, StatusCode(err))
		return
	}

	if id != nil {
		ctx = trustcore.WithIdentity(ctx, id)
		c.Set(IdentityKey, id)
	}
	c.Request = c.Request.WithContext(ctx)
	c.Next()
}

func abort(c *gin.Context, status int) {
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", `Bearer realm="redbox"`)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": http.StatusText(status)})
}
