// Package httpapi exposes the trust core over JSON/HTTP with gin.
//
// Every route is declared in one access table enforced by
// gateway.GinRoutes, so a route added without an entry answers 500. Token
// operations read the token from the Authorization bearer header.
//
// The wire never distinguishes an unknown user from a wrong password: both
// are reported as invalid_credentials.
package httpapi
