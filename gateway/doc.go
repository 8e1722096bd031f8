// Package gateway enforces trustcore access requirements at the HTTP edge.
//
// Every route declares its [trustcore.Access] when it is registered. A route
// without a declaration is never served: [Router.Handle] rejects it and
// [GinRoutes] answers 500 for routes missing from its table.
//
// Tokens are read from the "Authorization: Bearer <token>" header. The
// authorized identity is attached to the request context and can be read
// with [trustcore.IdentityFromContext].
package gateway
