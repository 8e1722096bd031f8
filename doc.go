// Package trustcore is the authentication and authorization core of the RedBox
// messaging backend: credential verification, second-factor (TOTP) state,
// Redis-backed sessions with TTL expiry, device binding and per-request
// permission enforcement.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build]. The engine holds no in-process
// session state; Redis is the only shared mutable resource.
//
// # Architecture boundaries
//
// trustcore is the public surface. It exposes [Engine], [Builder], [Config],
// the [Directory] contract for durable user and role storage, and the result
// and [Access] value types. Session encoding and token issuance live in the
// session package; audit dispatch lives under internal/.
//
// # Outcomes and errors
//
// Authentication outcomes (bad password, blocked account, unknown token) are
// reported as a [Status] inside the result value. A non-nil error means the
// request was malformed ([ErrInvalidRequest]) or a backend failed.
package trustcore
