// Package session provides the Redis-backed session store and the compact
// binary session encoding used on every authenticated request.
//
// # Key layout
//
//	<prefix>:s:<token>   s2-compressed encoded Record, TTL = session class
//	<prefix>:u:<userID>  token of the identity's live session, same TTL
//
// The identity index is written with create-if-absent semantics so at most one
// live token exists per identity. Operations touching both keys are not
// transactional; the only failure mode is a stale index entry, and every read
// path re-validates it against the session key.
//
// RefreshToken relies on RENAMENX, so the session keys must live on a single
// Redis node (or a cluster slot routed by a proxy).
//
// # Architecture boundaries
//
// This package owns token issuance, persistence and expiry. It does not verify
// credentials, evaluate permissions or check device binding; those belong to
// the engine.
package session
