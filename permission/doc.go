// Package permission provides the 64-bit permission bitmask, a name-to-bit
// registry, and role composition helpers used by trust-core authorization.
//
// # Model
//
// A role carries a single [Mask]: the union of the capability bits granted to
// it. An endpoint requires a subset, and the check is one AND plus one
// comparison ([Mask.Contains]). Bit positions are assigned by
// [Registry.Register] and are stable for the lifetime of the process.
//
// # Architecture boundaries
//
// This package is a pure in-memory data structure with no I/O. It provides the
// fixed-width codec used by the session binary encoder.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import trustcore, session, or gateway.
//   - Resize masks after registry construction.
package permission
