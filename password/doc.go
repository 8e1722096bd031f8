// Package password implements peppered Argon2id password hashing and
// verification.
//
// # Model
//
// A credential stores the raw Argon2id output and its salt side by side. The
// pepper is a process-wide secret supplied through [Config] and is never
// persisted: the password is first keyed with HMAC-SHA256(pepper) and the
// result is fed to Argon2id. A leaked credential table alone is therefore not
// enough to mount an offline dictionary attack.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (length,
// reuse history, lockout) is enforced by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Import any other trust-core package.
//   - Log plaintext passwords, peppers or hash parameters at runtime.
package password
