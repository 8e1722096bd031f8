// Package device computes the device-binding fingerprint stored with each
// session.
//
// The fingerprint is a 64-bit xxhash of the client's User-Agent and network
// address. It is advisory anti-theft friction and NOT a cryptographic security
// boundary: both inputs are attacker-observable and attacker-controlled, the
// hash is not keyed, and collisions can be searched for offline. It makes a
// stolen token harder to replay from a different client; it does not make it
// impossible.
package device

import "github.com/cespare/xxhash/v2"

// Calculate returns the binding hash for the given client context. A zero
// byte separates the fields so ("ab", "c") and ("a", "bc") differ.
func Calculate(userAgent, ipAddress string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(userAgent)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(ipAddress)
	return d.Sum64()
}

// IsValid reports whether the client context still matches stored.
func IsValid(stored uint64, userAgent, ipAddress string) bool {
	return Calculate(userAgent, ipAddress) == stored
}
