// Package session owns the lazily initialized connection between this process
// and the recruitment contract. A Session resolves the signing account, binds
// a signer to it and binds the contract handle exactly once; every later
// Initialize call is a no-op. Concurrent callers are serialized.
package session
