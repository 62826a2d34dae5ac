// Package session owns the broker connect/authenticate handshake.
//
// Ownership boundary:
// - handshake state machine (INFO challenge, AUTH response)
// - session timeouts and frame limits
//
// The protocol defines no AUTH acknowledgment. A rejected identity is only
// observable later, as a failed write or a closed socket; this package
// performs no reads once the handshake reaches Ready.
package session
