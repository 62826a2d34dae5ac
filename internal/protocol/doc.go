// Package protocol owns the hpfeeds wire contract and message parsing.
//
// Ownership boundary:
// - opcode and message types
// - inbound ERROR/INFO parsing
// - outbound AUTH/PUBLISH payload builders
// - the client error taxonomy
//
// Frame wrapping lives in protocol/frame; the connect/auth state machine
// lives in protocol/session.
package protocol
