// Package auth verifies hpfeeds AUTH digests on the accepting side.
//
// The client only computes digests (protocol.AuthDigest); this package is
// the broker-side check used by in-process brokers in tests and tooling.
package auth

import (
	"crypto/subtle"
	"errors"

	"github.com/danmuck/hpfeeds/internal/protocol"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// Verifier checks an AUTH digest for ident against the nonce it was issued.
type Verifier interface {
	Verify(ident string, nonce, digest []byte) error
}

// StaticSecrets is a fixed ident -> secret table.
// It is intended only for development and tests.
type StaticSecrets map[string]string

func (s StaticSecrets) Verify(ident string, nonce, digest []byte) error {
	secret, ok := s[ident]
	if !ok {
		return ErrUnauthorized
	}
	return VerifyDigest(nonce, secret, digest)
}

// VerifyDigest compares digest with SHA1(nonce || secret) in constant time.
func VerifyDigest(nonce []byte, secret string, digest []byte) error {
	want := protocol.AuthDigest(nonce, secret)
	if subtle.ConstantTimeCompare(want[:], digest) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// FuncVerifier adapts a function into a Verifier.
type FuncVerifier func(ident string, nonce, digest []byte) error

func (f FuncVerifier) Verify(ident string, nonce, digest []byte) error {
	return f(ident, nonce, digest)
}
