// Package scsig defines the signing and verification interfaces
// used to authenticate a broadcast's message root,
// with implementations for raw Ed25519 keys and for TLS certificate keys.
package scsig

import (
	"errors"
)

// Signer signs message roots on behalf of the local peer.
type Signer interface {
	// Sign returns a signature over msg.
	Sign(msg []byte) ([]byte, error)

	// PubKey returns the encoded public key that other peers
	// will pass to their [Verifier] for signatures made by this signer.
	PubKey() []byte
}

// Verifier checks signatures made by a remote peer's [Signer].
//
// Implementations must be safe for concurrent use,
// as one verifier is shared by every reconstruction task.
type Verifier interface {
	// Verify returns nil if sig is a valid signature over msg by pubKey.
	Verify(msg, sig, pubKey []byte) error
}

// ErrInvalidSignature is returned, possibly wrapped,
// when a well-formed signature does not match.
var ErrInvalidSignature = errors.New("invalid signature")
