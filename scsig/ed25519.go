package scsig

import (
	"crypto/ed25519"
	"fmt"
)

// Ed25519Signer signs with a raw Ed25519 private key.
// Its public key is the raw 32-byte Ed25519 public key.
type Ed25519Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

func NewEd25519Signer(priv ed25519.PrivateKey) Ed25519Signer {
	if len(priv) != ed25519.PrivateKeySize {
		panic(fmt.Errorf(
			"BUG: ed25519 private key must be %d bytes (got %d)",
			ed25519.PrivateKeySize, len(priv),
		))
	}
	return Ed25519Signer{
		priv: priv,
		pub:  priv.Public().(ed25519.PublicKey),
	}
}

func (s Ed25519Signer) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(s.priv, msg), nil
}

func (s Ed25519Signer) PubKey() []byte {
	return s.pub
}

// Ed25519Verifier verifies signatures from [Ed25519Signer].
type Ed25519Verifier struct{}

func (Ed25519Verifier) Verify(msg, sig, pubKey []byte) error {
	if len(pubKey) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid ed25519 public key length %d", len(pubKey))
	}
	if !ed25519.Verify(ed25519.PublicKey(pubKey), msg, sig) {
		return ErrInvalidSignature
	}
	return nil
}
