package scsig

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	cryptorand "crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
)

// TLSCertSigner signs with the private key of a TLS certificate,
// so that a peer's transport identity and broadcast identity
// can share a single key.
//
// Its public key is the PKIX DER encoding of the leaf's public key,
// to be verified with [PKIXVerifier].
type TLSCertSigner struct {
	cert tls.Certificate
	pub  []byte
}

// NewTLSCertSigner returns a signer for cert.
// cert.Leaf must be set.
func NewTLSCertSigner(cert tls.Certificate) (TLSCertSigner, error) {
	if cert.Leaf == nil {
		return TLSCertSigner{}, errors.New(
			"certificate missing a leaf; use x509.ParseCertificate to set it",
		)
	}

	switch cert.PrivateKey.(type) {
	case *rsa.PrivateKey, ed25519.PrivateKey, *ecdsa.PrivateKey:
		// Okay.
	default:
		return TLSCertSigner{}, fmt.Errorf(
			"unsupported TLS private key type %T", cert.PrivateKey,
		)
	}

	pub, err := x509.MarshalPKIXPublicKey(cert.Leaf.PublicKey)
	if err != nil {
		return TLSCertSigner{}, fmt.Errorf("failed to encode leaf public key: %w", err)
	}

	return TLSCertSigner{cert: cert, pub: pub}, nil
}

func (s TLSCertSigner) Sign(msg []byte) ([]byte, error) {
	switch k := s.cert.PrivateKey.(type) {
	case *rsa.PrivateKey:
		hash := digest(crypto.SHA256, msg)
		return rsa.SignPKCS1v15(cryptorand.Reader, k, crypto.SHA256, hash)

	case ed25519.PrivateKey:
		return ed25519.Sign(k, msg), nil

	case *ecdsa.PrivateKey:
		hasher, err := curveHasher(k.Curve)
		if err != nil {
			return nil, err
		}
		return ecdsa.SignASN1(cryptorand.Reader, k, digest(hasher, msg))

	default:
		panic(fmt.Errorf("BUG: unrecognized TLS private key type %T", k))
	}
}

func (s TLSCertSigner) PubKey() []byte {
	return s.pub
}

// PKIXVerifier verifies signatures against PKIX DER encoded public keys,
// as produced by [TLSCertSigner] and by [x509.MarshalPKIXPublicKey].
// RSA, ECDSA, and Ed25519 keys are supported.
type PKIXVerifier struct{}

func (PKIXVerifier) Verify(msg, sig, pubKey []byte) error {
	pk, err := x509.ParsePKIXPublicKey(pubKey)
	if err != nil {
		return fmt.Errorf("failed to parse public key: %w", err)
	}

	switch k := pk.(type) {
	case *rsa.PublicKey:
		if err := rsa.VerifyPKCS1v15(k, crypto.SHA256, digest(crypto.SHA256, msg), sig); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
		}
		return nil

	case ed25519.PublicKey:
		if !ed25519.Verify(k, msg, sig) {
			return ErrInvalidSignature
		}
		return nil

	case *ecdsa.PublicKey:
		hasher, err := curveHasher(k.Curve)
		if err != nil {
			return err
		}
		if !ecdsa.VerifyASN1(k, digest(hasher, msg), sig) {
			return ErrInvalidSignature
		}
		return nil

	default:
		return fmt.Errorf("unsupported public key type %T", k)
	}
}

func digest(h crypto.Hash, msg []byte) []byte {
	hh := h.New()
	_, _ = hh.Write(msg)
	return hh.Sum(nil)
}

func curveHasher(curve elliptic.Curve) (crypto.Hash, error) {
	switch curve {
	case elliptic.P224(), elliptic.P256():
		return crypto.SHA256, nil
	case elliptic.P384():
		return crypto.SHA384, nil
	case elliptic.P521():
		return crypto.SHA512, nil
	default:
		return 0, fmt.Errorf("unsupported ECDSA curve %v", curve.Params().Name)
	}
}
