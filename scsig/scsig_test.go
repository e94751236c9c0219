package scsig_test

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	cryptorand "crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/gordian-engine/shardcast/scsig"
	"github.com/gordian-engine/shardcast/scsig/scsigtest"
	"github.com/gordian-engine/shardcast/scunit"
	"github.com/stretchr/testify/require"
)

func TestEd25519_signVerify(t *testing.T) {
	t.Parallel()

	s := scsigtest.DeterministicEd25519Signer(t, "a")
	msg := scunit.SignContent("ch", scunit.Root{1, 2, 3})

	sig, err := s.Sign(msg)
	require.NoError(t, err)

	var v scsig.Ed25519Verifier
	require.NoError(t, v.Verify(msg, sig, s.PubKey()))

	other := scsigtest.DeterministicEd25519Signer(t, "b")
	require.ErrorIs(t, v.Verify(msg, sig, other.PubKey()), scsig.ErrInvalidSignature)

	msg[len(msg)-1]++
	require.ErrorIs(t, v.Verify(msg, sig, s.PubKey()), scsig.ErrInvalidSignature)

	require.Error(t, v.Verify(msg, sig, []byte("short")))
}

// selfSignedCert returns a TLS certificate with a parsed leaf
// for the given private key.
func selfSignedCert(t *testing.T, priv crypto.Signer) tls.Certificate {
	t.Helper()

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "shardcast test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(cryptorand.Reader, tmpl, tmpl, priv.Public(), priv)
	require.NoError(t, err)

	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
		Leaf:        leaf,
	}
}

func TestTLSCertSigner_PKIXVerifier(t *testing.T) {
	t.Parallel()

	_, edPriv, err := ed25519.GenerateKey(cryptorand.Reader)
	require.NoError(t, err)
	ecPriv, err := ecdsa.GenerateKey(elliptic.P256(), cryptorand.Reader)
	require.NoError(t, err)
	rsaPriv, err := rsa.GenerateKey(cryptorand.Reader, 2048)
	require.NoError(t, err)

	for _, tc := range []struct {
		name string
		priv crypto.Signer
	}{
		{name: "ed25519", priv: edPriv},
		{name: "ecdsa", priv: ecPriv},
		{name: "rsa", priv: rsaPriv},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s, err := scsig.NewTLSCertSigner(selfSignedCert(t, tc.priv))
			require.NoError(t, err)

			msg := scunit.SignContent("proposals", scunit.Root{9})
			sig, err := s.Sign(msg)
			require.NoError(t, err)

			var v scsig.PKIXVerifier
			require.NoError(t, v.Verify(msg, sig, s.PubKey()))

			bad := append([]byte(nil), msg...)
			bad[0] ^= 0xff
			require.ErrorIs(t, v.Verify(bad, sig, s.PubKey()), scsig.ErrInvalidSignature)
		})
	}
}

func TestTLSCertSigner_requiresLeaf(t *testing.T) {
	t.Parallel()

	_, priv, err := ed25519.GenerateKey(cryptorand.Reader)
	require.NoError(t, err)

	cert := selfSignedCert(t, priv)
	cert.Leaf = nil

	_, err = scsig.NewTLSCertSigner(cert)
	require.Error(t, err)
}

func TestPKIXVerifier_malformedKey(t *testing.T) {
	t.Parallel()

	var v scsig.PKIXVerifier
	err := v.Verify([]byte("msg"), []byte("sig"), []byte("not a key"))
	require.Error(t, err)
	require.NotErrorIs(t, err, scsig.ErrInvalidSignature)
}

func TestCountingVerifier(t *testing.T) {
	t.Parallel()

	s := scsigtest.DeterministicEd25519Signer(t, "a")
	msg := []byte("hello")
	sig, err := s.Sign(msg)
	require.NoError(t, err)

	v := scsigtest.NewCountingVerifier(scsig.Ed25519Verifier{})
	require.NoError(t, v.Verify(msg, sig, s.PubKey()))
	require.Error(t, v.Verify([]byte("other"), sig, s.PubKey()))
	require.Equal(t, int64(2), v.Calls())
}
