package scsigtest

import (
	"crypto/ed25519"
	"crypto/sha256"
	"testing"

	"github.com/gordian-engine/shardcast/scsig"
)

// DeterministicEd25519Signer returns an Ed25519 signer
// whose key is derived from the test name and the given label,
// so that distinct labels in one test produce distinct keys.
func DeterministicEd25519Signer(t *testing.T, label string) scsig.Ed25519Signer {
	t.Helper()

	seed := sha256.Sum256([]byte(t.Name() + "\x00" + label))
	return scsig.NewEd25519Signer(ed25519.NewKeyFromSeed(seed[:]))
}
