// Package scsigtest contains signature helpers for tests.
package scsigtest

import (
	"sync/atomic"

	"github.com/gordian-engine/shardcast/scsig"
)

// CountingVerifier wraps another [scsig.Verifier]
// and counts how many times Verify is called.
type CountingVerifier struct {
	Inner scsig.Verifier

	calls atomic.Int64
}

func NewCountingVerifier(inner scsig.Verifier) *CountingVerifier {
	return &CountingVerifier{Inner: inner}
}

func (v *CountingVerifier) Verify(msg, sig, pubKey []byte) error {
	v.calls.Add(1)
	return v.Inner.Verify(msg, sig, pubKey)
}

// Calls reports the number of Verify calls so far.
func (v *CountingVerifier) Calls() int64 {
	return v.calls.Load()
}
