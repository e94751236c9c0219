// Package scsha256 provides a [scmerkle.Hasher] backed by SHA-256.
package scsha256

import (
	"crypto/sha256"

	"github.com/gordian-engine/shardcast/scmerkle"
)

// Hasher is a [scmerkle.Hasher] backed by SHA256 hashes.
type Hasher struct{}

func (Hasher) Leaf(in []byte, c scmerkle.LeafContext, dst []byte) {
	h := sha256.New()
	_, _ = h.Write(c.Nonce)
	_, _ = h.Write(c.LeafIndex[:])
	_, _ = h.Write([]byte("L."))
	_, _ = h.Write(in)
	h.Sum(dst)
}

func (Hasher) Node(left, right []byte, c scmerkle.NodeContext, dst []byte) {
	h := sha256.New()
	_, _ = h.Write(c.Nonce)
	_, _ = h.Write(c.FirstLeafIndex[:])
	_, _ = h.Write([]byte("Hl."))
	_, _ = h.Write(left)
	_, _ = h.Write(c.LastLeafIndex[:])
	_, _ = h.Write([]byte("Hr."))
	_, _ = h.Write(right)
	h.Sum(dst)
}
