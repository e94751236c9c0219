// Package scblake3 provides a [scmerkle.Hasher] backed by BLAKE3.
//
// BLAKE3 is considerably faster than SHA-256 on large shards
// without hardware SHA extensions, so it is the default hasher
// for shardcast engines.
package scblake3

import (
	"github.com/gordian-engine/shardcast/scmerkle"
	"github.com/zeebo/blake3"
)

// Domain separation prefixes, so a leaf hash can never be confused
// with a node hash over the same bytes.
var (
	leafPrefix = []byte("shardcast.leaf")
	nodePrefix = []byte("shardcast.node")
)

// Hasher is a [scmerkle.Hasher] backed by BLAKE3 hashes.
type Hasher struct{}

func (Hasher) Leaf(in []byte, c scmerkle.LeafContext, dst []byte) {
	h := blake3.New()
	_, _ = h.Write(leafPrefix)
	_, _ = h.Write(c.Nonce)
	_, _ = h.Write(c.LeafIndex[:])
	_, _ = h.Write(in)
	h.Sum(dst)
}

func (Hasher) Node(left, right []byte, c scmerkle.NodeContext, dst []byte) {
	h := blake3.New()
	_, _ = h.Write(nodePrefix)
	_, _ = h.Write(c.Nonce)
	_, _ = h.Write(c.FirstLeafIndex[:])
	_, _ = h.Write(c.LastLeafIndex[:])
	_, _ = h.Write(left)
	_, _ = h.Write(right)
	h.Sum(dst)
}
