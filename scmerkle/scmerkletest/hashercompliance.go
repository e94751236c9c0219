// Package scmerkletest contains a compliance suite
// for [scmerkle.Hasher] implementations.
package scmerkletest

import (
	"testing"

	"github.com/gordian-engine/shardcast/scmerkle"
	"github.com/stretchr/testify/require"
)

type HasherFactory func() scmerkle.Hasher

func TestHasherCompliance(t *testing.T, f HasherFactory) {
	t.Run("leaf is deterministic", func(t *testing.T) {
		t.Parallel()

		h := f()

		lc := scmerkle.LeafContext{
			Nonce:     []byte("deterministic_nonce"),
			LeafIndex: [2]byte{1, 2},
		}

		dst01 := make([]byte, scmerkle.HashSize)
		h.Leaf([]byte("deterministic_data"), lc, dst01[:0])

		dst02 := make([]byte, scmerkle.HashSize)
		h.Leaf([]byte("deterministic_data"), lc, dst02[:0])

		require.Equal(t, dst01, dst02)
		require.NotEqual(t, make([]byte, scmerkle.HashSize), dst01)
	})

	t.Run("leaf respects position", func(t *testing.T) {
		t.Parallel()

		h := f()

		lc := scmerkle.LeafContext{
			Nonce:     []byte("nonce"),
			LeafIndex: [2]byte{0, 1},
		}
		dst01 := make([]byte, scmerkle.HashSize)
		h.Leaf([]byte("hello"), lc, dst01[:0])

		lc.LeafIndex = [2]byte{1, 0}
		dst02 := make([]byte, scmerkle.HashSize)
		h.Leaf([]byte("hello"), lc, dst02[:0])

		require.NotEqual(t, dst01, dst02)
	})

	t.Run("leaf respects nonce", func(t *testing.T) {
		t.Parallel()

		h := f()

		lc := scmerkle.LeafContext{
			Nonce:     []byte("nonce_1"),
			LeafIndex: [2]byte{2, 4},
		}
		dst01 := make([]byte, scmerkle.HashSize)
		h.Leaf([]byte("fixed_data"), lc, dst01[:0])

		lc.Nonce = []byte("nonce_2")
		dst02 := make([]byte, scmerkle.HashSize)
		h.Leaf([]byte("fixed_data"), lc, dst02[:0])

		require.NotEqual(t, dst01, dst02)
	})

	t.Run("node respects range", func(t *testing.T) {
		t.Parallel()

		h := f()

		left := make([]byte, scmerkle.HashSize)
		right := make([]byte, scmerkle.HashSize)
		right[0] = 1

		nc := scmerkle.NodeContext{
			Nonce:          []byte("nonce"),
			FirstLeafIndex: [2]byte{0, 0},
			LastLeafIndex:  [2]byte{0, 3},
		}
		dst01 := make([]byte, scmerkle.HashSize)
		h.Node(left, right, nc, dst01[:0])

		nc.LastLeafIndex = [2]byte{0, 4}
		dst02 := make([]byte, scmerkle.HashSize)
		h.Node(left, right, nc, dst02[:0])

		require.NotEqual(t, dst01, dst02)
	})

	t.Run("node is order sensitive", func(t *testing.T) {
		t.Parallel()

		h := f()

		a := make([]byte, scmerkle.HashSize)
		b := make([]byte, scmerkle.HashSize)
		b[0] = 1

		var nc scmerkle.NodeContext
		dst01 := make([]byte, scmerkle.HashSize)
		h.Node(a, b, nc, dst01[:0])

		dst02 := make([]byte, scmerkle.HashSize)
		h.Node(b, a, nc, dst02[:0])

		require.NotEqual(t, dst01, dst02)
	})

	t.Run("appends exactly one hash", func(t *testing.T) {
		t.Parallel()

		h := f()

		// A canary after the destination region must stay untouched.
		buf := make([]byte, scmerkle.HashSize+1)
		buf[scmerkle.HashSize] = 0xAA
		h.Leaf([]byte("x"), scmerkle.LeafContext{}, buf[:0])
		require.Equal(t, byte(0xAA), buf[scmerkle.HashSize])
	})
}
