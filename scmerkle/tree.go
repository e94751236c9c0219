package scmerkle

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
)

// MaxLeaves is the largest number of leaves a tree may have,
// limited by the 2-byte leaf index encoding.
const MaxLeaves = 1<<16 - 1

// TreeConfig is the configuration for [BuildTree] and [VerifyProof].
type TreeConfig struct {
	Hasher Hasher

	// Nonce is passed through to every [LeafContext] and [NodeContext].
	// Both sides must use the same nonce.
	Nonce []byte
}

// Tree is the result of [BuildTree].
//
// The proof byte slices reference a single backing allocation
// shared with the tree's internal nodes,
// so they must not be modified.
type Tree struct {
	Root [HashSize]byte

	// Proofs is aligned one-to-one with the leaf data passed to BuildTree.
	// Each proof lists sibling hashes from the leaf up to,
	// but not including, the root.
	Proofs [][][]byte
}

// BuildTree hashes every leaf and returns the root and the per-leaf proofs.
func BuildTree(leaves [][]byte, cfg TreeConfig) Tree {
	n := len(leaves)
	if n == 0 || n > MaxLeaves {
		panic(fmt.Errorf(
			"BUG: leaf count must be in [1, %d] (got %d)", MaxLeaves, n,
		))
	}

	b := treeBuilder{
		leaves: leaves,
		cfg:    cfg,

		// A tree where every non-leaf node has two children
		// has exactly 2n-1 nodes; back them all with one allocation.
		mem:    make([]byte, 0, (2*n-1)*HashSize),
		proofs: make([][][]byte, n),
	}

	depth := bits.Len(uint(n - 1))
	for i := range b.proofs {
		b.proofs[i] = make([][]byte, 0, depth)
	}

	root := b.hashRange(0, n)

	t := Tree{Proofs: b.proofs}
	copy(t.Root[:], root)
	return t
}

type treeBuilder struct {
	leaves [][]byte
	cfg    TreeConfig

	mem    []byte
	proofs [][][]byte
}

// alloc returns the next HashSize-length slot from the shared memory,
// with zero length and HashSize capacity, ready to be appended to.
func (b *treeBuilder) alloc() []byte {
	start := len(b.mem)
	b.mem = b.mem[:start+HashSize]
	return b.mem[start : start : start+HashSize]
}

func (b *treeBuilder) hashRange(lo, hi int) []byte {
	if hi-lo == 1 {
		dst := b.alloc()
		b.cfg.Hasher.Leaf(b.leaves[lo], leafContext(b.cfg.Nonce, lo), dst)
		return dst[:HashSize]
	}

	mid := lo + splitPoint(hi-lo)
	left := b.hashRange(lo, mid)
	right := b.hashRange(mid, hi)

	// Children were computed first, so their siblings are already
	// at the front of each proof; this level's sibling goes after.
	for i := lo; i < mid; i++ {
		b.proofs[i] = append(b.proofs[i], right)
	}
	for i := mid; i < hi; i++ {
		b.proofs[i] = append(b.proofs[i], left)
	}

	dst := b.alloc()
	b.cfg.Hasher.Node(left, right, nodeContext(b.cfg.Nonce, lo, hi-1), dst)
	return dst[:HashSize]
}

// ErrInvalidProof is returned from [VerifyProof]
// when a well-formed proof does not lead to the expected root.
var ErrInvalidProof = errors.New("merkle proof does not match root")

// ProofLength returns the number of sibling hashes in the proof
// for the leaf at idx in a tree of nLeaves leaves.
// The caller must ensure idx < nLeaves.
func ProofLength(idx, nLeaves int) int {
	var n int
	lo, hi := 0, nLeaves
	for hi-lo > 1 {
		mid := lo + splitPoint(hi-lo)
		if idx < mid {
			hi = mid
		} else {
			lo = mid
		}
		n++
	}
	return n
}

// VerifyProof reports whether leaf, at position idx in a tree of nLeaves leaves,
// is proven by proof to belong to the tree with the given root.
func VerifyProof(
	cfg TreeConfig,
	root [HashSize]byte,
	idx, nLeaves int,
	leaf []byte,
	proof [][]byte,
) error {
	if nLeaves <= 0 || nLeaves > MaxLeaves {
		return fmt.Errorf("invalid leaf count %d", nLeaves)
	}
	if idx < 0 || idx >= nLeaves {
		return fmt.Errorf("leaf index %d out of range for %d leaves", idx, nLeaves)
	}

	// Walk down from the root to find the ranges along the path,
	// then hash back up using the proof.
	type step struct {
		lo, hi int
		isLeft bool
	}
	var path [16]step
	steps := path[:0]

	lo, hi := 0, nLeaves
	for hi-lo > 1 {
		mid := lo + splitPoint(hi-lo)
		if idx < mid {
			steps = append(steps, step{lo: lo, hi: hi, isLeft: true})
			hi = mid
		} else {
			steps = append(steps, step{lo: lo, hi: hi, isLeft: false})
			lo = mid
		}
	}

	if len(proof) != len(steps) {
		return fmt.Errorf(
			"proof for index %d of %d leaves must have %d hashes (got %d)",
			idx, nLeaves, len(steps), len(proof),
		)
	}

	var a, b [HashSize]byte
	cur, scratch := a[:0], b[:0]
	cfg.Hasher.Leaf(leaf, leafContext(cfg.Nonce, idx), cur)
	cur = cur[:HashSize]

	for i, sibling := range proof {
		if len(sibling) != HashSize {
			return fmt.Errorf(
				"proof hash %d has length %d (want %d)", i, len(sibling), HashSize,
			)
		}

		s := steps[len(steps)-1-i]
		nc := nodeContext(cfg.Nonce, s.lo, s.hi-1)
		if s.isLeft {
			cfg.Hasher.Node(cur, sibling, nc, scratch[:0])
		} else {
			cfg.Hasher.Node(sibling, cur, nc, scratch[:0])
		}
		cur, scratch = scratch[:HashSize], cur
	}

	if !bytes.Equal(cur, root[:]) {
		return ErrInvalidProof
	}
	return nil
}

// AppendProof appends the concatenated proof hashes to dst,
// producing the wire form of a proof.
func AppendProof(dst []byte, proof [][]byte) []byte {
	for _, p := range proof {
		dst = append(dst, p...)
	}
	return dst
}

// SplitProof splits the wire form of a proof into individual hashes.
// The returned slices reference b.
func SplitProof(b []byte) ([][]byte, error) {
	if len(b)%HashSize != 0 {
		return nil, fmt.Errorf(
			"proof length %d is not a multiple of hash size %d", len(b), HashSize,
		)
	}

	out := make([][]byte, len(b)/HashSize)
	for i := range out {
		out[i] = b[i*HashSize : (i+1)*HashSize : (i+1)*HashSize]
	}
	return out, nil
}

// splitPoint returns the size of the left subtree for a range of n > 1 leaves:
// the largest power of two strictly less than n.
func splitPoint(n int) int {
	return 1 << (bits.Len(uint(n-1)) - 1)
}

func leafContext(nonce []byte, idx int) LeafContext {
	lc := LeafContext{Nonce: nonce}
	binary.BigEndian.PutUint16(lc.LeafIndex[:], uint16(idx))
	return lc
}

func nodeContext(nonce []byte, first, last int) NodeContext {
	nc := NodeContext{Nonce: nonce}
	binary.BigEndian.PutUint16(nc.FirstLeafIndex[:], uint16(first))
	binary.BigEndian.PutUint16(nc.LastLeafIndex[:], uint16(last))
	return nc
}
