package scmerkle

// Hasher is the user-defined interface for hashing leaves and nodes.
// [BuildTree] passes raw shard data to the Leaf method to create a leaf node,
// and it passes the outputs of earlier Leaf and Node calls to the Node method.
//
// To be allocation-efficient, the Hasher implementation
// must append its hash output to dst, instead of creating a new byte slice.
// Hasher must not retain references to the dst slice.
//
// Every hash must be exactly [HashSize] bytes,
// since the tree root doubles as the fixed-size message root.
//
// Furthermore, Hasher methods must be safe to call concurrently.
type Hasher interface {
	Leaf(in []byte, c LeafContext, dst []byte)
	Node(left, right []byte, c NodeContext, dst []byte)
}

// HashSize is the required output size of a [Hasher].
const HashSize = 32

// LeafContext is additional context for [Hasher.Leaf].
type LeafContext struct {
	// Fixed nonce for every leaf and node in one tree.
	// Shardcast uses the channel ID, so that a root
	// cannot be replayed on a different channel.
	Nonce []byte

	// The index of the leaf within the entire tree.
	// Encoded as a big-endian uint16.
	LeafIndex [2]byte
}

// NodeContext is additional context for [Hasher.Node].
type NodeContext struct {
	// Fixed nonce for every leaf and node in one tree.
	Nonce []byte

	// The range of leaf indices this node covers, inclusive.
	// Each is encoded as a big-endian uint16.
	FirstLeafIndex, LastLeafIndex [2]byte
}
