// Package scmerkle builds the Merkle tree over every shard of a message.
//
// The tree root is the message root that publishers sign,
// and each shard travels with the sibling hashes on its path to the root,
// so a receiver can check a single shard in isolation
// knowing only the root, the shard index, and the total shard count.
//
// The tree shape is fully determined by the leaf count:
// a range of n > 1 leaves is split so that the left subtree
// holds the largest power of two strictly less than n.
// Hashes commit to the leaf index or the covered leaf range,
// so a valid proof for one position never verifies at another.
package scmerkle
