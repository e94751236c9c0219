package scunit

import (
	"encoding/hex"
	"fmt"
)

// ChannelID identifies a logical broadcast topic, such as "votes".
type ChannelID string

// PeerID identifies a participant in one or more channels.
type PeerID string

// RootSize is the fixed size of a [Root].
const RootSize = 32

// Root is the content identifier of a whole payload:
// the Merkle root over every data and recovery shard.
type Root [RootSize]byte

func (r Root) String() string {
	return hex.EncodeToString(r[:])
}

// Short returns the first four bytes of r in hex,
// which is plenty for log correlation.
func (r Root) Short() string {
	return hex.EncodeToString(r[:4])
}

// Peer is a channel member along with the key it signs broadcasts with.
//
// PubKey is opaque to shardcast and is interpreted
// by the configured signature verifier.
type Peer struct {
	ID     PeerID
	PubKey []byte
}

// MessageKey identifies one broadcast: who sent what, on which channel.
// It is comparable, so it is used directly as a map key.
type MessageKey struct {
	Channel   ChannelID
	Publisher PeerID
	Root      Root
}

func (k MessageKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Channel, k.Publisher, k.Root.Short())
}

// Unit is one shard of a broadcast, as sent between peers.
//
// Byte slice fields may reference a larger receive buffer;
// a Unit must be treated as immutable once received.
type Unit struct {
	Channel   ChannelID
	Publisher PeerID
	Root      Root

	// Position of the shard among all data and recovery shards.
	Index uint16

	// Raw shard bytes.
	Shard []byte

	// Concatenated Merkle proof hashes for Shard at Index.
	Proof []byte

	// Publisher's signature over [SignContent] for Channel and Root.
	Signature []byte
}

// Key returns the message key that u belongs to.
func (u Unit) Key() MessageKey {
	return MessageKey{
		Channel:   u.Channel,
		Publisher: u.Publisher,
		Root:      u.Root,
	}
}

// signDomain prefixes every signed message
// so that signatures made for shardcast are useless elsewhere.
const signDomain = "shardcast/v1\x00"

// SignContent returns the bytes a publisher signs for a message root.
// The signature covers the channel as well as the root,
// so a signed root cannot be replayed onto a different channel.
//
// The signature is identical for every shard of one message,
// which is what allows receivers to verify it only once.
func SignContent(ch ChannelID, root Root) []byte {
	out := make([]byte, 0, len(signDomain)+len(ch)+1+RootSize)
	out = append(out, signDomain...)
	out = append(out, ch...)
	out = append(out, 0)
	out = append(out, root[:]...)
	return out
}
