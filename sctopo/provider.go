// Package sctopo defines how shardcast decides who may relay which shard,
// and to whom a shard is sent.
//
// The engine builds one [Provider] per channel registration
// through a [Factory], and shares that provider, read-only,
// with every reconstruction task for the channel.
// Re-registering a channel builds a fresh provider;
// tasks already running keep the one they started with.
package sctopo

import "github.com/gordian-engine/shardcast/scunit"

// Provider answers routing questions for one channel's peer set.
//
// Implementations must be safe for concurrent use
// and must not change after construction.
type Provider interface {
	// ValidateOrigin reports whether a shard with the given index,
	// originally published by publisher,
	// may legitimately be received directly from sender.
	// A non-nil error should be a *PeerSetError.
	ValidateOrigin(sender, publisher scunit.PeerID, index uint16) error

	// NumShards is the total number of data and recovery shards
	// that make up each message on the channel.
	NumShards() uint16

	// Recipients lists the peers that the local peer
	// should send shard index of a message from publisher to.
	// It is used both when originating a broadcast
	// and when relaying an accepted shard.
	//
	// The caller must not modify the returned slice.
	Recipients(publisher scunit.PeerID, index uint16) []scunit.PeerID
}

// Factory creates a Provider for a channel.
//
// The peers slice has already passed [ValidatePeers].
// The factory must not retain peers;
// the caller may reuse it after the factory returns.
type Factory func(
	ch scunit.ChannelID,
	self scunit.PeerID,
	peers []scunit.Peer,
	numShards uint16,
) (Provider, error)

// ValidatePeers checks a channel's peer set for structural problems
// that no topology could accept.
func ValidatePeers(ch scunit.ChannelID, peers []scunit.Peer) error {
	seen := make(map[scunit.PeerID]struct{}, len(peers))
	for _, p := range peers {
		if p.ID == "" {
			return &PeerSetError{Fault: EmptyPeerFault, Channel: ch}
		}
		if _, ok := seen[p.ID]; ok {
			return &PeerSetError{Fault: DuplicatePeerFault, Peer: p.ID, Channel: ch}
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}
