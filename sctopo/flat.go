package sctopo

import (
	"slices"
	"strings"

	"github.com/gordian-engine/shardcast/scunit"
)

// Flat is a two-hop topology.
//
// For a given publisher, every other member is a relayer,
// ordered by peer ID.
// Shard i is designated to relayer i mod (number of relayers).
// The publisher sends each shard only to its designated relayer,
// and the designated relayer forwards it to every remaining member.
//
// A single missing relayer therefore costs each receiver
// at most ceil(N/(members-1)) shards,
// which the recovery shards are expected to absorb.
type Flat struct {
	ch   scunit.ChannelID
	self scunit.PeerID

	// Sorted by ID; always contains self.
	members []scunit.PeerID

	numShards uint16
}

// NewFlat is a [Factory] for the [Flat] topology.
// Self is treated as a member even if absent from peers.
func NewFlat(
	ch scunit.ChannelID,
	self scunit.PeerID,
	peers []scunit.Peer,
	numShards uint16,
) (Provider, error) {
	if err := ValidatePeers(ch, peers); err != nil {
		return nil, err
	}

	members := make([]scunit.PeerID, 0, len(peers)+1)
	hasSelf := false
	for _, p := range peers {
		members = append(members, p.ID)
		if p.ID == self {
			hasSelf = true
		}
	}
	if !hasSelf {
		members = append(members, self)
	}
	slices.SortFunc(members, func(a, b scunit.PeerID) int {
		return strings.Compare(string(a), string(b))
	})

	return &Flat{
		ch:        ch,
		self:      self,
		members:   members,
		numShards: numShards,
	}, nil
}

func (f *Flat) NumShards() uint16 {
	return f.numShards
}

// Members returns the sorted member list.
// The caller must not modify it.
func (f *Flat) Members() []scunit.PeerID {
	return f.members
}

func (f *Flat) indexOf(id scunit.PeerID) (int, bool) {
	return slices.BinarySearchFunc(f.members, id, func(a, b scunit.PeerID) int {
		return strings.Compare(string(a), string(b))
	})
}

// designated returns the relayer for shard index of a message from the
// member at publisher position pubIdx.
// ok is false when the publisher is the only member.
func (f *Flat) designated(pubIdx int, index uint16) (scunit.PeerID, bool) {
	nRelayers := len(f.members) - 1
	if nRelayers == 0 {
		return "", false
	}

	k := int(index) % nRelayers
	if k >= pubIdx {
		// Skip over the publisher's own slot.
		k++
	}
	return f.members[k], true
}

func (f *Flat) ValidateOrigin(sender, publisher scunit.PeerID, index uint16) error {
	pubIdx, ok := f.indexOf(publisher)
	if !ok {
		return &PeerSetError{Fault: UnknownPeerFault, Peer: publisher, Channel: f.ch}
	}
	if _, ok := f.indexOf(sender); !ok {
		return &PeerSetError{Fault: UnknownPeerFault, Peer: sender, Channel: f.ch}
	}

	relayer, ok := f.designated(pubIdx, index)
	if !ok {
		return &PeerSetError{Fault: UnauthorizedRelayFault, Peer: sender, Channel: f.ch}
	}

	if sender == publisher {
		// First hop: the publisher only sends shard index to its relayer.
		if relayer != f.self {
			return &PeerSetError{Fault: UnauthorizedRelayFault, Peer: sender, Channel: f.ch}
		}
		return nil
	}

	// Second hop: only the designated relayer may forward.
	if sender != relayer || f.self == publisher {
		return &PeerSetError{Fault: UnauthorizedRelayFault, Peer: sender, Channel: f.ch}
	}
	return nil
}

func (f *Flat) Recipients(publisher scunit.PeerID, index uint16) []scunit.PeerID {
	pubIdx, ok := f.indexOf(publisher)
	if !ok {
		return nil
	}

	relayer, ok := f.designated(pubIdx, index)
	if !ok {
		return nil
	}

	if f.self == publisher {
		return []scunit.PeerID{relayer}
	}

	if f.self != relayer {
		return nil
	}

	out := make([]scunit.PeerID, 0, len(f.members)-2)
	for _, m := range f.members {
		if m == publisher || m == f.self {
			continue
		}
		out = append(out, m)
	}
	return out
}
