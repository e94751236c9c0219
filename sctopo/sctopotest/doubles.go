// Package sctopotest contains [sctopo.Provider] implementations
// that are useful in tests.
package sctopotest

import (
	"github.com/gordian-engine/shardcast/sctopo"
	"github.com/gordian-engine/shardcast/scunit"
)

// Permissive accepts every origin
// and sends every shard to the peers listed in To.
type Permissive struct {
	Shards uint16
	To     []scunit.PeerID
}

func (Permissive) ValidateOrigin(scunit.PeerID, scunit.PeerID, uint16) error {
	return nil
}

func (p Permissive) NumShards() uint16 {
	return p.Shards
}

func (p Permissive) Recipients(scunit.PeerID, uint16) []scunit.PeerID {
	return p.To
}

// PermissiveFactory is an [sctopo.Factory] producing a [Permissive]
// provider that sends to every peer other than self.
func PermissiveFactory(
	_ scunit.ChannelID,
	self scunit.PeerID,
	peers []scunit.Peer,
	numShards uint16,
) (sctopo.Provider, error) {
	to := make([]scunit.PeerID, 0, len(peers))
	for _, p := range peers {
		if p.ID != self {
			to = append(to, p.ID)
		}
	}
	return Permissive{Shards: numShards, To: to}, nil
}

// Denying rejects every origin as an unauthorized relay
// and never routes anything.
type Denying struct {
	Channel scunit.ChannelID
	Shards  uint16
}

func (d Denying) ValidateOrigin(sender, _ scunit.PeerID, _ uint16) error {
	return &sctopo.PeerSetError{
		Fault:   sctopo.UnauthorizedRelayFault,
		Peer:    sender,
		Channel: d.Channel,
	}
}

func (d Denying) NumShards() uint16 {
	return d.Shards
}

func (Denying) Recipients(scunit.PeerID, uint16) []scunit.PeerID {
	return nil
}
