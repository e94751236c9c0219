package sctopo

import (
	"fmt"

	"github.com/gordian-engine/shardcast/scunit"
)

// PeerSetFault classifies a [*PeerSetError].
type PeerSetFault uint8

const (
	_ PeerSetFault = iota

	// The same peer ID was registered twice on one channel.
	DuplicatePeerFault

	// The channel is not registered.
	ChannelNotFoundFault

	// The peer is not a member of the channel.
	UnknownPeerFault

	// The peer is a member but is not allowed to send the shard.
	UnauthorizedRelayFault

	// A peer in the set had an empty ID.
	EmptyPeerFault
)

func (f PeerSetFault) String() string {
	switch f {
	case DuplicatePeerFault:
		return "duplicate peer"
	case ChannelNotFoundFault:
		return "channel not found"
	case UnknownPeerFault:
		return "unknown peer"
	case UnauthorizedRelayFault:
		return "unauthorized relay"
	case EmptyPeerFault:
		return "empty peer ID"
	default:
		return fmt.Sprintf("PeerSetFault(%d)", uint8(f))
	}
}

// PeerSetError describes a problem with a channel's membership,
// or with a peer's role in it.
type PeerSetError struct {
	Fault PeerSetFault

	// Peer is empty for faults that concern the whole channel.
	Peer scunit.PeerID

	Channel scunit.ChannelID
}

func (e *PeerSetError) Error() string {
	if e.Peer == "" {
		return fmt.Sprintf("channel %q: %s", e.Channel, e.Fault)
	}
	return fmt.Sprintf("channel %q: %s: %q", e.Channel, e.Fault, e.Peer)
}
