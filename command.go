package shardcast

import "github.com/gordian-engine/shardcast/scunit"

// Command is an instruction sent to the [Engine]
// through the channel returned by [*Engine.Commands].
//
// Reply channels on commands should be buffered with capacity 1.
// The engine never blocks on a reply;
// if the reply channel is full or nil, the reply is discarded.
type Command interface {
	isCommand()
}

// RegisterChannelPeers installs or replaces the peer set of a channel,
// building a new topology for it.
// Reconstruction tasks already running for the channel
// keep the topology they started with.
//
// A duplicate peer ID is reported as a [*sctopo.PeerSetError].
type RegisterChannelPeers struct {
	Channel scunit.ChannelID

	// The engine copies the peer set; the caller may reuse the slice.
	Peers []scunit.Peer

	Resp chan error
}

// UnregisterChannel removes a channel and stops
// every reconstruction task belonging to it.
//
// An unregistered channel is reported as a [*sctopo.PeerSetError].
type UnregisterChannel struct {
	Channel scunit.ChannelID

	Resp chan error
}

// Broadcast publishes Payload on Channel.
// The payload length must be a multiple of the configured data shard count.
type Broadcast struct {
	Channel scunit.ChannelID
	Payload []byte

	Resp chan BroadcastResult
}

// BroadcastResult is the reply to a [Broadcast] command.
type BroadcastResult struct {
	// Set when Err is nil.
	Root scunit.Root

	// Either [ErrUnknownChannel] or a [*EncodingFailedError].
	Err error
}

// HandleIncomingShard delivers a unit received directly from Peer.
// There is no reply; invalid units are dropped.
type HandleIncomingShard struct {
	Peer scunit.PeerID
	Unit scunit.Unit
}

// HandleConnected marks Peer as reachable for outbound sends.
type HandleConnected struct {
	Peer scunit.PeerID
}

// HandleDisconnected marks Peer as unreachable.
// In-flight reconstructions are unaffected,
// since their remaining shards may arrive through other relayers.
type HandleDisconnected struct {
	Peer scunit.PeerID
}

// QueryStats requests a snapshot of the engine's bookkeeping.
type QueryStats struct {
	Resp chan Stats
}

// Stats is the reply to [QueryStats].
type Stats struct {
	Channels       int
	ConnectedPeers int

	// Reconstruction tasks currently running.
	Tasks int

	// Running tasks holding at least one accepted shard.
	// Only these count against the per-channel pending limit.
	AcceptingTasks int

	// Entries in the finalized set, possibly including expired ones.
	Finalized int

	// Outputs queued but not yet read from [*Engine.Outputs].
	PendingOutputs int
}

func (RegisterChannelPeers) isCommand() {}
func (UnregisterChannel) isCommand()    {}
func (Broadcast) isCommand()            {}
func (HandleIncomingShard) isCommand()  {}
func (HandleConnected) isCommand()      {}
func (HandleDisconnected) isCommand()   {}
func (QueryStats) isCommand()           {}
