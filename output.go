package shardcast

import "github.com/gordian-engine/shardcast/scunit"

// Output is an event emitted by the [Engine]
// on the channel returned by [*Engine.Outputs].
type Output interface {
	isOutput()
}

// MessageReady is emitted once a received message is fully reconstructed.
type MessageReady struct {
	Key     scunit.MessageKey
	Payload []byte
}

// SendToPeer asks the transport to deliver an encoded unit to Peer.
//
// Bytes may be shared between several SendToPeer outputs
// and must not be modified.
type SendToPeer struct {
	Peer  scunit.PeerID
	Bytes []byte

	// Identifies the unit inside Bytes, for logging and tracing.
	Key   scunit.MessageKey
	Index uint16
}

// ShardRejected reports a unit that failed validation.
// It is only emitted when [EngineConfig.ReportRejections] is set.
type ShardRejected struct {
	Peer  scunit.PeerID
	Key   scunit.MessageKey
	Index uint16

	// Typically a *ShardValidationError.
	Err error
}

func (MessageReady) isOutput()  {}
func (SendToPeer) isOutput()    {}
func (ShardRejected) isOutput() {}
