// Package shardcast disseminates payloads among the members of a channel
// using erasure coding, so that no peer needs to send or receive
// the full payload from any single other peer.
//
// A publisher splits its payload into data shards,
// derives recovery shards with a systematic Reed-Solomon code,
// and commits to every shard with a Merkle root that it signs.
// Each shard travels as a [scunit.Unit] carrying its inclusion proof
// and the publisher's signature.
// Receivers authenticate every unit with a [UnitValidator]
// and reconstruct the payload once any D distinct shards are accepted.
//
// The [Engine] owns all channel state and exposes a command/output protocol:
// callers submit [Command] values and consume [Output] values,
// leaving network framing to an adapter such as the one in package scquic.
package shardcast
