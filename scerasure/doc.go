// Package scerasure is the erasure codec for shardcast.
//
// A payload is split into a fixed number of equally sized data shards
// ([Split]), and recovery shards are derived from them
// with a systematic Reed-Solomon code ([GenerateRecoveryShards]).
// Because the code is systematic, the data shards are the original bytes:
// when no shards are lost, [Combine] is a plain concatenation
// and no decoding work happens at all.
//
// When shards are lost, [Reconstruct] restores the missing data shards
// from any combination of at least as many distinct shards
// as there are data shards.
package scerasure
