// Package scunit defines the identifiers and the shard unit
// that shardcast peers exchange,
// along with the deterministic CBOR wire encoding of a unit.
//
// It is a leaf package so that the topology, signature, and transport
// packages can share these types without depending on the engine.
package scunit
