package shardcast

import (
	"errors"
	"fmt"
)

// ErrUnknownChannel is returned from [*Engine.Broadcast]
// when the channel has not been registered.
var ErrUnknownChannel = errors.New("unknown channel")

// ErrEngineStopped is returned when submitting a command
// to an engine whose main loop has already exited.
var ErrEngineStopped = errors.New("engine stopped")

// EncodingFailedError is returned from [*Engine.Broadcast]
// when the payload could not be turned into shard units.
// Err is typically a [*scerasure.DivisionError] or [*scerasure.EncodeError].
type EncodingFailedError struct {
	Err error
}

func (e *EncodingFailedError) Error() string {
	return "encoding failed: " + e.Err.Error()
}

func (e *EncodingFailedError) Unwrap() error {
	return e.Err
}

// Sentinel kinds of [*ShardValidationError].
var (
	// The unit's channel, publisher, or root
	// does not match the validator it was given to.
	// This indicates misrouting, not necessarily a malicious peer.
	ErrUnitKeyMismatch = errors.New("unit does not belong to this message")

	// A shard with the same index was already accepted.
	ErrDuplicateShard = errors.New("duplicate shard")

	// The topology does not allow the sender to deliver this shard.
	ErrOriginInvalid = errors.New("invalid shard origin")

	// The inclusion proof does not lead to the message root.
	ErrProofInvalid = errors.New("invalid shard proof")

	// The publisher's signature over the root did not verify.
	ErrSignatureVerificationFailed = errors.New("signature verification failed")

	// The shard's length differs from previously accepted shards.
	ErrShardSizeMismatch = errors.New("shard size mismatch")
)

// ShardValidationError is returned from [*UnitValidator.ValidateShard].
//
// It matches its Kind with [errors.Is],
// and its Cause, if any, with [errors.Is] or [errors.As];
// for example an origin failure can be inspected
// as a [*sctopo.PeerSetError].
type ShardValidationError struct {
	Index uint16

	// One of the Err* sentinel values in this package.
	Kind error

	// Underlying error, possibly nil.
	Cause error
}

func (e *ShardValidationError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("shard %d: %v", e.Index, e.Kind)
	}
	return fmt.Sprintf("shard %d: %v: %v", e.Index, e.Kind, e.Cause)
}

func (e *ShardValidationError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}
