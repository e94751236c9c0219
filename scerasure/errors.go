package scerasure

import "fmt"

// DivisionError is returned from [Split]
// when the payload cannot be divided into equally sized data shards.
// Callers are responsible for padding the payload beforehand.
type DivisionError struct {
	PayloadSize int
	DataShards  int
}

func (e *DivisionError) Error() string {
	if e.PayloadSize == 0 {
		return fmt.Sprintf("cannot split empty payload into %d data shards", e.DataShards)
	}
	return fmt.Sprintf(
		"payload size %d is not divisible by data shard count %d",
		e.PayloadSize, e.DataShards,
	)
}

// EncodeFailure classifies an [EncodeError].
type EncodeFailure uint8

const (
	_ EncodeFailure = iota

	// The data or recovery shard count was out of the supported range.
	EncodeInvalidShardCount

	// The data shards were not all the same non-zero size.
	EncodeShardSize

	// The underlying Reed-Solomon encoder reported an error.
	EncodeBackend
)

func (f EncodeFailure) String() string {
	switch f {
	case EncodeInvalidShardCount:
		return "invalid shard count"
	case EncodeShardSize:
		return "inconsistent shard size"
	case EncodeBackend:
		return "encoder failure"
	default:
		return fmt.Sprintf("EncodeFailure(%d)", uint8(f))
	}
}

// EncodeError is returned from [GenerateRecoveryShards].
type EncodeError struct {
	Reason EncodeFailure

	// Err is the underlying cause, if any.
	Err error
}

func (e *EncodeError) Error() string {
	if e.Err == nil {
		return "failed to generate recovery shards: " + e.Reason.String()
	}
	return fmt.Sprintf("failed to generate recovery shards: %s: %v", e.Reason, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// DecodeFailure classifies a [DecodeError].
type DecodeFailure uint8

const (
	_ DecodeFailure = iota

	// Fewer distinct shards than data shards were available.
	DecodeInsufficientShards

	// A shard index was not in [0, data+recovery).
	DecodeIndexOutOfRange

	// The available shards were not all the same non-zero size.
	DecodeShardSize

	// The data or recovery shard count was out of the supported range.
	DecodeInvalidShardCount

	// The underlying Reed-Solomon decoder reported an error.
	DecodeBackend
)

func (f DecodeFailure) String() string {
	switch f {
	case DecodeInsufficientShards:
		return "insufficient shards"
	case DecodeIndexOutOfRange:
		return "shard index out of range"
	case DecodeShardSize:
		return "inconsistent shard size"
	case DecodeInvalidShardCount:
		return "invalid shard count"
	case DecodeBackend:
		return "decoder failure"
	default:
		return fmt.Sprintf("DecodeFailure(%d)", uint8(f))
	}
}

// DecodeError is returned from [Reconstruct]
// when the original data shards cannot be restored.
// Reconstruct never returns partial or unverified output
// alongside a DecodeError.
type DecodeError struct {
	Reason DecodeFailure

	// Have and Need are set for DecodeInsufficientShards.
	Have, Need int

	// Index is set for DecodeIndexOutOfRange and DecodeShardSize.
	Index int

	// Err is the underlying cause, if any.
	Err error
}

func (e *DecodeError) Error() string {
	switch e.Reason {
	case DecodeInsufficientShards:
		return fmt.Sprintf(
			"cannot reconstruct: have %d distinct shards, need at least %d",
			e.Have, e.Need,
		)
	case DecodeIndexOutOfRange, DecodeShardSize:
		return fmt.Sprintf("cannot reconstruct: %s (index %d)", e.Reason, e.Index)
	}

	if e.Err == nil {
		return "cannot reconstruct: " + e.Reason.String()
	}
	return fmt.Sprintf("cannot reconstruct: %s: %v", e.Reason, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
