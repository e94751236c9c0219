package scerasure

import (
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/klauspost/reedsolomon"
)

// MaxTotalShards is the largest supported sum of data and recovery shards.
// Beyond this, the Reed-Solomon backend switches to a different field
// with extra alignment requirements on shard sizes.
const MaxTotalShards = 256

// IndexedShard is a shard paired with its position in the full shard set.
// Indices below the data shard count are data shards;
// the remaining indices are recovery shards.
type IndexedShard struct {
	Index int
	Data  []byte
}

// Split partitions payload into dataShards contiguous, equally sized chunks.
//
// The returned shards reference payload's memory directly,
// so payload must not be modified while the shards are in use.
// Each shard's capacity is clipped to its length,
// so appending to one shard never overwrites its neighbor.
func Split(payload []byte, dataShards int) ([][]byte, error) {
	if dataShards <= 0 {
		panic(fmt.Errorf("BUG: dataShards must be positive (got %d)", dataShards))
	}

	if len(payload) == 0 || len(payload)%dataShards != 0 {
		return nil, &DivisionError{
			PayloadSize: len(payload),
			DataShards:  dataShards,
		}
	}

	sz := len(payload) / dataShards
	shards := make([][]byte, dataShards)
	for i := range shards {
		start := i * sz
		end := start + sz
		shards[i] = payload[start:end:end]
	}

	return shards, nil
}

// GenerateRecoveryShards derives recoveryCount recovery shards
// from the given data shards.
//
// A recoveryCount of zero is valid and returns an empty result,
// which means the broadcast carries no redundancy.
func GenerateRecoveryShards(data [][]byte, recoveryCount int) ([][]byte, error) {
	if recoveryCount < 0 || len(data) == 0 || len(data)+recoveryCount > MaxTotalShards {
		return nil, &EncodeError{
			Reason: EncodeInvalidShardCount,
			Err: fmt.Errorf(
				"data=%d recovery=%d (total must be in [1, %d])",
				len(data), recoveryCount, MaxTotalShards,
			),
		}
	}

	sz := len(data[0])
	for i, d := range data {
		if len(d) == 0 || len(d) != sz {
			return nil, &EncodeError{
				Reason: EncodeShardSize,
				Err: fmt.Errorf(
					"data shard %d has size %d, expected %d", i, len(d), sz,
				),
			}
		}
	}

	if recoveryCount == 0 {
		return [][]byte{}, nil
	}

	enc, err := encoderFor(len(data), recoveryCount)
	if err != nil {
		return nil, &EncodeError{Reason: EncodeBackend, Err: err}
	}

	// One backing allocation for all the recovery shards,
	// as they share a lifecycle.
	mem := make([]byte, recoveryCount*sz)

	all := make([][]byte, len(data)+recoveryCount)
	copy(all, data)
	for i := range recoveryCount {
		start := i * sz
		all[len(data)+i] = mem[start : start+sz : start+sz]
	}

	if err := enc.Encode(all); err != nil {
		return nil, &EncodeError{Reason: EncodeBackend, Err: err}
	}

	return all[len(data):], nil
}

// Reconstruct returns the dataShards original data shards, in index order,
// restored from the available shards.
//
// If recoveryCount is zero, no correction is possible:
// every data shard must be present in available,
// and they are returned as given, ordered by index.
//
// Otherwise any mix of at least dataShards distinct data and recovery shards
// is sufficient. Duplicate indices in available count once.
// Missing data shards are freshly allocated;
// shards present in available are returned without copying.
func Reconstruct(
	available []IndexedShard, dataShards, recoveryCount int,
) ([][]byte, error) {
	total := dataShards + recoveryCount
	if dataShards <= 0 || recoveryCount < 0 || total > MaxTotalShards {
		return nil, &DecodeError{
			Reason: DecodeInvalidShardCount,
			Err: fmt.Errorf(
				"data=%d recovery=%d (total must be in [1, %d])",
				dataShards, recoveryCount, MaxTotalShards,
			),
		}
	}

	shards := make([][]byte, total)
	have := bitset.MustNew(uint(total))
	sz := -1
	for _, s := range available {
		if s.Index < 0 || s.Index >= total {
			return nil, &DecodeError{
				Reason: DecodeIndexOutOfRange,
				Index:  s.Index,
			}
		}

		if sz == -1 {
			sz = len(s.Data)
		}
		if len(s.Data) == 0 || len(s.Data) != sz {
			return nil, &DecodeError{
				Reason: DecodeShardSize,
				Index:  s.Index,
			}
		}

		shards[s.Index] = s.Data
		have.Set(uint(s.Index))
	}

	if recoveryCount == 0 {
		// Nothing to decode with, so every original must be here.
		if n := int(have.Count()); n < dataShards {
			return nil, &DecodeError{
				Reason: DecodeInsufficientShards,
				Have:   n,
				Need:   dataShards,
			}
		}
		return shards, nil
	}

	if n := int(have.Count()); n < dataShards {
		return nil, &DecodeError{
			Reason: DecodeInsufficientShards,
			Have:   n,
			Need:   dataShards,
		}
	}

	// Shortcut: all originals present, nothing to decode.
	if missingOriginals(have, dataShards) == 0 {
		return shards[:dataShards], nil
	}

	enc, err := encoderFor(dataShards, recoveryCount)
	if err != nil {
		return nil, &DecodeError{Reason: DecodeBackend, Err: err}
	}

	if err := enc.ReconstructData(shards); err != nil {
		return nil, &DecodeError{Reason: DecodeBackend, Err: err}
	}

	return shards[:dataShards], nil
}

// Combine concatenates the data shards in index order,
// producing the original payload.
func Combine(dataShards [][]byte) []byte {
	var sz int
	for _, s := range dataShards {
		sz += len(s)
	}

	out := make([]byte, 0, sz)
	for _, s := range dataShards {
		out = append(out, s...)
	}
	return out
}

func missingOriginals(have *bitset.BitSet, dataShards int) int {
	var n int
	for u, ok := have.NextClear(0); ok && int(u) < dataShards; u, ok = have.NextClear(u + 1) {
		n++
	}
	return n
}

type encoderKey struct {
	data, recovery int
}

var (
	encodersMu sync.Mutex
	encoders   = make(map[encoderKey]reedsolomon.Encoder)
)

// encoderFor returns a cached encoder for the given shard counts.
// Building an encoder involves matrix inversion work,
// and in practice a node only ever uses a handful of distinct configurations.
// Encoders are safe for concurrent use.
func encoderFor(data, recovery int) (reedsolomon.Encoder, error) {
	k := encoderKey{data: data, recovery: recovery}

	encodersMu.Lock()
	defer encodersMu.Unlock()

	if enc, ok := encoders[k]; ok {
		return enc, nil
	}

	enc, err := reedsolomon.New(data, recovery)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to build Reed-Solomon encoder for %d data and %d recovery shards: %w",
			data, recovery, err,
		)
	}
	encoders[k] = enc
	return enc, nil
}
