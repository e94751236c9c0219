package shardcast

import (
	"context"
	"fmt"

	"github.com/gordian-engine/shardcast/internal/sctrace"
	"github.com/gordian-engine/shardcast/scerasure"
	"github.com/gordian-engine/shardcast/scmerkle"
	"github.com/gordian-engine/shardcast/sctopo"
	"github.com/gordian-engine/shardcast/scunit"
)

// preparedBroadcast is the result of encoding a payload off the main loop.
type preparedBroadcast struct {
	Key scunit.MessageKey

	// Wire encoded units, indexed by shard index.
	Units [][]byte

	// The channel's topology at the time of the Broadcast command.
	Topo sctopo.Provider

	Err error

	Resp chan BroadcastResult
}

// prepareBroadcast runs on its own goroutine,
// turning a payload into signed, encoded units.
func (e *Engine) prepareBroadcast(
	ctx context.Context,
	ch scunit.ChannelID,
	payload []byte,
	topo sctopo.Provider,
	resp chan BroadcastResult,
) {
	defer e.wg.Done()

	_, span := e.tracer.Start(ctx, "shardcast.Broadcast", sctrace.WithAttributes(
		sctrace.PayloadSizeAttr(len(payload)),
	))
	defer span.End()

	key, units, err := encodeUnits(ch, payload, &e.cfg)
	if err != nil {
		sctrace.SpanError(span, err)
	} else {
		span.SetAttributes(sctrace.MessageKeyAttrs(key)...)
	}

	pb := preparedBroadcast{
		Key:   key,
		Units: units,
		Topo:  topo,
		Err:   err,
		Resp:  resp,
	}

	select {
	case <-ctx.Done():
	case e.prepared <- pb:
	}
}

// encodeUnits splits payload into data and recovery shards,
// commits to them with a Merkle root, signs the root,
// and returns one encoded unit per shard.
func encodeUnits(
	ch scunit.ChannelID,
	payload []byte,
	cfg *EngineConfig,
) (scunit.MessageKey, [][]byte, error) {
	data, err := scerasure.Split(payload, cfg.DataShards)
	if err != nil {
		return scunit.MessageKey{}, nil, &EncodingFailedError{Err: err}
	}

	recovery, err := scerasure.GenerateRecoveryShards(data, cfg.RecoveryShards)
	if err != nil {
		return scunit.MessageKey{}, nil, &EncodingFailedError{Err: err}
	}

	shards := make([][]byte, 0, len(data)+len(recovery))
	shards = append(shards, data...)
	shards = append(shards, recovery...)

	tree := scmerkle.BuildTree(shards, merkleConfig(ch, cfg.Hasher))
	key := scunit.MessageKey{
		Channel:   ch,
		Publisher: cfg.Self,
		Root:      tree.Root,
	}

	sig, err := cfg.Signer.Sign(scunit.SignContent(ch, key.Root))
	if err != nil {
		return scunit.MessageKey{}, nil, &EncodingFailedError{
			Err: fmt.Errorf("failed to sign message root: %w", err),
		}
	}

	units := make([][]byte, len(shards))
	for i, s := range shards {
		b, err := scunit.Marshal(scunit.Unit{
			Channel:   ch,
			Publisher: cfg.Self,
			Root:      key.Root,
			Index:     uint16(i),
			Shard:     s,
			Proof:     scmerkle.AppendProof(nil, tree.Proofs[i]),
			Signature: sig,
		})
		if err != nil {
			return scunit.MessageKey{}, nil, &EncodingFailedError{Err: err}
		}
		units[i] = b
	}

	return key, units, nil
}

// encodeShards regenerates every shard of a reconstructed message
// along with its Merkle tree.
func encodeShards(
	data [][]byte, recoveryShards int, tc scmerkle.TreeConfig,
) ([][]byte, scmerkle.Tree, error) {
	recovery, err := scerasure.GenerateRecoveryShards(data, recoveryShards)
	if err != nil {
		return nil, scmerkle.Tree{}, err
	}

	shards := make([][]byte, 0, len(data)+len(recovery))
	shards = append(shards, data...)
	shards = append(shards, recovery...)

	return shards, scmerkle.BuildTree(shards, tc), nil
}
