package shardcast

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/shardcast/internal/sctrace"
	"github.com/gordian-engine/shardcast/scerasure"
	"github.com/gordian-engine/shardcast/scmerkle"
	"github.com/gordian-engine/shardcast/sctopo"
	"github.com/gordian-engine/shardcast/scunit"
)

// inboundUnit is a unit on its way from the engine to a task's feed.
type inboundUnit struct {
	Sender scunit.PeerID
	Unit   scunit.Unit
}

// taskResultKind distinguishes the values a task sends to the engine.
type taskResultKind uint8

const (
	_ taskResultKind = iota

	// An accepted unit should be forwarded to To.
	taskRelay

	// A unit failed validation.
	taskRejected

	// The first shard was accepted.
	taskAccepted

	// A unit failed validation while no shard had been accepted.
	// The task has exited without draining its feed.
	taskIdle

	// The payload was reconstructed. The task has exited.
	taskCompleted

	// Enough shards were accepted but reconstruction failed.
	// The task has exited.
	taskFailed
)

// taskResult is sent from reconstruction tasks to the engine
// over a single shared channel.
type taskResult struct {
	Key  scunit.MessageKey
	Kind taskResultKind

	// Identifies the sending task,
	// since a key may be reused by a later task.
	Feed <-chan inboundUnit

	// For taskRelay and taskRejected.
	Index uint16

	// For taskRejected: the peer that sent the rejected unit.
	Peer scunit.PeerID

	// For taskRejected and taskFailed.
	Err error

	// For taskRelay.
	Relay []byte
	To    []scunit.PeerID

	// For taskCompleted.
	Payload []byte
}

// errRootMismatch is reported when a message reconstructs successfully
// but re-encoding it does not reproduce the signed root.
// That can only happen if the publisher distributed inconsistent recovery shards.
var errRootMismatch = errors.New("reconstructed payload does not match message root")

// reconstructionTask accumulates the shards of one message
// and reconstructs the payload once enough are accepted.
//
// Everything in the task is owned by its run goroutine.
type reconstructionTask struct {
	log    *slog.Logger
	tracer sctrace.Tracer

	v    *UnitValidator
	topo sctopo.Provider
	tree scmerkle.TreeConfig

	dataShards, recoveryShards int

	reportRejections bool

	// Closed by the engine only.
	feed <-chan inboundUnit

	results chan<- taskResult

	shards []scerasure.IndexedShard

	// Indices already forwarded to their relay recipients.
	relayed *bitset.BitSet
}

func (t *reconstructionTask) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case in, ok := <-t.feed:
			if !ok {
				t.log.Debug("Stopping due to closed feed", "accepted", len(t.shards))
				return
			}

			if done := t.handle(ctx, in); done {
				return
			}
		}
	}
}

// handle processes one inbound unit
// and reports whether the task is finished.
func (t *reconstructionTask) handle(ctx context.Context, in inboundUnit) bool {
	key := t.v.Key()
	idx := in.Unit.Index

	if err := t.v.ValidateShard(in.Sender, in.Unit); err != nil {
		t.log.Debug(
			"Dropping invalid shard",
			"sender", in.Sender, "idx", idx, "err", err,
		)

		if t.reportRejections {
			t.send(ctx, taskResult{
				Key:   key,
				Kind:  taskRejected,
				Index: idx,
				Peer:  in.Sender,
				Err:   err,
			})
		}

		// Nothing authentic has arrived for this key,
		// so give the slot back rather than wait out the TTL.
		if t.v.AcceptedCount() == 0 {
			t.send(ctx, taskResult{Key: key, Kind: taskIdle})
			return true
		}
		return false
	}

	if t.v.AcceptedCount() == 1 {
		t.send(ctx, taskResult{Key: key, Kind: taskAccepted})
	}

	t.shards = append(t.shards, scerasure.IndexedShard{
		Index: int(idx),
		Data:  in.Unit.Shard,
	})

	if to := t.topo.Recipients(key.Publisher, idx); len(to) > 0 {
		t.relay(ctx, in, to)
	}

	if len(t.shards) < t.dataShards {
		return false
	}

	payload, err := t.reconstruct(ctx)
	if err != nil {
		t.log.Warn(
			"Failed to reconstruct message",
			"accepted", len(t.shards), "err", err,
		)
		t.send(ctx, taskResult{Key: key, Kind: taskFailed, Err: err})
		return true
	}

	// Relays must reach the engine before completion,
	// since the engine ignores results from tasks it has finished.
	t.send(ctx, taskResult{Key: key, Kind: taskCompleted, Payload: payload})
	return true
}

// relay forwards an accepted unit.
// The unit is always re-encoded,
// so relayed bytes are canonical regardless of how the sender encoded them.
func (t *reconstructionTask) relay(ctx context.Context, in inboundUnit, to []scunit.PeerID) {
	raw, err := scunit.Marshal(in.Unit)
	if err != nil {
		t.log.Warn(
			"Failed to encode accepted unit for relay",
			"idx", in.Unit.Index, "err", err,
		)
		return
	}

	t.relayed.Set(uint(in.Unit.Index))
	t.send(ctx, taskResult{
		Key:   t.v.Key(),
		Kind:  taskRelay,
		Index: in.Unit.Index,
		Relay: raw,
		To:    to,
	})
}

// relayRemaining forwards the shards we are responsible for relaying
// but never received first-hand.
// Once the message is finalized, the engine drops further units for it,
// so this is the last chance to serve our relay recipients.
func (t *reconstructionTask) relayRemaining(
	ctx context.Context, shards [][]byte, tree scmerkle.Tree,
) {
	key := t.v.Key()
	sig := t.v.verifiedSignature()

	for i, shard := range shards {
		idx := uint16(i)
		if t.relayed.Test(uint(i)) {
			continue
		}

		to := t.topo.Recipients(key.Publisher, idx)
		if len(to) == 0 {
			continue
		}

		raw, err := scunit.Marshal(scunit.Unit{
			Channel:   key.Channel,
			Publisher: key.Publisher,
			Root:      key.Root,
			Index:     idx,
			Shard:     shard,
			Proof:     scmerkle.AppendProof(nil, tree.Proofs[i]),
			Signature: sig,
		})
		if err != nil {
			t.log.Warn("Failed to encode regenerated unit for relay", "idx", idx, "err", err)
			continue
		}

		t.relayed.Set(uint(i))
		t.send(ctx, taskResult{
			Key:   key,
			Kind:  taskRelay,
			Index: idx,
			Relay: raw,
			To:    to,
		})
	}
}

func (t *reconstructionTask) reconstruct(ctx context.Context) ([]byte, error) {
	_, span := t.tracer.Start(ctx, "shardcast.reconstruct", sctrace.WithAttributes(
		sctrace.MessageKeyAttrs(t.v.Key())...,
	))
	defer span.End()

	data, err := scerasure.Reconstruct(t.shards, t.dataShards, t.recoveryShards)
	if err != nil {
		sctrace.SpanError(span, err)
		return nil, err
	}

	// Every accepted shard was proven against the root,
	// but a publisher could have committed to recovery shards
	// that disagree with its data shards.
	// Re-encoding catches that, so that all receivers agree on the payload,
	// and it yields the shards we still owe our relay recipients.
	shards, tree, err := encodeShards(data, t.recoveryShards, t.tree)
	if err != nil {
		sctrace.SpanError(span, err)
		return nil, err
	}
	if scunit.Root(tree.Root) != t.v.Key().Root {
		sctrace.SpanError(span, errRootMismatch)
		return nil, errRootMismatch
	}

	t.relayRemaining(ctx, shards, tree)

	return scerasure.Combine(data), nil
}

// send delivers r to the engine, giving up if ctx is canceled.
func (t *reconstructionTask) send(ctx context.Context, r taskResult) {
	r.Feed = t.feed
	select {
	case <-ctx.Done():
	case t.results <- r:
	}
}
