// Package scmem connects several in-process [shardcast.Engine] values
// through an in-memory network.
//
// Every outbound unit is decoded from its wire form before delivery,
// so the network exercises the same path a real transport would.
// A [DropFunc] can discard units to simulate loss.
package scmem

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gordian-engine/shardcast"
	"github.com/gordian-engine/shardcast/scunit"
)

// DropFunc reports whether the unit sent from one peer to another
// should be discarded.
// It may be called concurrently.
type DropFunc func(from, to scunit.PeerID, u scunit.Unit) bool

// Delivery is a reconstructed message observed at one peer.
type Delivery struct {
	To      scunit.PeerID
	Key     scunit.MessageKey
	Payload []byte
}

// Rejection is a [shardcast.ShardRejected] output observed at one peer.
type Rejection struct {
	At scunit.PeerID
	shardcast.ShardRejected
}

// Config is the configuration for [New].
type Config struct {
	// Optional.
	Drop DropFunc

	// Capacity of the deliveries channel.
	// Once full, peers stop draining their engine outputs
	// until deliveries are read.
	DeliveryBuffer int
}

// Network routes engine outputs to other engines.
type Network struct {
	log  *slog.Logger
	drop DropFunc

	mu      sync.RWMutex
	engines map[scunit.PeerID]*shardcast.Engine

	deliveries chan Delivery
	rejections chan Rejection

	sent, dropped atomic.Int64

	wg sync.WaitGroup
}

func New(log *slog.Logger, cfg Config) *Network {
	return &Network{
		log:  log,
		drop: cfg.Drop,

		engines: make(map[scunit.PeerID]*shardcast.Engine),

		deliveries: make(chan Delivery, cfg.DeliveryBuffer),

		// Rejections are best effort.
		rejections: make(chan Rejection, 64),
	}
}

// Attach adds e to the network as id,
// and starts consuming its outputs until ctx is canceled.
// The caller must not read e's outputs directly afterward.
func (n *Network) Attach(ctx context.Context, id scunit.PeerID, e *shardcast.Engine) {
	n.mu.Lock()
	n.engines[id] = e
	n.mu.Unlock()

	n.wg.Add(1)
	go n.pump(ctx, id, e)
}

// Deliveries returns the channel of messages reconstructed by attached engines.
func (n *Network) Deliveries() <-chan Delivery {
	return n.deliveries
}

// Rejections returns the channel of rejected units,
// if the engines were configured to report them.
func (n *Network) Rejections() <-chan Rejection {
	return n.rejections
}

// Sent reports the number of units handed to a destination engine.
func (n *Network) Sent() int64 {
	return n.sent.Load()
}

// Dropped reports the number of units discarded by the drop function.
func (n *Network) Dropped() int64 {
	return n.dropped.Load()
}

// Wait blocks until every pump goroutine has stopped.
func (n *Network) Wait() {
	n.wg.Wait()
}

func (n *Network) pump(ctx context.Context, self scunit.PeerID, e *shardcast.Engine) {
	defer n.wg.Done()

	log := n.log.With("peer", self)

	for {
		select {
		case <-ctx.Done():
			return

		case o := <-e.Outputs():
			switch o := o.(type) {
			case shardcast.SendToPeer:
				n.forward(ctx, log, self, o)

			case shardcast.MessageReady:
				select {
				case <-ctx.Done():
					return
				case n.deliveries <- Delivery{To: self, Key: o.Key, Payload: o.Payload}:
				}

			case shardcast.ShardRejected:
				select {
				case n.rejections <- Rejection{At: self, ShardRejected: o}:
				default:
					log.Debug("Dropping rejection report", "err", o.Err)
				}

			default:
				log.Warn("Ignoring unknown output", "type", o)
			}
		}
	}
}

func (n *Network) forward(
	ctx context.Context, log *slog.Logger, from scunit.PeerID, o shardcast.SendToPeer,
) {
	u, err := scunit.Unmarshal(o.Bytes)
	if err != nil {
		log.Warn("Failed to decode outbound unit", "to", o.Peer, "err", err)
		return
	}

	if n.drop != nil && n.drop(from, o.Peer, u) {
		n.dropped.Add(1)
		return
	}

	n.mu.RLock()
	dst, ok := n.engines[o.Peer]
	n.mu.RUnlock()
	if !ok {
		log.Debug("Dropping unit for detached peer", "to", o.Peer)
		return
	}

	select {
	case <-ctx.Done():
	case dst.Commands() <- shardcast.HandleIncomingShard{Peer: from, Unit: u}:
		n.sent.Add(1)
	}
}
