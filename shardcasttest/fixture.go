// Package shardcasttest contains fixtures for testing [shardcast.Engine]
// and code built on top of it.
package shardcasttest

import (
	"context"
	"fmt"
	"testing"

	"github.com/gordian-engine/shardcast"
	"github.com/gordian-engine/shardcast/internal/sctest"
	"github.com/gordian-engine/shardcast/scmem"
	"github.com/gordian-engine/shardcast/scsig"
	"github.com/gordian-engine/shardcast/scsig/scsigtest"
	"github.com/gordian-engine/shardcast/scunit"
	"github.com/stretchr/testify/require"
)

// Fixture is a set of engines connected through an [scmem.Network].
//
// Create an instance with [NewFixture].
type Fixture struct {
	IDs   []scunit.PeerID
	Peers []scunit.Peer

	Signers   []scsig.Ed25519Signer
	Verifiers []*scsigtest.CountingVerifier

	Engines []*shardcast.Engine

	Network *scmem.Network
}

// FixtureConfig is the configuration for [NewFixture].
type FixtureConfig struct {
	Nodes int

	DataShards, RecoveryShards int

	// Optional network loss.
	Drop scmem.DropFunc

	// Optional hook to adjust each engine's configuration
	// before it is created.
	ModifyConfig func(idx int, cfg *shardcast.EngineConfig)
}

// NewFixture returns engines with deterministic Ed25519 keys,
// named "p00", "p01", and so on.
//
// The engines are attached to the network but share no channels
// and consider no peers connected;
// use [*Fixture.RegisterChannel] and [*Fixture.ConnectAll].
//
// The engines and network stop when ctx is canceled,
// and the fixture waits for them during test cleanup.
func NewFixture(t *testing.T, ctx context.Context, cfg FixtureConfig) *Fixture {
	t.Helper()

	log := sctest.NewLogger(t)

	f := &Fixture{
		IDs:   make([]scunit.PeerID, cfg.Nodes),
		Peers: make([]scunit.Peer, cfg.Nodes),

		Signers:   make([]scsig.Ed25519Signer, cfg.Nodes),
		Verifiers: make([]*scsigtest.CountingVerifier, cfg.Nodes),

		Engines: make([]*shardcast.Engine, cfg.Nodes),

		Network: scmem.New(log.With("sys", "net"), scmem.Config{
			Drop:           cfg.Drop,
			DeliveryBuffer: cfg.Nodes * 4,
		}),
	}
	t.Cleanup(f.Network.Wait)

	for i := range cfg.Nodes {
		id := scunit.PeerID(fmt.Sprintf("p%02d", i))
		s := scsigtest.DeterministicEd25519Signer(t, string(id))

		f.IDs[i] = id
		f.Peers[i] = scunit.Peer{ID: id, PubKey: s.PubKey()}
		f.Signers[i] = s
		f.Verifiers[i] = scsigtest.NewCountingVerifier(scsig.Ed25519Verifier{})
	}

	for i := range cfg.Nodes {
		ecfg := shardcast.EngineConfig{
			Self:     f.IDs[i],
			Signer:   f.Signers[i],
			Verifier: f.Verifiers[i],

			DataShards:     cfg.DataShards,
			RecoveryShards: cfg.RecoveryShards,
		}
		if cfg.ModifyConfig != nil {
			cfg.ModifyConfig(i, &ecfg)
		}

		e, err := shardcast.NewEngine(ctx, log.With("idx", i), ecfg)
		require.NoError(t, err)
		t.Cleanup(e.Wait)

		f.Engines[i] = e
		f.Network.Attach(ctx, f.IDs[i], e)
	}

	return f
}

// RegisterChannel registers ch with every fixture peer on every engine.
func (f *Fixture) RegisterChannel(t *testing.T, ctx context.Context, ch scunit.ChannelID) {
	t.Helper()

	for _, e := range f.Engines {
		require.NoError(t, e.RegisterChannelPeers(ctx, ch, f.Peers))
	}
}

// ConnectAll marks every pair of engines as connected.
func (f *Fixture) ConnectAll(t *testing.T, ctx context.Context) {
	t.Helper()

	for i, e := range f.Engines {
		for j, id := range f.IDs {
			if i == j {
				continue
			}
			require.NoError(t, e.HandleConnected(ctx, id))
		}
	}
}

// ReceiveDeliveries waits for n deliveries and returns them keyed by recipient.
// It fails the test if a recipient receives more than one.
func (f *Fixture) ReceiveDeliveries(t *testing.T, n int) map[scunit.PeerID]scmem.Delivery {
	t.Helper()

	out := make(map[scunit.PeerID]scmem.Delivery, n)
	for range n {
		d := sctest.ReceiveSoon(t, f.Network.Deliveries())
		_, dup := out[d.To]
		require.False(t, dup, "peer %s received more than one delivery", d.To)
		out[d.To] = d
	}
	return out
}
