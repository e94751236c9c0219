package scquic_test

import (
	"context"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/gordian-engine/shardcast"
	"github.com/gordian-engine/shardcast/internal/sctest"
	"github.com/gordian-engine/shardcast/scquic"
	"github.com/gordian-engine/shardcast/scquic/scquictest"
	"github.com/gordian-engine/shardcast/scsig"
	"github.com/gordian-engine/shardcast/scsig/scsigtest"
	"github.com/gordian-engine/shardcast/scunit"
	"github.com/stretchr/testify/require"
)

const testProtocolID = 0xc5

type adapterNode struct {
	ID      scunit.PeerID
	Engine  *shardcast.Engine
	Adapter *scquic.Adapter
}

func newAdapterNodes(
	t *testing.T, ctx context.Context, n int, cfg scquic.AdapterConfig,
) ([]adapterNode, []scunit.Peer) {
	t.Helper()

	log := sctest.NewLogger(t)

	nodes := make([]adapterNode, n)
	peers := make([]scunit.Peer, n)
	signers := make([]scsig.Ed25519Signer, n)
	for i := range n {
		id := scunit.PeerID(fmt.Sprintf("q%d", i))
		signers[i] = scsigtest.DeterministicEd25519Signer(t, string(id))
		peers[i] = scunit.Peer{ID: id, PubKey: signers[i].PubKey()}
	}

	cfg.ProtocolID = testProtocolID

	for i := range n {
		e, err := shardcast.NewEngine(ctx, log.With("idx", i), shardcast.EngineConfig{
			Self:     peers[i].ID,
			Signer:   signers[i],
			Verifier: scsig.Ed25519Verifier{},

			DataShards:     4,
			RecoveryShards: 2,
		})
		require.NoError(t, err)
		t.Cleanup(e.Wait)

		a := scquic.NewAdapter(ctx, log.With("idx", i, "sys", "adapter"), e, cfg)
		t.Cleanup(a.Wait)

		nodes[i] = adapterNode{ID: peers[i].ID, Engine: e, Adapter: a}
	}

	return nodes, peers
}

// connectAll joins every pair of nodes with a pipe connection.
func connectAll(t *testing.T, ctx context.Context, nodes []adapterNode) {
	t.Helper()

	for i := range nodes {
		for j := i + 1; j < len(nodes); j++ {
			ci, cj := scquictest.NewConnPair(string(nodes[i].ID), string(nodes[j].ID))
			require.NoError(t, nodes[i].Adapter.AddConn(ctx, nodes[j].ID, ci))
			require.NoError(t, nodes[j].Adapter.AddConn(ctx, nodes[i].ID, cj))
		}
	}
}

func TestAdapter_deliversBroadcast(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nodes, peers := newAdapterNodes(t, ctx, 3, scquic.AdapterConfig{})
	for _, n := range nodes {
		require.NoError(t, n.Engine.RegisterChannelPeers(ctx, "blocks", peers))
	}
	connectAll(t, ctx, nodes)

	payload := sctest.RandomDataForTest(t, 4*512)
	root, err := nodes[1].Engine.Broadcast(ctx, "blocks", payload)
	require.NoError(t, err)

	for _, i := range []int{0, 2} {
		m := sctest.ReceiveSoon(t, nodes[i].Adapter.Messages())
		require.Equal(t, root, m.Key.Root)
		require.Equal(t, nodes[1].ID, m.Key.Publisher)
		require.Equal(t, payload, m.Payload)
	}

	sctest.NotSending(t, nodes[1].Adapter.Messages())
}

func TestAdapter_connBookkeeping(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nodes, _ := newAdapterNodes(t, ctx, 1, scquic.AdapterConfig{})
	a := nodes[0].Adapter

	c, _ := scquictest.NewConnPair("local", "remote")
	require.NoError(t, a.AddConn(ctx, "remote", c))
	require.ErrorIs(t, a.AddConn(ctx, "remote", c), scquic.ErrDuplicateConn)

	s, err := nodes[0].Engine.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, s.ConnectedPeers)

	require.NoError(t, a.RemoveConn(ctx, "remote"))
	require.ErrorIs(t, a.RemoveConn(ctx, "remote"), scquic.ErrUnknownConn)

	s, err = nodes[0].Engine.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, s.ConnectedPeers)
}

func TestAdapter_refusesBadStreams(t *testing.T) {
	t.Parallel()

	frame := func(protocolID byte, declared uint32, body []byte) []byte {
		b := make([]byte, 5, 5+len(body))
		b[0] = protocolID
		binary.BigEndian.PutUint32(b[1:], declared)
		return append(b, body...)
	}

	for _, tc := range []struct {
		name string
		data []byte
		want uint64
	}{
		{
			name: "wrong protocol",
			data: frame(testProtocolID+1, 3, []byte("abc")),
			want: uint64(scquic.WrongProtocolCode),
		},
		{
			name: "frame too large",
			data: frame(testProtocolID, 4096, nil),
			want: uint64(scquic.FrameTooLargeCode),
		},
		{
			name: "malformed unit",
			data: frame(testProtocolID, 3, []byte{0xff, 0xff, 0xff}),
			want: uint64(scquic.MalformedUnitCode),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			nodes, _ := newAdapterNodes(t, ctx, 1, scquic.AdapterConfig{
				MaxUnitSize: 1024,
			})

			local, remote := scquictest.NewConnPair("local", "remote")
			require.NoError(t, nodes[0].Adapter.AddConn(ctx, "remote", local))

			s, err := remote.OpenUniStreamSync(ctx)
			require.NoError(t, err)

			// Writes may fail once the reader cancels.
			_, _ = s.Write(tc.data)
			_ = s.Close()

			code := sctest.ReceiveSoon(t, local.ReadCancels())
			require.Equal(t, tc.want, uint64(code))
		})
	}
}
