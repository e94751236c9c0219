package shardcasttest

import (
	"testing"

	"github.com/gordian-engine/shardcast/scerasure"
	"github.com/gordian-engine/shardcast/scmerkle"
	"github.com/gordian-engine/shardcast/scsig"
	"github.com/gordian-engine/shardcast/scunit"
	"github.com/stretchr/testify/require"
)

// UnitsConfig is the configuration for [BuildUnits].
type UnitsConfig struct {
	Channel   scunit.ChannelID
	Publisher scunit.PeerID
	Signer    scsig.Signer
	Hasher    scmerkle.Hasher

	DataShards, RecoveryShards int
}

// BuildUnits encodes payload into signed units the way a publishing engine would,
// for tests that drive a [shardcast.UnitValidator] or an engine directly.
func BuildUnits(t *testing.T, payload []byte, cfg UnitsConfig) (scunit.MessageKey, []scunit.Unit) {
	t.Helper()

	data, err := scerasure.Split(payload, cfg.DataShards)
	require.NoError(t, err)
	recovery, err := scerasure.GenerateRecoveryShards(data, cfg.RecoveryShards)
	require.NoError(t, err)

	shards := append(append([][]byte(nil), data...), recovery...)
	tree := scmerkle.BuildTree(shards, scmerkle.TreeConfig{
		Hasher: cfg.Hasher,
		Nonce:  []byte(cfg.Channel),
	})

	key := scunit.MessageKey{
		Channel:   cfg.Channel,
		Publisher: cfg.Publisher,
		Root:      tree.Root,
	}

	sig, err := cfg.Signer.Sign(scunit.SignContent(cfg.Channel, key.Root))
	require.NoError(t, err)

	units := make([]scunit.Unit, len(shards))
	for i, s := range shards {
		units[i] = scunit.Unit{
			Channel:   cfg.Channel,
			Publisher: cfg.Publisher,
			Root:      key.Root,
			Index:     uint16(i),
			Shard:     s,
			Proof:     scmerkle.AppendProof(nil, tree.Proofs[i]),
			Signature: sig,
		}
	}
	return key, units
}
