package scunit_test

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/gordian-engine/shardcast/internal/sctest"
	"github.com/gordian-engine/shardcast/scunit"
	"github.com/stretchr/testify/require"
)

func sampleUnit(t *testing.T) scunit.Unit {
	t.Helper()

	data := sctest.RandomDataForTest(t, scunit.RootSize+64+96+64)

	u := scunit.Unit{
		Channel:   "proposals",
		Publisher: "val-3",
		Index:     5,
		Shard:     data[scunit.RootSize : scunit.RootSize+64],
		Proof:     data[scunit.RootSize+64 : scunit.RootSize+64+96],
		Signature: data[scunit.RootSize+64+96:],
	}
	copy(u.Root[:], data)
	return u
}

func TestMarshal_roundTrip(t *testing.T) {
	t.Parallel()

	u := sampleUnit(t)

	b, err := scunit.Marshal(u)
	require.NoError(t, err)

	got, err := scunit.Unmarshal(b)
	require.NoError(t, err)
	require.Equal(t, u, got)
	require.Equal(t, u.Key(), got.Key())
}

func TestMarshal_deterministic(t *testing.T) {
	t.Parallel()

	u := sampleUnit(t)

	a, err := scunit.Marshal(u)
	require.NoError(t, err)
	b, err := scunit.Marshal(u)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestUnmarshal_rejectsMalformed(t *testing.T) {
	t.Parallel()

	t.Run("garbage", func(t *testing.T) {
		t.Parallel()

		_, err := scunit.Unmarshal([]byte{0xff, 0x00, 0x13})
		require.Error(t, err)
	})

	t.Run("empty shard", func(t *testing.T) {
		t.Parallel()

		u := sampleUnit(t)
		u.Shard = nil
		b, err := scunit.Marshal(u)
		require.NoError(t, err)

		_, err = scunit.Unmarshal(b)
		require.Error(t, err)
	})

	t.Run("missing publisher", func(t *testing.T) {
		t.Parallel()

		u := sampleUnit(t)
		u.Publisher = ""
		b, err := scunit.Marshal(u)
		require.NoError(t, err)

		_, err = scunit.Unmarshal(b)
		require.Error(t, err)
	})

	t.Run("unknown field", func(t *testing.T) {
		t.Parallel()

		u := sampleUnit(t)
		b, err := cbor.Marshal(map[int]any{
			1: string(u.Channel),
			2: string(u.Publisher),
			3: u.Root[:],
			4: u.Index,
			5: u.Shard,
			6: u.Proof,
			7: u.Signature,
			8: "extra",
		})
		require.NoError(t, err)

		_, err = scunit.Unmarshal(b)
		require.Error(t, err)

		// The same map without the extra key decodes.
		b, err = cbor.Marshal(map[int]any{
			1: string(u.Channel),
			2: string(u.Publisher),
			3: u.Root[:],
			4: u.Index,
			5: u.Shard,
			6: u.Proof,
			7: u.Signature,
		})
		require.NoError(t, err)

		got, err := scunit.Unmarshal(b)
		require.NoError(t, err)
		require.Equal(t, u, got)
	})

	t.Run("truncated", func(t *testing.T) {
		t.Parallel()

		b, err := scunit.Marshal(sampleUnit(t))
		require.NoError(t, err)

		_, err = scunit.Unmarshal(b[:len(b)-10])
		require.Error(t, err)
	})
}

func TestSignContent_bindsChannelAndRoot(t *testing.T) {
	t.Parallel()

	var r1, r2 scunit.Root
	r2[0] = 1

	require.NotEqual(t, scunit.SignContent("a", r1), scunit.SignContent("b", r1))
	require.NotEqual(t, scunit.SignContent("a", r1), scunit.SignContent("a", r2))
	require.Equal(t, scunit.SignContent("a", r1), scunit.SignContent("a", r1))
}
