package shardcast_test

import (
	"testing"

	"github.com/gordian-engine/shardcast"
	"github.com/gordian-engine/shardcast/internal/sctest"
	"github.com/gordian-engine/shardcast/scerasure"
	"github.com/gordian-engine/shardcast/scmerkle/scblake3"
	"github.com/gordian-engine/shardcast/scsig"
	"github.com/gordian-engine/shardcast/scsig/scsigtest"
	"github.com/gordian-engine/shardcast/sctopo"
	"github.com/gordian-engine/shardcast/sctopo/sctopotest"
	"github.com/gordian-engine/shardcast/scunit"
	"github.com/gordian-engine/shardcast/shardcasttest"
	"github.com/stretchr/testify/require"
)

type validatorFixture struct {
	Key      scunit.MessageKey
	Units    []scunit.Unit
	Signer   scsig.Ed25519Signer
	Verifier *scsigtest.CountingVerifier
	Payload  []byte
}

// newValidatorFixture builds the units of a 4+2 message of 32 bytes.
func newValidatorFixture(t *testing.T) validatorFixture {
	t.Helper()

	signer := scsigtest.DeterministicEd25519Signer(t, "pub")
	payload := sctest.RandomDataForTest(t, 32)

	key, units := shardcasttest.BuildUnits(t, payload, shardcasttest.UnitsConfig{
		Channel:   "votes",
		Publisher: "pub",
		Signer:    signer,
		Hasher:    scblake3.Hasher{},

		DataShards:     4,
		RecoveryShards: 2,
	})

	return validatorFixture{
		Key:      key,
		Units:    units,
		Signer:   signer,
		Verifier: scsigtest.NewCountingVerifier(scsig.Ed25519Verifier{}),
		Payload:  payload,
	}
}

func (f validatorFixture) NewValidator(topo sctopo.Provider) *shardcast.UnitValidator {
	return shardcast.NewUnitValidator(
		f.Key, f.Signer.PubKey(), topo, f.Verifier, scblake3.Hasher{},
	)
}

var permissive6 = sctopotest.Permissive{Shards: 6}

func TestUnitValidator_acceptAll(t *testing.T) {
	t.Parallel()

	f := newValidatorFixture(t)
	v := f.NewValidator(permissive6)

	for i, u := range f.Units {
		require.NoError(t, v.ValidateShard("relay", u))
		require.True(t, v.IsAccepted(uint16(i)))
	}
	require.Equal(t, 6, v.AcceptedCount())
}

func TestUnitValidator_duplicate(t *testing.T) {
	t.Parallel()

	f := newValidatorFixture(t)
	v := f.NewValidator(permissive6)

	require.NoError(t, v.ValidateShard("a", f.Units[2]))
	require.Equal(t, 1, v.AcceptedCount())

	err := v.ValidateShard("b", f.Units[2])
	require.ErrorIs(t, err, shardcast.ErrDuplicateShard)
	require.Equal(t, 1, v.AcceptedCount())

	var sve *shardcast.ShardValidationError
	require.ErrorAs(t, err, &sve)
	require.Equal(t, uint16(2), sve.Index)
}

func TestUnitValidator_signatureCache(t *testing.T) {
	t.Parallel()

	t.Run("identical signatures verified once", func(t *testing.T) {
		t.Parallel()

		f := newValidatorFixture(t)
		v := f.NewValidator(permissive6)

		for _, u := range f.Units {
			require.NoError(t, v.ValidateShard("a", u))
		}
		require.Equal(t, int64(1), f.Verifier.Calls())
	})

	t.Run("different signature bytes verified again", func(t *testing.T) {
		t.Parallel()

		f := newValidatorFixture(t)
		v := f.NewValidator(permissive6)

		require.NoError(t, v.ValidateShard("a", f.Units[0]))
		require.Equal(t, int64(1), f.Verifier.Calls())

		forged := f.Units[1]
		forged.Signature = append([]byte(nil), forged.Signature...)
		forged.Signature[0] ^= 0xff

		err := v.ValidateShard("a", forged)
		require.ErrorIs(t, err, shardcast.ErrSignatureVerificationFailed)
		require.ErrorIs(t, err, scsig.ErrInvalidSignature)
		require.Equal(t, int64(2), f.Verifier.Calls())
		require.False(t, v.IsAccepted(1))

		// The genuine signature is still cached.
		require.NoError(t, v.ValidateShard("a", f.Units[1]))
		require.Equal(t, int64(2), f.Verifier.Calls())
	})

	t.Run("failed verification is not cached", func(t *testing.T) {
		t.Parallel()

		f := newValidatorFixture(t)
		v := f.NewValidator(permissive6)

		forged := f.Units[0]
		forged.Signature = make([]byte, len(forged.Signature))

		require.ErrorIs(t, v.ValidateShard("a", forged), shardcast.ErrSignatureVerificationFailed)
		require.ErrorIs(t, v.ValidateShard("a", forged), shardcast.ErrSignatureVerificationFailed)
		require.Equal(t, int64(2), f.Verifier.Calls())
		require.Zero(t, v.AcceptedCount())
	})
}

func TestUnitValidator_originInvalid(t *testing.T) {
	t.Parallel()

	f := newValidatorFixture(t)
	v := f.NewValidator(sctopotest.Denying{Channel: "votes", Shards: 6})

	err := v.ValidateShard("mallory", f.Units[0])
	require.ErrorIs(t, err, shardcast.ErrOriginInvalid)

	var pse *sctopo.PeerSetError
	require.ErrorAs(t, err, &pse)
	require.Equal(t, sctopo.UnauthorizedRelayFault, pse.Fault)
	require.Equal(t, scunit.PeerID("mallory"), pse.Peer)

	// Origin is checked before any cryptography.
	require.Zero(t, f.Verifier.Calls())
	require.Zero(t, v.AcceptedCount())
}

func TestUnitValidator_proofInvalid(t *testing.T) {
	t.Parallel()

	t.Run("tampered shard", func(t *testing.T) {
		t.Parallel()

		f := newValidatorFixture(t)
		v := f.NewValidator(permissive6)

		u := f.Units[3]
		u.Shard = append([]byte(nil), u.Shard...)
		u.Shard[0]++

		require.ErrorIs(t, v.ValidateShard("a", u), shardcast.ErrProofInvalid)
		require.Zero(t, f.Verifier.Calls())
	})

	t.Run("wrong index", func(t *testing.T) {
		t.Parallel()

		f := newValidatorFixture(t)
		v := f.NewValidator(permissive6)

		u := f.Units[3]
		u.Index = 4

		require.ErrorIs(t, v.ValidateShard("a", u), shardcast.ErrProofInvalid)
		require.False(t, v.IsAccepted(4))
	})

	t.Run("index out of range", func(t *testing.T) {
		t.Parallel()

		f := newValidatorFixture(t)
		v := f.NewValidator(permissive6)

		u := f.Units[0]
		u.Index = 1000

		require.ErrorIs(t, v.ValidateShard("a", u), shardcast.ErrProofInvalid)
	})

	t.Run("malformed proof bytes", func(t *testing.T) {
		t.Parallel()

		f := newValidatorFixture(t)
		v := f.NewValidator(permissive6)

		u := f.Units[0]
		u.Proof = u.Proof[:len(u.Proof)-1]

		require.ErrorIs(t, v.ValidateShard("a", u), shardcast.ErrProofInvalid)
	})

	t.Run("wrong shard count", func(t *testing.T) {
		t.Parallel()

		f := newValidatorFixture(t)
		v := f.NewValidator(sctopotest.Permissive{Shards: 7})

		require.ErrorIs(t, v.ValidateShard("a", f.Units[0]), shardcast.ErrProofInvalid)
	})
}

func TestUnitValidator_wrongPublisherKey(t *testing.T) {
	t.Parallel()

	f := newValidatorFixture(t)
	other := scsigtest.DeterministicEd25519Signer(t, "other")
	v := shardcast.NewUnitValidator(
		f.Key, other.PubKey(), permissive6, f.Verifier, scblake3.Hasher{},
	)

	require.ErrorIs(t, v.ValidateShard("a", f.Units[0]), shardcast.ErrSignatureVerificationFailed)
}

func TestUnitValidator_keyMismatch(t *testing.T) {
	t.Parallel()

	f := newValidatorFixture(t)
	v := f.NewValidator(permissive6)

	for _, mutate := range []func(*scunit.Unit){
		func(u *scunit.Unit) { u.Channel = "proposals" },
		func(u *scunit.Unit) { u.Publisher = "someone-else" },
		func(u *scunit.Unit) { u.Root[0]++ },
	} {
		u := f.Units[0]
		mutate(&u)

		err := v.ValidateShard("a", u)
		require.ErrorIs(t, err, shardcast.ErrUnitKeyMismatch)
	}

	// Mismatches are recoverable; the genuine unit is still accepted.
	require.NoError(t, v.ValidateShard("a", f.Units[0]))
}

func TestUnitValidator_reconstructFromAnyFour(t *testing.T) {
	t.Parallel()

	f := newValidatorFixture(t)

	// Drop shards 0 and 3, which forces decoding of two originals.
	v := f.NewValidator(permissive6)
	var accepted []scerasure.IndexedShard
	for _, i := range []int{1, 2, 4, 5} {
		require.NoError(t, v.ValidateShard("a", f.Units[i]))
		accepted = append(accepted, scerasure.IndexedShard{Index: i, Data: f.Units[i].Shard})
	}

	data, err := scerasure.Reconstruct(accepted, 4, 2)
	require.NoError(t, err)
	require.Equal(t, f.Payload, scerasure.Combine(data))
}
