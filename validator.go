package shardcast

import (
	"bytes"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/shardcast/scmerkle"
	"github.com/gordian-engine/shardcast/scsig"
	"github.com/gordian-engine/shardcast/sctopo"
	"github.com/gordian-engine/shardcast/scunit"
)

// UnitValidator authenticates and deduplicates the units of one message.
//
// A UnitValidator is not safe for concurrent use;
// each reconstruction task owns exactly one.
type UnitValidator struct {
	key    scunit.MessageKey
	pubKey []byte

	topo     sctopo.Provider
	verifier scsig.Verifier
	tree     scmerkle.TreeConfig

	// The bytes the publisher signed, derived from key.
	signContent []byte

	// Signature bytes that have already passed verification.
	// Every shard of a message carries the same signature,
	// so in the common case only the first unit pays for verification.
	verifiedSig []byte

	accepted *bitset.BitSet

	// Length of accepted shards; zero until the first acceptance.
	shardSize int
}

// NewUnitValidator returns a validator for the message identified by key,
// published by the owner of pubKey.
//
// The Merkle nonce is the channel ID,
// matching what [*Engine.Broadcast] uses when building the tree.
func NewUnitValidator(
	key scunit.MessageKey,
	pubKey []byte,
	topo sctopo.Provider,
	verifier scsig.Verifier,
	hasher scmerkle.Hasher,
) *UnitValidator {
	return &UnitValidator{
		key:    key,
		pubKey: pubKey,

		topo:     topo,
		verifier: verifier,
		tree:     merkleConfig(key.Channel, hasher),

		signContent: scunit.SignContent(key.Channel, key.Root),

		accepted: bitset.MustNew(uint(topo.NumShards())),
	}
}

func merkleConfig(ch scunit.ChannelID, hasher scmerkle.Hasher) scmerkle.TreeConfig {
	return scmerkle.TreeConfig{
		Hasher: hasher,
		Nonce:  []byte(ch),
	}
}

// ValidateShard checks u, received directly from sender,
// and records its index as accepted if every check passes.
//
// Checks run from cheapest to most expensive:
// message key, duplicate index, topology origin,
// inclusion proof, publisher signature, and finally shard size.
// Any returned error is a *ShardValidationError
// and leaves the validator unchanged.
func (v *UnitValidator) ValidateShard(sender scunit.PeerID, u scunit.Unit) error {
	if u.Key() != v.key {
		return &ShardValidationError{Index: u.Index, Kind: ErrUnitKeyMismatch}
	}

	if v.accepted.Test(uint(u.Index)) {
		return &ShardValidationError{Index: u.Index, Kind: ErrDuplicateShard}
	}

	if err := v.topo.ValidateOrigin(sender, v.key.Publisher, u.Index); err != nil {
		return &ShardValidationError{Index: u.Index, Kind: ErrOriginInvalid, Cause: err}
	}

	proof, err := scmerkle.SplitProof(u.Proof)
	if err != nil {
		return &ShardValidationError{Index: u.Index, Kind: ErrProofInvalid, Cause: err}
	}
	if err := scmerkle.VerifyProof(
		v.tree, v.key.Root,
		int(u.Index), int(v.topo.NumShards()),
		u.Shard, proof,
	); err != nil {
		return &ShardValidationError{Index: u.Index, Kind: ErrProofInvalid, Cause: err}
	}

	if v.verifiedSig == nil || !bytes.Equal(v.verifiedSig, u.Signature) {
		if err := v.verifier.Verify(v.signContent, u.Signature, v.pubKey); err != nil {
			return &ShardValidationError{
				Index: u.Index,
				Kind:  ErrSignatureVerificationFailed,
				Cause: err,
			}
		}

		// Copy so the cache does not pin the unit's receive buffer.
		v.verifiedSig = bytes.Clone(u.Signature)
	}

	if v.shardSize != 0 && len(u.Shard) != v.shardSize {
		return &ShardValidationError{Index: u.Index, Kind: ErrShardSizeMismatch}
	}

	v.shardSize = len(u.Shard)
	v.accepted.Set(uint(u.Index))
	return nil
}

// Key returns the message key the validator was created for.
func (v *UnitValidator) Key() scunit.MessageKey {
	return v.key
}

// AcceptedCount reports the number of distinct accepted shard indices.
func (v *UnitValidator) AcceptedCount() int {
	return int(v.accepted.Count())
}

// verifiedSignature returns the cached signature bytes,
// or nil if no unit has passed verification yet.
func (v *UnitValidator) verifiedSignature() []byte {
	return v.verifiedSig
}

// IsAccepted reports whether the shard at idx has been accepted.
func (v *UnitValidator) IsAccepted(idx uint16) bool {
	return v.accepted.Test(uint(idx))
}
