package scunit

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// wireUnit is the CBOR representation of a Unit.
// Integer keys keep the encoding compact,
// which matters since there is one encoded unit per shard.
type wireUnit struct {
	Channel   string `cbor:"1,keyasint"`
	Publisher string `cbor:"2,keyasint"`
	Root      []byte `cbor:"3,keyasint"`
	Index     uint16 `cbor:"4,keyasint"`
	Shard     []byte `cbor:"5,keyasint"`
	Proof     []byte `cbor:"6,keyasint,omitempty"`
	Signature []byte `cbor:"7,keyasint"`
}

// MaxUnitSize bounds the encoded size of a single unit.
const MaxUnitSize = 16 << 20

var (
	// encMode uses Core Deterministic Encoding,
	// so that the same unit always produces identical bytes.
	encMode cbor.EncMode

	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Errorf("BUG: CBOR encoder initialization failed: %w", err))
	}

	decMode, err = cbor.DecOptions{
		// Units are flat; anything nested is malformed.
		MaxNestedLevels: 4,

		DupMapKey: cbor.DupMapKeyEnforcedAPF,

		// Peers must not smuggle extra fields through relays.
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(fmt.Errorf("BUG: CBOR decoder initialization failed: %w", err))
	}
}

// Marshal returns the wire encoding of u.
func Marshal(u Unit) ([]byte, error) {
	b, err := encMode.Marshal(wireUnit{
		Channel:   string(u.Channel),
		Publisher: string(u.Publisher),
		Root:      u.Root[:],
		Index:     u.Index,
		Shard:     u.Shard,
		Proof:     u.Proof,
		Signature: u.Signature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode unit: %w", err)
	}
	return b, nil
}

// Unmarshal decodes a unit from its wire encoding.
// It only checks the structure of the encoding;
// authenticating the unit is the validator's responsibility.
func Unmarshal(b []byte) (Unit, error) {
	if len(b) > MaxUnitSize {
		return Unit{}, fmt.Errorf("unit size %d exceeds limit %d", len(b), MaxUnitSize)
	}

	var w wireUnit
	if err := decMode.Unmarshal(b, &w); err != nil {
		return Unit{}, fmt.Errorf("failed to decode unit: %w", err)
	}

	if len(w.Root) != RootSize {
		return Unit{}, fmt.Errorf(
			"invalid unit root length %d (want %d)", len(w.Root), RootSize,
		)
	}
	if w.Channel == "" || w.Publisher == "" {
		return Unit{}, fmt.Errorf("unit missing channel or publisher")
	}
	if len(w.Shard) == 0 {
		return Unit{}, fmt.Errorf("unit has empty shard")
	}

	u := Unit{
		Channel:   ChannelID(w.Channel),
		Publisher: PeerID(w.Publisher),
		Index:     w.Index,
		Shard:     w.Shard,
		Proof:     w.Proof,
		Signature: w.Signature,
	}
	copy(u.Root[:], w.Root)
	return u, nil
}
