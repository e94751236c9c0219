package shardcast

import (
	"errors"
	"fmt"
	"time"

	"github.com/gordian-engine/shardcast/internal/sctrace"
	"github.com/gordian-engine/shardcast/scerasure"
	"github.com/gordian-engine/shardcast/scmerkle"
	"github.com/gordian-engine/shardcast/scmerkle/scblake3"
	"github.com/gordian-engine/shardcast/scsig"
	"github.com/gordian-engine/shardcast/sctopo"
	"github.com/gordian-engine/shardcast/scunit"
)

// EngineConfig is the configuration passed to [NewEngine].
//
// Fields documented as optional may be left at their zero value
// to use the default.
type EngineConfig struct {
	// Identity of the local peer.
	Self scunit.PeerID

	// Signs the roots of locally originated broadcasts.
	Signer scsig.Signer

	// Verifies publisher signatures on received units.
	// Shared across all reconstruction tasks.
	Verifier scsig.Verifier

	// Merkle hasher for message roots.
	// Optional, defaults to [scblake3.Hasher].
	// Every member of a channel must use the same hasher.
	Hasher scmerkle.Hasher

	// Number of data shards (D) a payload is split into,
	// and the number of recovery shards (C) generated from them.
	// A receiver needs any D of the D+C shards.
	// RecoveryShards may be zero, disabling redundancy.
	DataShards     int
	RecoveryShards int

	// Builds the topology for each channel registration.
	// Optional, defaults to [sctopo.NewFlat].
	TopologyFactory sctopo.Factory

	// How long a finalized or abandoned message key is remembered,
	// which is also how long an incomplete message may remain in flight.
	// Optional, defaults to [DefaultFinalizedTTL].
	FinalizedTTL time.Duration

	// How often stale entries are swept.
	// Optional, defaults to a quarter of FinalizedTTL.
	SweepInterval time.Duration

	// Upper bound on concurrent reconstruction tasks per channel
	// that hold at least one accepted shard.
	// Shards for new messages beyond this are dropped.
	// A task whose first unit fails validation exits at once
	// and never counts against the limit.
	// Optional, defaults to [DefaultMaxPendingPerChannel].
	MaxPendingPerChannel int

	// Buffer size of the channel returned by [*Engine.Commands].
	// Optional, defaults to 64.
	CommandBufferSize int

	// Buffer size of each reconstruction task's inbound feed.
	// Units arriving while a feed is full are dropped.
	// Optional, defaults to twice the total shard count.
	TaskFeedSize int

	// When set, the engine emits a [ShardRejected] output
	// for each unit that fails validation,
	// so that an external component can score peers.
	ReportRejections bool

	// Optional; a no-op provider is used when nil.
	TracerProvider sctrace.TracerProvider

	// Time source for the finalized set and stale task sweeps.
	// Optional, defaults to [time.Now].
	Now func() time.Time
}

const (
	DefaultFinalizedTTL         = time.Minute
	DefaultMaxPendingPerChannel = 1024

	defaultCommandBufferSize = 64
)

// withDefaults returns a copy of c with unset optional fields filled in.
func (c EngineConfig) withDefaults() EngineConfig {
	if c.Hasher == nil {
		c.Hasher = scblake3.Hasher{}
	}
	if c.TopologyFactory == nil {
		c.TopologyFactory = sctopo.NewFlat
	}
	if c.FinalizedTTL <= 0 {
		c.FinalizedTTL = DefaultFinalizedTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = c.FinalizedTTL / 4
	}
	if c.MaxPendingPerChannel <= 0 {
		c.MaxPendingPerChannel = DefaultMaxPendingPerChannel
	}
	if c.CommandBufferSize <= 0 {
		c.CommandBufferSize = defaultCommandBufferSize
	}
	if c.TaskFeedSize <= 0 {
		c.TaskFeedSize = 2 * (c.DataShards + c.RecoveryShards)
	}
	if c.TracerProvider == nil {
		c.TracerProvider = sctrace.NopTracerProvider()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

func (c EngineConfig) validate() error {
	var errs []error
	if c.Self == "" {
		errs = append(errs, errors.New("Self must be set"))
	}
	if c.Signer == nil {
		errs = append(errs, errors.New("Signer must be set"))
	}
	if c.Verifier == nil {
		errs = append(errs, errors.New("Verifier must be set"))
	}
	if c.DataShards <= 0 {
		errs = append(errs, fmt.Errorf("DataShards must be positive (got %d)", c.DataShards))
	}
	if c.RecoveryShards < 0 {
		errs = append(errs, fmt.Errorf("RecoveryShards must not be negative (got %d)", c.RecoveryShards))
	}
	if total := c.DataShards + c.RecoveryShards; total > scerasure.MaxTotalShards {
		errs = append(errs, fmt.Errorf(
			"DataShards+RecoveryShards must not exceed %d (got %d)",
			scerasure.MaxTotalShards, total,
		))
	}
	return errors.Join(errs...)
}

func (c EngineConfig) numShards() uint16 {
	return uint16(c.DataShards + c.RecoveryShards)
}
