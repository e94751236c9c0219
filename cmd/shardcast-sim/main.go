// shardcast-sim runs a set of in-process shardcast engines
// over a lossy in-memory network and reports how many broadcasts
// each node reconstructed.
//
// Usage:
//
//	shardcast-sim --nodes 8 --data 4 --recovery 4 --loss 0.2 --messages 20
//
// With --config, erasure and hasher settings are taken from a shardcast YAML file.
package main

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/gordian-engine/shardcast"
	"github.com/gordian-engine/shardcast/scconfig"
	"github.com/gordian-engine/shardcast/scmem"
	"github.com/gordian-engine/shardcast/scmerkle"
	"github.com/gordian-engine/shardcast/scsig"
	"github.com/gordian-engine/shardcast/scunit"
	"github.com/spf13/pflag"
)

type simConfig struct {
	Nodes, Messages         int
	DataShards, Recovery    int
	PayloadSize             int
	Loss                    float64
	Seed                    uint64
	Timeout                 time.Duration
	ConfigPath, LogLevelArg string
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var sc simConfig

	fs := pflag.NewFlagSet("shardcast-sim", pflag.ContinueOnError)
	fs.IntVarP(&sc.Nodes, "nodes", "n", 6, "number of engines")
	fs.IntVar(&sc.Messages, "messages", 10, "broadcasts to send, round robin across nodes")
	fs.IntVar(&sc.DataShards, "data", 4, "data shards per message")
	fs.IntVar(&sc.Recovery, "recovery", 4, "recovery shards per message")
	fs.IntVar(&sc.PayloadSize, "payload-size", 4096, "payload bytes, rounded up to a multiple of --data")
	fs.Float64Var(&sc.Loss, "loss", 0.1, "probability of dropping each unit in transit")
	fs.Uint64Var(&sc.Seed, "seed", 1, "seed for payloads and loss")
	fs.DurationVar(&sc.Timeout, "timeout", 5*time.Second, "how long to wait for deliveries")
	fs.StringVar(&sc.ConfigPath, "config", "", "optional shardcast YAML file supplying erasure and hasher settings")
	fs.StringVar(&sc.LogLevelArg, "log-level", "warn", "debug, info, warn, or error")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(sc.LogLevelArg)); err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var hasher scmerkle.Hasher
	if sc.ConfigPath != "" {
		fc, err := scconfig.LoadFile(sc.ConfigPath)
		if err != nil {
			return err
		}
		ec, err := fc.EngineConfig()
		if err != nil {
			return err
		}
		if !fs.Changed("data") {
			sc.DataShards = ec.DataShards
		}
		if !fs.Changed("recovery") {
			sc.Recovery = ec.RecoveryShards
		}
		hasher = ec.Hasher
	}

	if sc.Nodes < 2 {
		return fmt.Errorf("--nodes must be at least 2 (got %d)", sc.Nodes)
	}
	if sc.Loss < 0 || sc.Loss >= 1 {
		return fmt.Errorf("--loss must be in [0, 1) (got %v)", sc.Loss)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	res, err := simulate(ctx, log, sc, hasher)
	if err != nil {
		return err
	}

	res.print(os.Stdout)
	return nil
}

type simResult struct {
	Config simConfig

	// Deliveries per message index, keyed by recipient.
	Delivered []map[scunit.PeerID]struct{}

	Sent, Dropped int64

	Stats []shardcast.Stats
	IDs   []scunit.PeerID
}

func simulate(
	ctx context.Context, log *slog.Logger, sc simConfig, hasher scmerkle.Hasher,
) (simResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rng := rand.New(rand.NewPCG(sc.Seed, sc.Seed^0x5c5c5c5c))
	var rngMu sync.Mutex

	var drop scmem.DropFunc
	if sc.Loss > 0 {
		drop = func(_, _ scunit.PeerID, _ scunit.Unit) bool {
			rngMu.Lock()
			defer rngMu.Unlock()
			return rng.Float64() < sc.Loss
		}
	}

	net := scmem.New(log.With("sys", "net"), scmem.Config{
		Drop:           drop,
		DeliveryBuffer: sc.Nodes * sc.Messages,
	})

	ids := make([]scunit.PeerID, sc.Nodes)
	peers := make([]scunit.Peer, sc.Nodes)
	signers := make([]scsig.Ed25519Signer, sc.Nodes)
	for i := range sc.Nodes {
		ids[i] = scunit.PeerID(fmt.Sprintf("n%02d", i))

		var seed [ed25519.SeedSize]byte
		rngMu.Lock()
		for j := range seed {
			seed[j] = byte(rng.Uint32())
		}
		rngMu.Unlock()

		signers[i] = scsig.NewEd25519Signer(ed25519.NewKeyFromSeed(seed[:]))
		peers[i] = scunit.Peer{ID: ids[i], PubKey: signers[i].PubKey()}
	}

	engines := make([]*shardcast.Engine, sc.Nodes)
	defer func() {
		cancel()
		for _, e := range engines {
			if e != nil {
				e.Wait()
			}
		}
		net.Wait()
	}()

	for i := range sc.Nodes {
		e, err := shardcast.NewEngine(ctx, log.With("node", ids[i]), shardcast.EngineConfig{
			Self:     ids[i],
			Signer:   signers[i],
			Verifier: scsig.Ed25519Verifier{},
			Hasher:   hasher,

			DataShards:     sc.DataShards,
			RecoveryShards: sc.Recovery,
		})
		if err != nil {
			return simResult{}, fmt.Errorf("failed to create engine %s: %w", ids[i], err)
		}
		engines[i] = e
		net.Attach(ctx, ids[i], e)
	}

	const ch scunit.ChannelID = "sim"
	for i, e := range engines {
		if err := e.RegisterChannelPeers(ctx, ch, peers); err != nil {
			return simResult{}, fmt.Errorf("failed to register channel on %s: %w", ids[i], err)
		}
		for j, id := range ids {
			if i == j {
				continue
			}
			if err := e.HandleConnected(ctx, id); err != nil {
				return simResult{}, err
			}
		}
	}

	// Round the payload up so it divides evenly into data shards.
	size := sc.PayloadSize
	if rem := size % sc.DataShards; rem != 0 {
		size += sc.DataShards - rem
	}

	roots := make(map[scunit.MessageKey]int, sc.Messages)
	for m := range sc.Messages {
		payload := make([]byte, size)
		rngMu.Lock()
		for j := range payload {
			payload[j] = byte(rng.Uint32())
		}
		rngMu.Unlock()

		from := m % sc.Nodes
		root, err := engines[from].Broadcast(ctx, ch, payload)
		if err != nil {
			return simResult{}, fmt.Errorf("broadcast %d from %s: %w", m, ids[from], err)
		}
		roots[scunit.MessageKey{Channel: ch, Publisher: ids[from], Root: root}] = m
	}

	res := simResult{
		Config:    sc,
		Delivered: make([]map[scunit.PeerID]struct{}, sc.Messages),
		IDs:       ids,
	}
	for m := range res.Delivered {
		res.Delivered[m] = make(map[scunit.PeerID]struct{}, sc.Nodes-1)
	}

	want := sc.Messages * (sc.Nodes - 1)
	timer := time.NewTimer(sc.Timeout)
	defer timer.Stop()

COLLECT:
	for got := 0; got < want; got++ {
		select {
		case <-ctx.Done():
			return simResult{}, context.Cause(ctx)
		case <-timer.C:
			log.Info("Timed out waiting for deliveries", "got", got, "want", want)
			break COLLECT
		case d := <-net.Deliveries():
			m, ok := roots[d.Key]
			if !ok {
				return simResult{}, fmt.Errorf("delivery of unknown message %s", d.Key)
			}
			res.Delivered[m][d.To] = struct{}{}
		}
	}

	res.Sent = net.Sent()
	res.Dropped = net.Dropped()

	res.Stats = make([]shardcast.Stats, sc.Nodes)
	for i, e := range engines {
		s, err := e.Stats(ctx)
		if err != nil {
			return simResult{}, err
		}
		res.Stats[i] = s
	}

	return res, nil
}
