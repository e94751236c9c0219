package shardcast

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/shardcast/internal/sctrace"
	"github.com/gordian-engine/shardcast/scdedup"
	"github.com/gordian-engine/shardcast/sctopo"
	"github.com/gordian-engine/shardcast/scunit"
)

// Engine owns every channel registration, the connected peer set,
// and one reconstruction task per in-flight message.
//
// All engine state is owned by a single main loop goroutine.
// Commands arrive on [*Engine.Commands] and results are emitted on [*Engine.Outputs].
// Encoding broadcasts and validating units happens on other goroutines,
// so the main loop only does bookkeeping.
//
// The main loop never blocks on the output channel:
// outputs are queued internally until the consumer reads them.
type Engine struct {
	log    *slog.Logger
	cfg    EngineConfig
	tracer sctrace.Tracer

	commands chan Command
	outputs  chan Output

	// Fan-in from all reconstruction tasks.
	results chan taskResult

	// Fan-in from broadcast encoding goroutines.
	prepared chan preparedBroadcast

	// Everything below is only accessed by the main loop.

	channels  map[scunit.ChannelID]*channelState
	connected map[scunit.PeerID]struct{}
	finalized *scdedup.Cache[scunit.MessageKey]
	tasks     map[scunit.MessageKey]*taskHandle

	// Outputs not yet accepted by the consumer.
	pending []Output

	// Separate from the wait group,
	// to avoid possible race condition when closing.
	mainLoopDone chan struct{}

	// Tracks reconstruction tasks and broadcast encoders.
	wg sync.WaitGroup
}

// channelState is the engine's record of one registered channel.
// A fresh value is installed on every registration;
// the topology is never modified in place.
type channelState struct {
	topo    sctopo.Provider
	pubKeys map[scunit.PeerID][]byte

	// Live reconstruction tasks for the channel
	// that have accepted at least one shard.
	nTasks int
}

// taskHandle is the engine's side of a reconstruction task.
type taskHandle struct {
	// Closing the feed stops the task.
	// Only the engine sends on or closes it.
	feed chan inboundUnit

	// Topology snapshot the task validates against.
	topo sctopo.Provider

	// Indices already queued per sender.
	// A sender may only contribute each index once,
	// so repeats are dropped before they use feed capacity.
	queued map[scunit.PeerID]*bitset.BitSet

	// Set once the task reports its first accepted shard.
	accepting bool

	started time.Time
}

// NewEngine validates cfg and starts an engine.
// The given context controls the lifecycle of the engine;
// use [*Engine.Wait] after canceling it to wait for all goroutines to finish.
func NewEngine(ctx context.Context, log *slog.Logger, cfg EngineConfig) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	cfg = cfg.withDefaults()

	if cfg.RecoveryShards == 0 {
		log.Warn(
			"Running without recovery shards; any lost shard prevents reconstruction",
		)
	}

	e := &Engine{
		log:    log,
		cfg:    cfg,
		tracer: sctrace.TracerFrom(cfg.TracerProvider),

		commands: make(chan Command, cfg.CommandBufferSize),

		// Unbuffered since the main loop keeps its own queue.
		outputs: make(chan Output),

		// Arbitrarily sized.
		results:  make(chan taskResult, 64),
		prepared: make(chan preparedBroadcast, 4),

		channels:  make(map[scunit.ChannelID]*channelState),
		connected: make(map[scunit.PeerID]struct{}),
		finalized: scdedup.New[scunit.MessageKey](cfg.FinalizedTTL, cfg.Now),
		tasks:     make(map[scunit.MessageKey]*taskHandle),

		mainLoopDone: make(chan struct{}),
	}

	go e.mainLoop(ctx)

	return e, nil
}

// Commands returns the channel for submitting commands to e.
// The convenience methods such as [*Engine.Broadcast]
// submit through the same channel.
func (e *Engine) Commands() chan<- Command {
	return e.commands
}

// Outputs returns the channel of events emitted by e.
// The caller must keep reading it;
// unread outputs accumulate in memory.
func (e *Engine) Outputs() <-chan Output {
	return e.outputs
}

// Wait blocks until all of e's background work has finished.
// The background work will begin stopping once the context
// passed to [NewEngine] is canceled.
func (e *Engine) Wait() {
	<-e.mainLoopDone
	e.wg.Wait()
}

func (e *Engine) mainLoop(ctx context.Context) {
	defer close(e.mainLoopDone)

	sweep := time.NewTicker(e.cfg.SweepInterval)
	defer sweep.Stop()

	for {
		// Only enable the output case when something is queued.
		var outCh chan<- Output
		var next Output
		if len(e.pending) > 0 {
			outCh = e.outputs
			next = e.pending[0]
		}

		select {
		case <-ctx.Done():
			e.log.Info(
				"Stopping due to context cancellation",
				"cause", context.Cause(ctx),
				"tasks", len(e.tasks),
				"undelivered_outputs", len(e.pending),
			)

			// Tasks observe the same context,
			// so their feeds do not need to be closed.
			return

		case cmd := <-e.commands:
			e.handleCommand(ctx, cmd)

		case res := <-e.results:
			e.handleTaskResult(ctx, res)

		case pb := <-e.prepared:
			e.handlePrepared(pb)

		case <-sweep.C:
			e.sweep()

		case outCh <- next:
			e.pending[0] = nil
			e.pending = e.pending[1:]
			if len(e.pending) == 0 {
				e.pending = nil
			}
		}
	}
}

func (e *Engine) handleCommand(ctx context.Context, cmd Command) {
	switch c := cmd.(type) {
	case RegisterChannelPeers:
		reply(e.log, c.Resp, e.registerChannel(c.Channel, c.Peers))

	case UnregisterChannel:
		reply(e.log, c.Resp, e.unregisterChannel(c.Channel))

	case Broadcast:
		cs, ok := e.channels[c.Channel]
		if !ok {
			reply(e.log, c.Resp, BroadcastResult{Err: ErrUnknownChannel})
			return
		}

		// Encoding and signing are too expensive for the main loop.
		e.wg.Add(1)
		go e.prepareBroadcast(ctx, c.Channel, c.Payload, cs.topo, c.Resp)

	case HandleIncomingShard:
		e.handleIncomingShard(ctx, c)

	case HandleConnected:
		e.connected[c.Peer] = struct{}{}

	case HandleDisconnected:
		// In-flight tasks are deliberately left alone.
		delete(e.connected, c.Peer)

	case QueryStats:
		reply(e.log, c.Resp, Stats{
			Channels:       len(e.channels),
			ConnectedPeers: len(e.connected),
			Tasks:          len(e.tasks),
			AcceptingTasks: e.acceptingTasks(),
			Finalized:      e.finalized.Len(),
			PendingOutputs: len(e.pending),
		})

	default:
		panic(fmt.Errorf("BUG: unhandled command type %T", cmd))
	}
}

// reply sends v on resp without blocking.
func reply[T any](log *slog.Logger, resp chan T, v T) {
	if resp == nil {
		return
	}

	select {
	case resp <- v:
	default:
		log.Warn("Dropping command reply; response channel must have capacity 1")
	}
}

func (e *Engine) registerChannel(ch scunit.ChannelID, peers []scunit.Peer) error {
	if err := sctopo.ValidatePeers(ch, peers); err != nil {
		return err
	}

	topo, err := e.cfg.TopologyFactory(ch, e.cfg.Self, peers, e.cfg.numShards())
	if err != nil {
		return fmt.Errorf("failed to build topology for channel %q: %w", ch, err)
	}

	pubKeys := make(map[scunit.PeerID][]byte, len(peers))
	for _, p := range peers {
		pubKeys[p.ID] = bytes.Clone(p.PubKey)
	}

	cs := &channelState{
		topo:    topo,
		pubKeys: pubKeys,
	}
	if old, ok := e.channels[ch]; ok {
		cs.nTasks = old.nTasks
	}
	e.channels[ch] = cs

	e.log.Info("Registered channel", "ch", ch, "n_peers", len(peers))
	return nil
}

func (e *Engine) unregisterChannel(ch scunit.ChannelID) error {
	if _, ok := e.channels[ch]; !ok {
		return &sctopo.PeerSetError{Fault: sctopo.ChannelNotFoundFault, Channel: ch}
	}

	var stopped int
	for key, h := range e.tasks {
		if key.Channel == ch {
			e.removeTask(key, h)
			stopped++
		}
	}
	delete(e.channels, ch)

	e.log.Info("Unregistered channel", "ch", ch, "stopped_tasks", stopped)
	return nil
}

func (e *Engine) handleIncomingShard(ctx context.Context, c HandleIncomingShard) {
	key := c.Unit.Key()

	if e.finalized.Contains(key) {
		return
	}

	in := inboundUnit{Sender: c.Peer, Unit: c.Unit}

	if h, ok := e.tasks[key]; ok {
		if !e.checkOrigin(h.topo, in) {
			return
		}
		e.feedTask(key, h, in)
		return
	}

	cs, ok := e.channels[key.Channel]
	if !ok {
		e.log.Debug(
			"Dropping shard for unknown channel",
			"ch", key.Channel, "sender", c.Peer,
		)
		return
	}

	pubKey, ok := cs.pubKeys[key.Publisher]
	if !ok {
		// Refuse to start a task for a publisher that could never be verified.
		e.reject(c.Peer, key, c.Unit.Index, &ShardValidationError{
			Index: c.Unit.Index,
			Kind:  ErrOriginInvalid,
			Cause: &sctopo.PeerSetError{
				Fault:   sctopo.UnknownPeerFault,
				Peer:    key.Publisher,
				Channel: key.Channel,
			},
		})
		return
	}

	if !e.checkOrigin(cs.topo, in) {
		return
	}

	if cs.nTasks >= e.cfg.MaxPendingPerChannel {
		e.log.Warn(
			"Dropping shard for new message; too many pending messages on channel",
			"ch", key.Channel, "pub", key.Publisher, "limit", e.cfg.MaxPendingPerChannel,
		)
		return
	}

	h := e.startTask(ctx, key, pubKey, cs)
	e.feedTask(key, h, in)
}

// checkOrigin runs the topology check ahead of the task,
// so that units no member could legitimately send
// neither start tasks nor use feed capacity.
// The task's validator repeats the check.
func (e *Engine) checkOrigin(topo sctopo.Provider, in inboundUnit) bool {
	key := in.Unit.Key()
	err := topo.ValidateOrigin(in.Sender, key.Publisher, in.Unit.Index)
	if err == nil {
		return true
	}

	e.reject(in.Sender, key, in.Unit.Index, &ShardValidationError{
		Index: in.Unit.Index,
		Kind:  ErrOriginInvalid,
		Cause: err,
	})
	return false
}

func (e *Engine) startTask(
	ctx context.Context,
	key scunit.MessageKey,
	pubKey []byte,
	cs *channelState,
) *taskHandle {
	feed := make(chan inboundUnit, e.cfg.TaskFeedSize)

	t := &reconstructionTask{
		log: e.log.With(
			"ch", key.Channel,
			"pub", key.Publisher,
			"root", key.Root.Short(),
		),
		tracer: e.tracer,

		v:    NewUnitValidator(key, pubKey, cs.topo, e.cfg.Verifier, e.cfg.Hasher),
		topo: cs.topo,
		tree: merkleConfig(key.Channel, e.cfg.Hasher),

		dataShards:     e.cfg.DataShards,
		recoveryShards: e.cfg.RecoveryShards,

		reportRejections: e.cfg.ReportRejections,

		feed:    feed,
		results: e.results,

		relayed: bitset.MustNew(uint(e.cfg.numShards())),
	}

	e.wg.Add(1)
	go t.run(ctx, &e.wg)

	h := &taskHandle{
		feed:    feed,
		topo:    cs.topo,
		queued:  make(map[scunit.PeerID]*bitset.BitSet),
		started: e.cfg.Now(),
	}
	e.tasks[key] = h
	return h
}

func (e *Engine) feedTask(key scunit.MessageKey, h *taskHandle, in inboundUnit) {
	idx := uint(in.Unit.Index)
	nShards := uint(h.topo.NumShards())

	q := h.queued[in.Sender]
	if idx < nShards && q != nil && q.Test(idx) {
		return
	}

	select {
	case h.feed <- in:
		// Out of range indices are left to the validator to reject.
		if idx < nShards {
			if q == nil {
				q = bitset.MustNew(nShards)
				h.queued[in.Sender] = q
			}
			q.Set(idx)
		}
	default:
		e.log.Debug(
			"Dropping shard; task feed full",
			"ch", key.Channel, "pub", key.Publisher, "root", key.Root.Short(),
			"idx", in.Unit.Index,
		)
	}
}

// removeTask stops the task for key and forgets it.
func (e *Engine) removeTask(key scunit.MessageKey, h *taskHandle) {
	close(h.feed)
	delete(e.tasks, key)

	if !h.accepting {
		return
	}
	if cs, ok := e.channels[key.Channel]; ok {
		cs.nTasks--
	}
}

func (e *Engine) acceptingTasks() int {
	var n int
	for _, h := range e.tasks {
		if h.accepting {
			n++
		}
	}
	return n
}

func (e *Engine) reject(peer scunit.PeerID, key scunit.MessageKey, idx uint16, err error) {
	e.log.Debug(
		"Rejected shard",
		"sender", peer, "ch", key.Channel, "pub", key.Publisher, "idx", idx, "err", err,
	)

	if e.cfg.ReportRejections {
		e.emit(ShardRejected{Peer: peer, Key: key, Index: idx, Err: err})
	}
}

func (e *Engine) handleTaskResult(ctx context.Context, res taskResult) {
	h, live := e.tasks[res.Key]
	if live && (<-chan inboundUnit)(h.feed) != res.Feed {
		// From an earlier task for the same key.
		live = false
	}

	switch res.Kind {
	case taskRelay:
		if !live {
			return
		}
		for _, to := range res.To {
			e.sendToPeer(to, res.Relay, res.Key, res.Index)
		}

	case taskRejected:
		e.reject(res.Peer, res.Key, res.Index, res.Err)

	case taskAccepted:
		if !live {
			return
		}
		h.accepting = true
		if cs, ok := e.channels[res.Key.Channel]; ok {
			cs.nTasks++
		}

	case taskIdle:
		if !live {
			return
		}
		e.removeTask(res.Key, h)

		// The key is not finalized, since its units may have been forged.
		// Units still queued for the exited task are handled afresh.
		for in := range h.feed {
			e.handleIncomingShard(ctx, HandleIncomingShard{Peer: in.Sender, Unit: in.Unit})
		}

	case taskCompleted:
		if !live {
			// Abandoned or unregistered after the task finished.
			return
		}
		e.removeTask(res.Key, h)
		e.finalized.InsertIfAbsent(res.Key)

		e.log.Info(
			"Message ready",
			"ch", res.Key.Channel, "pub", res.Key.Publisher, "root", res.Key.Root.Short(),
			"size", len(res.Payload),
		)
		e.emit(MessageReady{Key: res.Key, Payload: res.Payload})

	case taskFailed:
		if !live {
			return
		}
		e.removeTask(res.Key, h)

		// Remember the failure so that late shards are dropped cheaply.
		e.finalized.InsertIfAbsent(res.Key)

	default:
		panic(fmt.Errorf("BUG: unhandled task result kind %d", res.Kind))
	}
}

func (e *Engine) handlePrepared(pb preparedBroadcast) {
	if pb.Err != nil {
		reply(e.log, pb.Resp, BroadcastResult{Err: pb.Err})
		return
	}

	// Our own shards relayed back to us are dropped immediately.
	e.finalized.InsertIfAbsent(pb.Key)

	for i, b := range pb.Units {
		for _, to := range pb.Topo.Recipients(e.cfg.Self, uint16(i)) {
			e.sendToPeer(to, b, pb.Key, uint16(i))
		}
	}

	e.log.Info(
		"Broadcasting message",
		"ch", pb.Key.Channel, "root", pb.Key.Root.Short(), "n_shards", len(pb.Units),
	)
	reply(e.log, pb.Resp, BroadcastResult{Root: pb.Key.Root})
}

func (e *Engine) sendToPeer(to scunit.PeerID, b []byte, key scunit.MessageKey, idx uint16) {
	if _, ok := e.connected[to]; !ok {
		return
	}
	e.emit(SendToPeer{Peer: to, Bytes: b, Key: key, Index: idx})
}

func (e *Engine) emit(o Output) {
	e.pending = append(e.pending, o)
}

// sweep evicts expired finalized keys
// and abandons tasks that have outlived the finalized TTL.
// Abandoned messages produce no output.
func (e *Engine) sweep() {
	evicted := e.finalized.Evict()

	now := e.cfg.Now()
	var abandoned int
	for key, h := range e.tasks {
		if now.Sub(h.started) < e.cfg.FinalizedTTL {
			continue
		}

		e.removeTask(key, h)
		e.finalized.InsertIfAbsent(key)
		abandoned++
	}

	if evicted > 0 || abandoned > 0 {
		e.log.Debug(
			"Swept stale state",
			"evicted_finalized", evicted, "abandoned_tasks", abandoned,
		)
	}
}
