// Package scquic carries shardcast units over QUIC connections.
//
// Each unit travels on its own unidirectional stream:
// a protocol ID byte, a 4-byte big-endian length,
// and the CBOR encoding of the unit.
// Using a fresh stream per unit avoids head-of-line blocking
// between shards of different messages.
//
// The [Adapter] drives a [shardcast.Engine]:
// it writes [shardcast.SendToPeer] outputs to the matching connection,
// submits decoded inbound units as [shardcast.HandleIncomingShard] commands,
// and reports connection changes to the engine.
// Dialing and accepting connections remains the application's concern.
package scquic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordian-engine/shardcast"
	"github.com/gordian-engine/shardcast/internal/sctrace"
	"github.com/gordian-engine/shardcast/scunit"
	"github.com/quic-go/quic-go"
)

// AdapterConfig is the configuration passed to [NewAdapter].
type AdapterConfig struct {
	// The single protocol-identifying byte sent at the start of every stream.
	ProtocolID byte

	// Largest accepted encoded unit.
	// Optional, defaults to [scunit.MaxUnitSize].
	MaxUnitSize uint32

	// Deadline for writing or reading a single unit stream.
	// Optional, defaults to 10 seconds.
	StreamTimeout time.Duration

	// Outbound units buffered per connection.
	// Units beyond this are dropped.
	// Optional, defaults to 256.
	SendQueueSize int

	// Optional; a no-op provider is used when nil.
	TracerProvider sctrace.TracerProvider
}

func (c AdapterConfig) withDefaults() AdapterConfig {
	if c.MaxUnitSize == 0 {
		c.MaxUnitSize = scunit.MaxUnitSize
	}
	if c.StreamTimeout <= 0 {
		c.StreamTimeout = 10 * time.Second
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 256
	}
	return c
}

// Adapter moves engine outputs onto QUIC connections
// and inbound QUIC streams into engine commands.
type Adapter struct {
	log    *slog.Logger
	cfg    AdapterConfig
	tracer sctrace.Tracer

	engine *shardcast.Engine

	connRequests chan connRequest
	messages     chan shardcast.MessageReady

	// Separate from the wait group,
	// to avoid possible race condition when closing.
	mainLoopDone chan struct{}

	// Tracks per-connection workers and stream readers.
	wg sync.WaitGroup
}

type connRequest struct {
	Peer scunit.PeerID

	// Nil to remove the connection.
	Conn Conn

	Resp chan error
}

// peerConn is the main loop's record of one connection.
type peerConn struct {
	conn   Conn
	outbox chan outboundUnit
	cancel context.CancelFunc
}

type outboundUnit struct {
	Bytes []byte
	Key   scunit.MessageKey
	Index uint16
}

// ErrDuplicateConn is returned from [*Adapter.AddConn]
// when the peer already has a connection.
var ErrDuplicateConn = errors.New("peer already has a connection")

// ErrUnknownConn is returned from [*Adapter.RemoveConn]
// when the peer has no connection.
var ErrUnknownConn = errors.New("peer has no connection")

// NewAdapter returns an adapter consuming e's outputs.
// The caller must not read [*shardcast.Engine.Outputs] directly afterward.
// The given context controls the lifecycle of the adapter.
func NewAdapter(
	ctx context.Context, log *slog.Logger, e *shardcast.Engine, cfg AdapterConfig,
) *Adapter {
	cfg = cfg.withDefaults()

	a := &Adapter{
		log:    log,
		cfg:    cfg,
		tracer: sctrace.TracerFrom(cfg.TracerProvider),

		engine: e,

		// Unbuffered since the caller blocks on it.
		connRequests: make(chan connRequest),

		// Arbitrarily sized; the main loop queues beyond this.
		messages: make(chan shardcast.MessageReady, 16),

		mainLoopDone: make(chan struct{}),
	}

	go a.mainLoop(ctx)

	return a
}

// Messages returns the channel of payloads reconstructed by the engine.
func (a *Adapter) Messages() <-chan shardcast.MessageReady {
	return a.messages
}

// Wait blocks until all of a's background work has finished.
// The background work will begin stopping once the context
// passed to [NewAdapter] is canceled.
func (a *Adapter) Wait() {
	<-a.mainLoopDone
	a.wg.Wait()
}

// AddConn starts exchanging units with peer over conn,
// and marks peer as connected in the engine.
func (a *Adapter) AddConn(ctx context.Context, peer scunit.PeerID, conn Conn) error {
	if conn == nil {
		panic(errors.New("BUG: AddConn called with nil Conn"))
	}
	return a.connRequest(ctx, connRequest{Peer: peer, Conn: conn})
}

// RemoveConn stops using peer's connection
// and marks peer as disconnected in the engine.
// The connection itself is not closed.
func (a *Adapter) RemoveConn(ctx context.Context, peer scunit.PeerID) error {
	return a.connRequest(ctx, connRequest{Peer: peer})
}

func (a *Adapter) connRequest(ctx context.Context, req connRequest) error {
	req.Resp = make(chan error, 1)

	select {
	case <-ctx.Done():
		return fmt.Errorf(
			"context canceled while sending connection request: %w",
			context.Cause(ctx),
		)
	case <-a.mainLoopDone:
		return errors.New("adapter stopped")
	case a.connRequests <- req:
		// Okay.
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf(
			"context canceled while waiting for connection response: %w",
			context.Cause(ctx),
		)
	case err := <-req.Resp:
		return err
	}
}

func (a *Adapter) mainLoop(ctx context.Context) {
	defer close(a.mainLoopDone)

	conns := make(map[scunit.PeerID]*peerConn)

	// Messages waiting for the consumer.
	var pending []shardcast.MessageReady

	for {
		var msgCh chan<- shardcast.MessageReady
		var next shardcast.MessageReady
		if len(pending) > 0 {
			msgCh = a.messages
			next = pending[0]
		}

		select {
		case <-ctx.Done():
			a.log.Info(
				"Stopping due to context cancellation",
				"cause", context.Cause(ctx),
			)

			// Connection workers use contexts derived from ctx.
			return

		case req := <-a.connRequests:
			req.Resp <- a.handleConnRequest(ctx, conns, req)

		case o := <-a.engine.Outputs():
			switch o := o.(type) {
			case shardcast.SendToPeer:
				pc, ok := conns[o.Peer]
				if !ok {
					a.log.Debug("Dropping unit for peer without connection", "peer", o.Peer)
					continue
				}

				select {
				case pc.outbox <- outboundUnit{Bytes: o.Bytes, Key: o.Key, Index: o.Index}:
				default:
					a.log.Debug(
						"Dropping unit; send queue full",
						"peer", o.Peer, "idx", o.Index,
					)
				}

			case shardcast.MessageReady:
				pending = append(pending, o)

			case shardcast.ShardRejected:
				a.log.Info(
					"Peer sent invalid shard",
					"peer", o.Peer, "ch", o.Key.Channel, "idx", o.Index, "err", o.Err,
				)

			default:
				panic(fmt.Errorf("BUG: unhandled engine output type %T", o))
			}

		case msgCh <- next:
			pending[0] = shardcast.MessageReady{}
			pending = pending[1:]
		}
	}
}

func (a *Adapter) handleConnRequest(
	ctx context.Context, conns map[scunit.PeerID]*peerConn, req connRequest,
) error {
	pc, have := conns[req.Peer]

	if req.Conn == nil {
		if !have {
			return ErrUnknownConn
		}

		pc.cancel()
		delete(conns, req.Peer)
		return a.submit(ctx, shardcast.HandleDisconnected{Peer: req.Peer})
	}

	if have {
		return ErrDuplicateConn
	}

	wCtx, cancel := context.WithCancel(ctx)
	pc = &peerConn{
		conn:   req.Conn,
		outbox: make(chan outboundUnit, a.cfg.SendQueueSize),
		cancel: cancel,
	}
	conns[req.Peer] = pc

	log := a.log.With("peer", req.Peer)

	a.wg.Add(2)
	go a.sendWorker(wCtx, log, pc)
	go a.acceptWorker(wCtx, log, req.Peer, pc.conn)

	return a.submit(ctx, shardcast.HandleConnected{Peer: req.Peer})
}

// submit sends cmd to the engine.
// The engine never blocks its command loop on outputs,
// so this only waits for the command queue to drain.
func (a *Adapter) submit(ctx context.Context, cmd shardcast.Command) error {
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case a.engine.Commands() <- cmd:
		return nil
	}
}

func (a *Adapter) sendWorker(ctx context.Context, log *slog.Logger, pc *peerConn) {
	defer a.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case u := <-pc.outbox:
			if err := a.sendUnit(ctx, pc.conn, u); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				log.Debug("Failed to send unit", "idx", u.Index, "err", err)
			}
		}
	}
}

func (a *Adapter) sendUnit(ctx context.Context, conn Conn, u outboundUnit) error {
	ctx, span := a.tracer.Start(ctx, "scquic.sendUnit", sctrace.WithAttributes(
		append(
			sctrace.MessageKeyAttrs(u.Key),
			sctrace.ShardIndexAttr(u.Index),
			sctrace.RemoteAddrAttr(conn),
		)...,
	))
	defer span.End()

	s, err := conn.OpenUniStreamSync(ctx)
	if err != nil {
		sctrace.SpanError(span, err)
		return fmt.Errorf("failed to open stream: %w", err)
	}

	if err := s.SetWriteDeadline(time.Now().Add(a.cfg.StreamTimeout)); err != nil {
		s.CancelWrite(0)
		sctrace.SpanError(span, err)
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	if err := writeFrame(s, a.cfg.ProtocolID, u.Bytes); err != nil {
		s.CancelWrite(0)
		sctrace.SpanError(span, err)
		return err
	}

	if err := s.Close(); err != nil {
		sctrace.SpanError(span, err)
		return fmt.Errorf("failed to close stream: %w", err)
	}
	return nil
}

func (a *Adapter) acceptWorker(
	ctx context.Context, log *slog.Logger, peer scunit.PeerID, conn Conn,
) {
	defer a.wg.Done()

	for {
		s, err := conn.AcceptUniStream(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Info("Stopped accepting streams", "err", err)
			}
			return
		}

		a.wg.Add(1)
		go a.receiveUnit(ctx, log, peer, s)
	}
}

func (a *Adapter) receiveUnit(
	ctx context.Context, log *slog.Logger, peer scunit.PeerID, s ReceiveStream,
) {
	defer a.wg.Done()

	if err := s.SetReadDeadline(time.Now().Add(a.cfg.StreamTimeout)); err != nil {
		s.CancelRead(0)
		return
	}

	raw, err := readFrame(s, a.cfg.ProtocolID, a.cfg.MaxUnitSize)
	if err != nil {
		var tooLarge FrameTooLargeError
		switch {
		case errors.Is(err, errWrongProtocol):
			s.CancelRead(WrongProtocolCode)
		case errors.As(err, &tooLarge):
			s.CancelRead(FrameTooLargeCode)
		default:
			s.CancelRead(0)
		}
		log.Debug("Failed to read unit frame", "err", err)
		return
	}

	u, err := scunit.Unmarshal(raw)
	if err != nil {
		s.CancelRead(MalformedUnitCode)
		log.Debug("Failed to decode unit", "err", err)
		return
	}

	if err := a.submit(ctx, shardcast.HandleIncomingShard{
		Peer: peer,
		Unit: u,
	}); err != nil {
		return
	}
}

// CloseCode is the application error code
// that applications may use when closing shardcast connections.
const CloseCode quic.ApplicationErrorCode = 0x5c00
