package shardcast

import (
	"context"
	"fmt"

	"github.com/gordian-engine/shardcast/scunit"
)

// RegisterChannelPeers installs or replaces the peer set of ch.
// See [RegisterChannelPeers].
func (e *Engine) RegisterChannelPeers(
	ctx context.Context, ch scunit.ChannelID, peers []scunit.Peer,
) error {
	resp := make(chan error, 1)
	if err := e.submit(ctx, RegisterChannelPeers{
		Channel: ch,
		Peers:   peers,
		Resp:    resp,
	}); err != nil {
		return err
	}

	err, waitErr := awaitReply(ctx, e, resp)
	if waitErr != nil {
		return waitErr
	}
	return err
}

// UnregisterChannel removes ch and stops its reconstruction tasks.
func (e *Engine) UnregisterChannel(ctx context.Context, ch scunit.ChannelID) error {
	resp := make(chan error, 1)
	if err := e.submit(ctx, UnregisterChannel{Channel: ch, Resp: resp}); err != nil {
		return err
	}

	err, waitErr := awaitReply(ctx, e, resp)
	if waitErr != nil {
		return waitErr
	}
	return err
}

// Broadcast publishes payload on ch and returns the message root
// once the outbound units have been queued as outputs.
//
// The error is [ErrUnknownChannel], a [*EncodingFailedError],
// or a context or shutdown error.
func (e *Engine) Broadcast(
	ctx context.Context, ch scunit.ChannelID, payload []byte,
) (scunit.Root, error) {
	resp := make(chan BroadcastResult, 1)
	if err := e.submit(ctx, Broadcast{
		Channel: ch,
		Payload: payload,
		Resp:    resp,
	}); err != nil {
		return scunit.Root{}, err
	}

	res, err := awaitReply(ctx, e, resp)
	if err != nil {
		return scunit.Root{}, err
	}
	return res.Root, res.Err
}

// HandleIncomingShard submits a unit received from peer.
// It returns once the command is queued, not once it is processed.
func (e *Engine) HandleIncomingShard(
	ctx context.Context, peer scunit.PeerID, u scunit.Unit,
) error {
	return e.submit(ctx, HandleIncomingShard{Peer: peer, Unit: u})
}

// HandleConnected marks peer as reachable.
func (e *Engine) HandleConnected(ctx context.Context, peer scunit.PeerID) error {
	return e.submit(ctx, HandleConnected{Peer: peer})
}

// HandleDisconnected marks peer as unreachable.
func (e *Engine) HandleDisconnected(ctx context.Context, peer scunit.PeerID) error {
	return e.submit(ctx, HandleDisconnected{Peer: peer})
}

// Stats returns a snapshot of e's bookkeeping.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	resp := make(chan Stats, 1)
	if err := e.submit(ctx, QueryStats{Resp: resp}); err != nil {
		return Stats{}, err
	}
	return awaitReply(ctx, e, resp)
}

func (e *Engine) submit(ctx context.Context, cmd Command) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf(
			"context canceled while submitting %T: %w", cmd, context.Cause(ctx),
		)
	case <-e.mainLoopDone:
		return ErrEngineStopped
	case e.commands <- cmd:
		return nil
	}
}

func awaitReply[T any](ctx context.Context, e *Engine, resp chan T) (T, error) {
	var zero T

	select {
	case <-ctx.Done():
		return zero, fmt.Errorf(
			"context canceled while waiting for engine reply: %w", context.Cause(ctx),
		)
	case v := <-resp:
		return v, nil
	case <-e.mainLoopDone:
		// The reply may have been sent just before the loop exited.
		select {
		case v := <-resp:
			return v, nil
		default:
			return zero, ErrEngineStopped
		}
	}
}
