// Package scquictest provides in-memory [scquic.Conn] values
// for exercising the adapter without real QUIC connections.
package scquictest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gordian-engine/shardcast/scquic"
	"github.com/quic-go/quic-go"
)

// PipeConn is one end of a pair created with [NewConnPair].
// Each unidirectional stream is backed by an [io.Pipe].
// Deadlines are accepted and ignored.
type PipeConn struct {
	peer *PipeConn

	// Streams opened by the peer, waiting to be accepted.
	incoming chan *PipeReceiveStream

	readCancels chan quic.StreamErrorCode

	addr StubNetAddr

	closeOnce sync.Once
	closed    chan struct{}
}

var _ scquic.Conn = (*PipeConn)(nil)

// NewConnPair returns two connected ends.
// Streams opened on a are accepted on b and vice versa.
func NewConnPair(aAddr, bAddr string) (a, b *PipeConn) {
	a = newPipeConn(aAddr)
	b = newPipeConn(bAddr)
	a.peer = b
	b.peer = a
	return a, b
}

func newPipeConn(addr string) *PipeConn {
	return &PipeConn{
		// Arbitrary size, large enough that openers rarely block.
		incoming: make(chan *PipeReceiveStream, 64),

		readCancels: make(chan quic.StreamErrorCode, 16),

		addr: StubNetAddr{NetworkValue: "pipe", StringValue: addr},

		closed: make(chan struct{}),
	}
}

// ErrConnClosed is returned from stream operations
// after either end of the pair has been closed.
var ErrConnClosed = errors.New("pipe connection closed")

// OpenUniStreamSync implements [scquic.Conn].
func (c *PipeConn) OpenUniStreamSync(ctx context.Context) (scquic.SendStream, error) {
	pr, pw := io.Pipe()
	rs := &PipeReceiveStream{r: pr, cancels: c.peer.readCancels}

	select {
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case <-c.closed:
		return nil, ErrConnClosed
	case <-c.peer.closed:
		return nil, ErrConnClosed
	case c.peer.incoming <- rs:
		return &PipeSendStream{w: pw}, nil
	}
}

// AcceptUniStream implements [scquic.Conn].
func (c *PipeConn) AcceptUniStream(ctx context.Context) (scquic.ReceiveStream, error) {
	select {
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case <-c.closed:
		return nil, ErrConnClosed
	case <-c.peer.closed:
		return nil, ErrConnClosed
	case rs := <-c.incoming:
		return rs, nil
	}
}

// CloseWithError implements [scquic.Conn].
// Closing either end stops both ends from opening or accepting streams.
func (c *PipeConn) CloseWithError(code quic.ApplicationErrorCode, msg string) error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	return nil
}

// RemoteAddr implements [scquic.Conn].
func (c *PipeConn) RemoteAddr() net.Addr {
	return c.peer.addr
}

// ReadCancels returns the codes passed to CancelRead
// on streams accepted by c.
// Codes are dropped if the channel is not drained.
func (c *PipeConn) ReadCancels() <-chan quic.StreamErrorCode {
	return c.readCancels
}

// PipeSendStream is the write side of a pipe stream.
type PipeSendStream struct {
	w *io.PipeWriter
}

var _ scquic.SendStream = (*PipeSendStream)(nil)

func (s *PipeSendStream) Write(p []byte) (int, error) { return s.w.Write(p) }

func (s *PipeSendStream) Close() error { return s.w.Close() }

func (s *PipeSendStream) CancelWrite(code quic.StreamErrorCode) {
	_ = s.w.CloseWithError(fmt.Errorf("write canceled with code %d", code))
}

func (s *PipeSendStream) SetWriteDeadline(time.Time) error { return nil }

// PipeReceiveStream is the read side of a pipe stream.
type PipeReceiveStream struct {
	r *io.PipeReader

	cancels chan<- quic.StreamErrorCode
}

var _ scquic.ReceiveStream = (*PipeReceiveStream)(nil)

func (s *PipeReceiveStream) Read(p []byte) (int, error) { return s.r.Read(p) }

func (s *PipeReceiveStream) CancelRead(code quic.StreamErrorCode) {
	_ = s.r.CloseWithError(fmt.Errorf("read canceled with code %d", code))

	select {
	case s.cancels <- code:
	default:
	}
}

func (s *PipeReceiveStream) SetReadDeadline(time.Time) error { return nil }

// StubNetAddr is the [net.Addr] reported by [*PipeConn.RemoteAddr].
type StubNetAddr struct {
	NetworkValue string
	StringValue  string
}

var _ net.Addr = StubNetAddr{}

func (a StubNetAddr) Network() string { return a.NetworkValue }
func (a StubNetAddr) String() string  { return a.StringValue }
