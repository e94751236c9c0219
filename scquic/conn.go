package scquic

import (
	"context"
	"net"
	"time"

	"github.com/quic-go/quic-go"
)

// Conn is the subset of [*quic.Conn] that the adapter uses.
// Shardcast only ever uses unidirectional streams.
type Conn interface {
	OpenUniStreamSync(context.Context) (SendStream, error)
	AcceptUniStream(context.Context) (ReceiveStream, error)

	CloseWithError(quic.ApplicationErrorCode, string) error

	RemoteAddr() net.Addr
}

// SendStream is the subset of [*quic.SendStream] that the adapter uses.
// *quic.SendStream satisfies it directly.
type SendStream interface {
	Write([]byte) (int, error)
	Close() error
	CancelWrite(quic.StreamErrorCode)
	SetWriteDeadline(time.Time) error
}

// ReceiveStream is the subset of [*quic.ReceiveStream] that the adapter uses.
// *quic.ReceiveStream satisfies it directly.
type ReceiveStream interface {
	Read([]byte) (int, error)
	CancelRead(quic.StreamErrorCode)
	SetReadDeadline(time.Time) error
}

var (
	_ SendStream    = (*quic.SendStream)(nil)
	_ ReceiveStream = (*quic.ReceiveStream)(nil)
)

var _ Conn = ConnAdapter{}

// ConnAdapter wraps a [*quic.Conn], implementing the [Conn] interface.
//
// Create an instance with [WrapConn].
type ConnAdapter struct {
	qc *quic.Conn
}

// WrapConn wraps the given connection,
// returning a value implementing [Conn].
func WrapConn(qc *quic.Conn) ConnAdapter {
	return ConnAdapter{qc: qc}
}

func (c ConnAdapter) OpenUniStreamSync(ctx context.Context) (SendStream, error) {
	s, err := c.qc.OpenUniStreamSync(ctx)
	if err != nil {
		// Don't want to wrap the underlying error in this case.
		return nil, err
	}
	return s, nil
}

func (c ConnAdapter) AcceptUniStream(ctx context.Context) (ReceiveStream, error) {
	s, err := c.qc.AcceptUniStream(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (c ConnAdapter) CloseWithError(code quic.ApplicationErrorCode, msg string) error {
	return c.qc.CloseWithError(code, msg)
}

func (c ConnAdapter) RemoteAddr() net.Addr { return c.qc.RemoteAddr() }
