package scquic

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/quic-go/quic-go"
)

// frameHeaderSize is the protocol ID byte plus a 4-byte big-endian length.
const frameHeaderSize = 1 + 4

// Stream error codes passed to CancelRead when a frame is refused.
const (
	WrongProtocolCode quic.StreamErrorCode = 0x5c01
	FrameTooLargeCode quic.StreamErrorCode = 0x5c02
	MalformedUnitCode quic.StreamErrorCode = 0x5c03
)

var errWrongProtocol = errors.New("unexpected protocol ID")

// FrameTooLargeError is returned when reading a frame
// whose declared length exceeds the configured limit.
type FrameTooLargeError struct {
	Size, Max uint32
}

func (e FrameTooLargeError) Error() string {
	return fmt.Sprintf("frame size %d exceeds limit %d", e.Size, e.Max)
}

// writeFrame writes one encoded unit to w, prefixed by the frame header.
func writeFrame(w io.Writer, protocolID byte, unit []byte) error {
	var hdr [frameHeaderSize]byte
	hdr[0] = protocolID
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(unit)))

	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("failed to write frame header: %w", err)
	}
	if _, err := w.Write(unit); err != nil {
		return fmt.Errorf("failed to write unit: %w", err)
	}
	return nil
}

// readFrame reads one frame from r and returns the encoded unit.
func readFrame(r io.Reader, protocolID byte, maxSize uint32) ([]byte, error) {
	var hdr [frameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("failed to read frame header: %w", err)
	}

	if hdr[0] != protocolID {
		return nil, fmt.Errorf("%w: 0x%02x", errWrongProtocol, hdr[0])
	}

	sz := binary.BigEndian.Uint32(hdr[1:])
	if sz > maxSize {
		return nil, FrameTooLargeError{Size: sz, Max: maxSize}
	}

	buf := make([]byte, sz)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("failed to read unit: %w", err)
	}
	return buf, nil
}
