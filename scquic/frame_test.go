package scquic

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrame_roundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, 0x7a, []byte("hello")))
	require.Equal(t, frameHeaderSize+5, buf.Len())

	got, err := readFrame(&buf, 0x7a, 1024)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
}

func TestFrame_wrongProtocol(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, 0x01, []byte("x")))

	_, err := readFrame(&buf, 0x02, 1024)
	require.ErrorIs(t, err, errWrongProtocol)
}

func TestFrame_tooLarge(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, 0x01, make([]byte, 65)))

	_, err := readFrame(&buf, 0x01, 64)
	var tooLarge FrameTooLargeError
	require.True(t, errors.As(err, &tooLarge))
	require.Equal(t, FrameTooLargeError{Size: 65, Max: 64}, tooLarge)
}

func TestFrame_truncated(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, 0x01, []byte("abcdef")))
	buf.Truncate(buf.Len() - 2)

	_, err := readFrame(&buf, 0x01, 1024)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = readFrame(bytes.NewReader([]byte{0x01, 0}), 0x01, 1024)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
