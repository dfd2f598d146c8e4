package gateway

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)
	fr := NewFrameReader(&buf)

	message := []byte("hello gateway")
	require.NoError(t, fw.WriteFrame(message))
	assert.Equal(t, FrameSize(len(message)), buf.Len())

	got, err := fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, message, got)
}

func TestFrameMultiple(t *testing.T) {
	var buf bytes.Buffer
	framer := NewFramer(&buf)

	messages := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	for _, m := range messages {
		require.NoError(t, framer.WriteFrame(m))
	}
	for _, want := range messages {
		got, err := framer.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := framer.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
}

func TestWriteFrameEmpty(t *testing.T) {
	fw := NewFrameWriter(&bytes.Buffer{})
	assert.ErrorIs(t, fw.WriteFrame(nil), ErrMessageEmpty)
}

func TestWriteFrameTooLarge(t *testing.T) {
	fw := NewFrameWriterWithMaxSize(&bytes.Buffer{}, 8)
	err := fw.WriteFrame(make([]byte, 9))
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestReadFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFrameWriter(&buf).WriteFrame(make([]byte, 64)))

	fr := NewFrameReaderWithMaxSize(&buf, 32)
	_, err := fr.ReadFrame()
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestReadFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFrameWriter(&buf).WriteFrame([]byte("full message")))

	data := buf.Bytes()[:buf.Len()-3]
	_, err := NewFrameReader(bytes.NewReader(data)).ReadFrame()
	assert.ErrorIs(t, err, ErrFrameTruncated)
}

func TestReadFramePartialPrefix(t *testing.T) {
	_, err := NewFrameReader(bytes.NewReader([]byte{0, 0})).ReadFrame()
	assert.ErrorIs(t, err, ErrFrameTruncated)
}
