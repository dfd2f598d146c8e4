package gateway

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

const (
	// LengthPrefixSize is the size of the frame length prefix in bytes.
	LengthPrefixSize = 4

	// DefaultMaxMessageSize is the default maximum message size (64KB).
	DefaultMaxMessageSize = 65536
)

// Framing errors.
var (
	// ErrMessageTooLarge indicates a message exceeds the size limit.
	ErrMessageTooLarge = errors.New("message exceeds maximum size")

	// ErrMessageEmpty indicates an attempt to write an empty message.
	ErrMessageEmpty = errors.New("message is empty")

	// ErrFrameTruncated indicates a frame ended before its declared length.
	ErrFrameTruncated = errors.New("frame truncated")
)

// FrameSize returns the total frame size for a message of the given size.
func FrameSize(messageSize int) int {
	return LengthPrefixSize + messageSize
}

// FrameWriter writes length-prefixed frames to an underlying writer.
// It is safe for concurrent use; each frame is written atomically with
// respect to other frames.
type FrameWriter struct {
	mu             sync.Mutex
	w              io.Writer
	maxMessageSize uint32
}

// NewFrameWriter creates a frame writer with the default message size limit.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return NewFrameWriterWithMaxSize(w, DefaultMaxMessageSize)
}

// NewFrameWriterWithMaxSize creates a frame writer with a custom size limit.
func NewFrameWriterWithMaxSize(w io.Writer, maxSize uint32) *FrameWriter {
	return &FrameWriter{w: w, maxMessageSize: maxSize}
}

// WriteFrame writes a message as a length-prefixed frame.
func (fw *FrameWriter) WriteFrame(message []byte) error {
	if len(message) == 0 {
		return ErrMessageEmpty
	}
	if uint32(len(message)) > fw.maxMessageSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, len(message), fw.maxMessageSize)
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(message)))

	if _, err := fw.w.Write(prefix[:]); err != nil {
		return fmt.Errorf("write length prefix: %w", err)
	}
	if _, err := fw.w.Write(message); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// FrameReader reads length-prefixed frames from an underlying reader.
// Not safe for concurrent use; a connection has a single read loop.
type FrameReader struct {
	r              io.Reader
	maxMessageSize uint32
	lengthBuf      [LengthPrefixSize]byte
}

// NewFrameReader creates a frame reader with the default message size limit.
func NewFrameReader(r io.Reader) *FrameReader {
	return NewFrameReaderWithMaxSize(r, DefaultMaxMessageSize)
}

// NewFrameReaderWithMaxSize creates a frame reader with a custom size limit.
func NewFrameReaderWithMaxSize(r io.Reader, maxSize uint32) *FrameReader {
	return &FrameReader{r: r, maxMessageSize: maxSize}
}

// ReadFrame reads the next length-prefixed frame and returns the message.
// Returns io.EOF when the connection closes cleanly between frames.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(fr.r, fr.lengthBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: partial length prefix", ErrFrameTruncated)
		}
		return nil, fmt.Errorf("read length prefix: %w", err)
	}

	length := binary.BigEndian.Uint32(fr.lengthBuf[:])
	if length == 0 {
		return nil, ErrMessageEmpty
	}
	if length > fr.maxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, length, fr.maxMessageSize)
	}

	message := make([]byte, length)
	if _, err := io.ReadFull(fr.r, message); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: expected %d bytes", ErrFrameTruncated, length)
		}
		return nil, fmt.Errorf("read message: %w", err)
	}
	return message, nil
}

// Framer combines frame reading and writing on a single connection.
type Framer struct {
	*FrameWriter
	*FrameReader
}

// NewFramer creates a framer with the default message size limit.
func NewFramer(rw io.ReadWriter) *Framer {
	return NewFramerWithMaxSize(rw, DefaultMaxMessageSize)
}

// NewFramerWithMaxSize creates a framer with a custom size limit.
func NewFramerWithMaxSize(rw io.ReadWriter, maxSize uint32) *Framer {
	return &Framer{
		FrameWriter: NewFrameWriterWithMaxSize(rw, maxSize),
		FrameReader: NewFrameReaderWithMaxSize(rw, maxSize),
	}
}
