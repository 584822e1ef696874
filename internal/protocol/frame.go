package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// MaxFrameSize caps the body of a single frame.
	MaxFrameSize = 1 << 20

	headerSize = 4
)

// WriteFrame writes a 4-byte big-endian length prefix followed by body in a
// single Write call. If the write fails after some bytes went out the
// stream is no longer aligned on a frame boundary: the error is Closed and
// wraps ErrPartialWrite, whatever the cause.
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}
	buf := make([]byte, headerSize+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[headerSize:], body)

	n, err := w.Write(buf)
	switch {
	case err == nil:
		return nil
	case n > 0:
		return &ChannelError{Kind: Closed, Err: fmt.Errorf("%w: %d of %d bytes: %w", ErrPartialWrite, n, len(buf), err)}
	default:
		return Classify(err)
	}
}

// ReadFrame reads exactly one frame, looping over short reads. A declared
// length above MaxFrameSize is treated as a broken peer and the body is
// never read.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, Classify(err)
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > MaxFrameSize {
		return nil, &ChannelError{Kind: Closed, Err: fmt.Errorf("%w: declared %d bytes", ErrFrameTooLarge, n)}
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, Classify(err)
	}
	return body, nil
}
