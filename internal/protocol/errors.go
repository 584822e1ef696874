package protocol

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
)

// ChannelKind classifies a failure of the framed channel.
type ChannelKind int

const (
	// Closed means the peer is gone: EOF, reset, or a frame we refuse to read.
	Closed ChannelKind = iota
	// Malformed means a frame arrived intact but its body is not valid JSON.
	Malformed
	// Timeout means no frame arrived within the idle window.
	Timeout
)

func (k ChannelKind) String() string {
	switch k {
	case Closed:
		return "Closed"
	case Malformed:
		return "Malformed"
	case Timeout:
		return "Timeout"
	default:
		return fmt.Sprintf("ChannelKind(%d)", int(k))
	}
}

type ChannelError struct {
	Kind ChannelKind
	Err  error
}

func (e *ChannelError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *ChannelError) Unwrap() error { return e.Err }

// Fatal reports whether the connection cannot be used any more.
func (e *ChannelError) Fatal() bool {
	return e.Kind != Malformed
}

// ProtocolCode classifies a well-formed JSON body that is not a valid message.
type ProtocolCode int

const (
	MissingField ProtocolCode = iota
	UnknownType
)

func (c ProtocolCode) String() string {
	switch c {
	case MissingField:
		return "MissingField"
	case UnknownType:
		return "UnknownType"
	default:
		return fmt.Sprintf("ProtocolCode(%d)", int(c))
	}
}

type ProtocolError struct {
	Code   ProtocolCode
	Detail string
}

func (e *ProtocolError) Error() string {
	return e.Code.String() + ": " + e.Detail
}

var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// ErrPartialWrite means a frame was cut short on the wire.
var ErrPartialWrite = errors.New("frame partially written")

// ErrBroken is returned by sends on a channel that an earlier failed write
// left unusable.
var ErrBroken = errors.New("channel broken by an earlier write")

// Classify maps a transport error to a ChannelError. Errors that are
// already classified pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var chErr *ChannelError
	if errors.As(err, &chErr) {
		return err
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return &ChannelError{Kind: Timeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ChannelError{Kind: Timeout, Err: err}
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return &ChannelError{Kind: Closed, Err: fmt.Errorf("truncated frame: %w", err)}
	}
	return &ChannelError{Kind: Closed, Err: err}
}

// IsKind reports whether err is a ChannelError of the given kind.
func IsKind(err error, kind ChannelKind) bool {
	var chErr *ChannelError
	return errors.As(err, &chErr) && chErr.Kind == kind
}
