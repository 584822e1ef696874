package protocol

import (
	"net"
	"sync"
	"time"
)

// Channel carries typed messages over a stream connection using
// length-prefixed frames. Send is safe for concurrent use; Receive must be
// called from a single goroutine.
//
// A send that fails after part of a frame went out breaks the channel: the
// connection is closed and every later send fails as Closed. A write
// timeout before any byte went out leaves the stream intact and is
// reported as Timeout, so it can be retried.
type Channel struct {
	conn         net.Conn
	idleTimeout  time.Duration
	writeTimeout time.Duration

	writeMu   sync.Mutex
	broken    bool
	closeOnce sync.Once
	closeErr  error
}

// NewChannel wraps conn. A zero timeout disables the matching deadline.
func NewChannel(conn net.Conn, idleTimeout, writeTimeout time.Duration) *Channel {
	return &Channel{
		conn:         conn,
		idleTimeout:  idleTimeout,
		writeTimeout: writeTimeout,
	}
}

func (c *Channel) Send(m Message) error {
	body, err := Encode(m)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.broken {
		return &ChannelError{Kind: Closed, Err: ErrBroken}
	}
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return Classify(err)
		}
	}
	err = WriteFrame(c.conn, body)
	if IsKind(err, Closed) {
		c.broken = true
		_ = c.Close()
	}
	return err
}

func (c *Channel) Receive() (Message, error) {
	if c.idleTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout)); err != nil {
			return nil, Classify(err)
		}
	}
	body, err := ReadFrame(c.conn)
	if err != nil {
		return nil, err
	}
	return Decode(body)
}

func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *Channel) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
