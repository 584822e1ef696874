// Package typestest provides an in-memory types.Conn for tests.
package typestest

import (
	"errors"
	"sync"

	"connectfour/internal/protocol"
)

var errClosed = errors.New("connection closed")

// Conn records every sent message and replays pushed inbound messages.
type Conn struct {
	mu        sync.Mutex
	sent      []protocol.Message
	inbox     chan inbound
	closed    bool
	failSends int
	sendErr   error
	notify    chan struct{}
	addr      string

	stall     func(protocol.Message) bool
	stallGate chan struct{}
}

type inbound struct {
	msg protocol.Message
	err error
}

func NewConn(addr string) *Conn {
	return &Conn{
		inbox:  make(chan inbound, 64),
		notify: make(chan struct{}, 1),
		addr:   addr,
	}
}

func (c *Conn) Send(m protocol.Message) error {
	c.mu.Lock()
	stall, gate := c.stall, c.stallGate
	c.mu.Unlock()
	if stall != nil && stall(m) {
		<-gate
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &protocol.ChannelError{Kind: protocol.Closed, Err: errClosed}
	}
	if c.failSends > 0 {
		c.failSends--
		return c.sendErr
	}
	c.sent = append(c.sent, m)
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

func (c *Conn) Receive() (protocol.Message, error) {
	in, ok := <-c.inbox
	if !ok {
		return nil, &protocol.ChannelError{Kind: protocol.Closed, Err: errClosed}
	}
	return in.msg, in.err
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.inbox)
	}
	return nil
}

func (c *Conn) RemoteAddr() string { return c.addr }

// Push queues a message for the next Receive call.
func (c *Conn) Push(m protocol.Message) {
	c.deliver(inbound{msg: m})
}

// PushError makes the next Receive call fail with err.
func (c *Conn) PushError(err error) {
	c.deliver(inbound{err: err})
}

func (c *Conn) deliver(in inbound) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.inbox <- in
}

// FailSends makes the next n Send calls return err without recording.
func (c *Conn) FailSends(n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failSends = n
	c.sendErr = err
}

// Stall blocks every Send of a message accepted by match until the
// returned release func is called.
func (c *Conn) Stall(match func(protocol.Message) bool) (release func()) {
	gate := make(chan struct{})
	c.mu.Lock()
	c.stall, c.stallGate = match, gate
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.stall, c.stallGate = nil, nil
			c.mu.Unlock()
			close(gate)
		})
	}
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Sent returns a copy of everything sent so far.
func (c *Conn) Sent() []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Message, len(c.sent))
	copy(out, c.sent)
	return out
}

// Drain returns everything sent so far and forgets it.
func (c *Conn) Drain() []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.sent
	c.sent = nil
	return out
}

// Notify fires after at least one Send has been recorded.
func (c *Conn) Notify() <-chan struct{} {
	return c.notify
}

// Filter returns the messages of type T in order.
func Filter[T protocol.Message](msgs []protocol.Message) []T {
	var out []T
	for _, m := range msgs {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}
