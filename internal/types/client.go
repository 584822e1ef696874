// internal/types/client.go
package types

import (
	"sync"
	"time"

	"connectfour/internal/protocol"

	"github.com/google/uuid"
)

// Conn is a message-oriented connection. TCP frames and WebSocket text
// messages both satisfy it.
type Conn interface {
	Send(protocol.Message) error
	Receive() (protocol.Message, error)
	Close() error
	RemoteAddr() string
}

// Client is one connected peer. Its identity and status live in the
// session registry, not here.
type Client struct {
	ID          string
	Conn        Conn
	ConnectedAt time.Time
	Once        sync.Once
}

func NewClient(conn Conn) *Client {
	return &Client{
		ID:          uuid.NewString(),
		Conn:        conn,
		ConnectedAt: time.Now(),
	}
}

func (c *Client) Send(m protocol.Message) error {
	return c.Conn.Send(m)
}

// Close shuts the underlying connection once. The worker reading from it
// then observes a closed channel and runs disconnect handling.
func (c *Client) Close() {
	c.Once.Do(func() {
		_ = c.Conn.Close()
	})
}
