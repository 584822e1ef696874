package websocket

import (
	"sync"
	"time"

	"connectfour/internal/protocol"

	"github.com/gorilla/websocket"
)

// wsConn carries one protocol message per WebSocket text message. A
// gorilla connection is unusable after any write error, so the first
// failed send closes it and later sends fail as Closed.
type wsConn struct {
	conn         *websocket.Conn
	idleTimeout  time.Duration
	writeTimeout time.Duration

	writeMu   sync.Mutex
	broken    bool
	closeOnce sync.Once
}

func newConn(conn *websocket.Conn, idleTimeout, writeTimeout time.Duration) *wsConn {
	conn.SetReadLimit(protocol.MaxFrameSize)
	return &wsConn{
		conn:         conn,
		idleTimeout:  idleTimeout,
		writeTimeout: writeTimeout,
	}
}

func (c *wsConn) Send(m protocol.Message) error {
	body, err := protocol.Encode(m)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.broken {
		return &protocol.ChannelError{Kind: protocol.Closed, Err: protocol.ErrBroken}
	}
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, body); err != nil {
		c.broken = true
		_ = c.conn.Close()
		return &protocol.ChannelError{Kind: protocol.Closed, Err: err}
	}
	return nil
}

func (c *wsConn) Receive() (protocol.Message, error) {
	if c.idleTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
	}
	kind, body, err := c.conn.ReadMessage()
	if err != nil {
		return nil, protocol.Classify(err)
	}
	if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
		return nil, &protocol.ChannelError{Kind: protocol.Malformed}
	}
	return protocol.Decode(body)
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *wsConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
