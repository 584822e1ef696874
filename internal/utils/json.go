// internal/utils/json.go
package utils

import (
	"connectfour/internal/protocol"

	"go.uber.org/zap"
)

// Sender is anything that can deliver a message to one peer.
type Sender interface {
	Send(protocol.Message) error
}

// SendMessage delivers m and logs a failure instead of returning it. The
// peer's own worker notices a dead connection and cleans up.
func SendMessage(log *zap.Logger, to Sender, m protocol.Message) bool {
	if err := to.Send(m); err != nil {
		log.Debug("send failed", zap.String("type", string(m.Kind())), zap.Error(err))
		return false
	}
	return true
}

// SendError reports err to the peer as an ERROR message. The message text
// starts with the error code so clients can match on it.
func SendError(log *zap.Logger, to Sender, err error) bool {
	if err == nil {
		return true
	}
	return SendMessage(log, to, protocol.Error{Message: err.Error()})
}

// Broadcast sends m to every recipient and returns how many accepted it.
func Broadcast[S Sender](log *zap.Logger, to []S, m protocol.Message) int {
	n := 0
	for _, s := range to {
		if SendMessage(log, s, m) {
			n++
		}
	}
	return n
}

// PeerGone reports whether err means the peer has gone away. Write
// timeouts are not included; a slow peer may still catch up.
func PeerGone(err error) bool {
	return protocol.IsKind(err, protocol.Closed)
}
