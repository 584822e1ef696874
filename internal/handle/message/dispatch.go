package message

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"connectfour/internal/handle/game"
	"connectfour/internal/protocol"
	"connectfour/internal/types"
	"connectfour/internal/utils"

	"go.uber.org/zap"
)

// Dispatcher runs one worker per connection and routes each decoded
// message to the game controller.
type Dispatcher struct {
	log          *zap.Logger
	ctl          *game.Controller
	maxMalformed int
	connections  atomic.Int64
}

func NewDispatcher(log *zap.Logger, ctl *game.Controller, maxMalformed int) *Dispatcher {
	if maxMalformed < 1 {
		maxMalformed = 1
	}
	return &Dispatcher{
		log:          log.Named("dispatch"),
		ctl:          ctl,
		maxMalformed: maxMalformed,
	}
}

// Connections is the number of workers currently running.
func (d *Dispatcher) Connections() int {
	return int(d.connections.Load())
}

// Serve reads from conn until the peer leaves, the idle timeout fires, too
// many consecutive frames are malformed, or ctx is cancelled. Disconnect
// handling always runs before it returns.
func (d *Dispatcher) Serve(ctx context.Context, conn types.Conn) {
	c := types.NewClient(conn)
	log := d.log.With(zap.String("client", c.ID), zap.String("remote", conn.RemoteAddr()))

	d.connections.Add(1)
	log.Info("client connected")

	stop := context.AfterFunc(ctx, c.Close)
	defer func() {
		stop()
		d.ctl.Disconnect(c)
		d.connections.Add(-1)
		log.Info("client disconnected")
	}()

	malformed := 0
	for {
		msg, err := conn.Receive()
		if err == nil {
			malformed = 0
			d.Handle(ctx, c, msg)
			continue
		}

		var pErr *protocol.ProtocolError
		switch {
		case errors.As(err, &pErr):
			log.Debug("invalid message", zap.Error(err))
			utils.SendError(log, c, err)
		case protocol.IsKind(err, protocol.Malformed):
			malformed++
			log.Warn("malformed frame", zap.Int("consecutive", malformed), zap.Error(err))
			if malformed >= d.maxMalformed {
				log.Warn("too many malformed frames, closing connection")
				return
			}
		case protocol.IsKind(err, protocol.Timeout):
			log.Info("idle timeout")
			return
		default:
			log.Debug("receive ended", zap.Error(err))
			return
		}
	}
}

// Handle routes one message from c. Failures go back to c as ERROR.
func (d *Dispatcher) Handle(ctx context.Context, c *types.Client, msg protocol.Message) {
	var err error
	switch m := msg.(type) {
	case *protocol.JoinQueue:
		err = d.HandleJoinQueue(c, m)
	case *protocol.PlayTurn:
		err = d.HandlePlayTurn(c, m)
	case *protocol.ChatMessage:
		err = d.HandleChat(ctx, c, m)
	default:
		err = &protocol.ProtocolError{
			Code:   protocol.UnknownType,
			Detail: fmt.Sprintf("%s is only sent by the server", msg.Kind()),
		}
	}
	if err != nil {
		d.log.Debug("request rejected",
			zap.String("client", c.ID),
			zap.String("type", string(msg.Kind())),
			zap.Error(err),
		)
		utils.SendError(d.log, c, err)
	}
}
