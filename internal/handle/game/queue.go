package game

import (
	"strings"
	"time"

	"connectfour/internal/db"
	"connectfour/internal/protocol"
	"connectfour/internal/session"
	"connectfour/internal/types"
	"connectfour/internal/utils"

	"go.uber.org/zap"
)

// Join registers cl under name and queues it. A client that is already
// queued under the same name keeps its place; a new name sends it to the
// back. A client still in a match forfeits it first, and its opponent is
// requeued ahead of it.
func (c *Controller) Join(cl *types.Client, name string, playWithAI bool) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &protocol.ProtocolError{Code: protocol.MissingField, Detail: "username"}
	}

	c.mu.Lock()
	prev, existed, err := c.registry.Register(cl, name, playWithAI)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	var forfeited *teardown
	if existed {
		switch prev.Status {
		case session.Queued:
			if prev.Name != name {
				c.queue.Remove(cl)
			}
		case session.InMatch:
			if m, ok := c.matches.ByClient(cl); ok {
				forfeited = c.teardownLocked(m, cl, ErrOpponentLeft)
			}
		}
	}
	if forfeited != nil {
		c.mu.Unlock()
		c.release(forfeited)
		c.mu.Lock()
	}
	queued := c.registry.SetStatus(cl, session.Queued, "")
	if queued {
		c.queue.Enqueue(cl)
	}
	c.mu.Unlock()

	if !queued {
		return nil
	}
	c.log.Info("player queued",
		zap.String("client", cl.ID),
		zap.String("player", name),
		zap.Bool("play_with_ai", playWithAI),
	)
	c.recorder.Record(db.PlayerEvent{Username: name, State: db.PlayerQueued, At: time.Now()})
	c.broadcastQueueSize()
	return nil
}

// Disconnect forgets cl everywhere. An opponent still playing is told and
// goes back to the queue. Calling it twice is harmless.
func (c *Controller) Disconnect(cl *types.Client) {
	c.mu.Lock()
	id, registered := c.registry.Unregister(cl)
	dequeued := c.queue.Remove(cl)
	var abandoned *teardown
	if m, ok := c.matches.ByClient(cl); ok {
		abandoned = c.teardownLocked(m, cl, ErrOpponentDisconnected)
	}
	c.mu.Unlock()

	c.release(abandoned)
	cl.Close()

	if registered {
		c.log.Info("player left",
			zap.String("client", cl.ID),
			zap.String("player", id.Name),
			zap.Duration("connected", time.Since(cl.ConnectedAt)),
		)
		c.recorder.Record(db.PlayerEvent{Username: id.Name, State: db.PlayerIdle, At: time.Now()})
	}
	if dequeued {
		c.broadcastQueueSize()
	}
}

func (c *Controller) broadcastQueueSize() {
	queued := c.queue.Snapshot()
	if len(queued) == 0 {
		return
	}
	utils.Broadcast(c.log, queued, protocol.QueueUpdate{QueueSize: len(queued)})
}
