package game

import (
	"context"
	"fmt"

	"connectfour/internal/protocol"
	"connectfour/internal/session"
	"connectfour/internal/types"
	"connectfour/internal/utils"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Chat relays text to cl's opponent, retrying transient send failures. An
// AI opponent answers with one of its canned phrases.
func (c *Controller) Chat(ctx context.Context, cl *types.Client, text string) error {
	m, ok := c.matches.ByClient(cl)
	if !ok || m.Closed() {
		return errNotInMatch
	}
	me, _ := m.PlayerOf(cl)
	sender := m.Slot(me).Name()

	switch peer := m.Slot(me.Opponent()).(type) {
	case session.HumanSlot:
		msg := protocol.ChatMessage{Sender: sender, Message: text}
		res := utils.Retry(ctx, c.opts.ChatRetries, c.opts.ChatRetryBackoff, func() error {
			err := peer.Client.Send(msg)
			if utils.PeerGone(err) {
				return backoff.Permanent(err)
			}
			return err
		})
		if !res.OK() {
			c.log.Warn("chat not delivered",
				zap.String("match", m.ID),
				zap.String("from", sender),
				zap.Int("attempts", res.Attempts),
				zap.Error(res.Err),
			)
			return fmt.Errorf("%w after %d attempts", ErrMessageFailed, res.Attempts)
		}
		return nil

	case session.AISlot:
		utils.SendMessage(c.log, cl, protocol.ChatMessage{Sender: peer.Name(), Message: c.phrase()})
		return nil
	}
	return errNotInMatch
}
