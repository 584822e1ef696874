package message

import (
	"context"

	"connectfour/internal/protocol"
	"connectfour/internal/types"
)

func (d *Dispatcher) HandleJoinQueue(c *types.Client, req *protocol.JoinQueue) error {
	return d.ctl.Join(c, req.Username, req.PlayWithAI)
}

// HandlePlayTurn ignores the advisory row; gravity decides where the token
// lands.
func (d *Dispatcher) HandlePlayTurn(c *types.Client, req *protocol.PlayTurn) error {
	return d.ctl.PlayTurn(c, req.Col)
}

// HandleChat relays the text under the sender's registered name, whatever
// the client put in the sender field.
func (d *Dispatcher) HandleChat(ctx context.Context, c *types.Client, req *protocol.ChatMessage) error {
	return d.ctl.Chat(ctx, c, req.Message)
}
