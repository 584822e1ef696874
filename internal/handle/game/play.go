package game

import (
	"fmt"
	"time"

	"connectfour/internal/db"
	"connectfour/internal/engine"
	"connectfour/internal/protocol"
	"connectfour/internal/session"
	"connectfour/internal/types"
	"connectfour/internal/utils"

	"go.uber.org/zap"
)

// PlayTurn applies cl's move and, in an AI match, the AI's reply. The
// returned error is meant for the client; nothing changes when it is set.
func (c *Controller) PlayTurn(cl *types.Client, col int) error {
	m, ok := c.matches.ByClient(cl)
	if !ok {
		return errNotInMatch
	}

	m.Lock()
	player, _ := m.PlayerOf(cl)
	if m.Closed() || !m.Announced(player) {
		m.Unlock()
		return errNotInMatch
	}
	mv, err := m.Game.Play(col, player)
	if err != nil {
		m.Unlock()
		return err
	}
	over := c.afterMoveLocked(m, mv)
	m.Unlock()

	if over {
		c.finish(m)
		return nil
	}
	if m.HasAI() {
		c.runAI(m)
	}
	return nil
}

// runAI makes AI moves while it is the AI's turn. The thinking delay is
// spent without the match lock and the turn is checked again afterwards.
func (c *Controller) runAI(m *session.Match) {
	for {
		m.Lock()
		_, ok := aiToMoveLocked(m)
		m.Unlock()
		if !ok {
			return
		}

		if c.opts.AIMoveDelay > 0 {
			time.Sleep(c.opts.AIMoveDelay)
		}

		m.Lock()
		ai, ok := aiToMoveLocked(m)
		if !ok {
			m.Unlock()
			return
		}
		over, err := c.playAILocked(m, ai)
		m.Unlock()

		if err != nil {
			c.log.Error("ai move failed", zap.String("match", m.ID), zap.Error(err))
			return
		}
		if over {
			c.finish(m)
			return
		}
	}
}

func aiToMoveLocked(m *session.Match) (session.AISlot, bool) {
	if m.Closed() || m.Game.Over() {
		return session.AISlot{}, false
	}
	ai, ok := m.Slot(m.Game.Turn()).(session.AISlot)
	return ai, ok
}

// playAILocked makes one AI move and reports whether it ended the game.
func (c *Controller) playAILocked(m *session.Match, ai session.AISlot) (bool, error) {
	col, err := ai.Engine.NextMove(m.Game)
	if err != nil {
		return false, err
	}
	mv, err := m.Game.Play(col, m.Game.Turn())
	if err != nil {
		return false, fmt.Errorf("illegal column %d: %w", col, err)
	}
	return c.afterMoveLocked(m, mv), nil
}

// afterMoveLocked publishes the board after an accepted move and announces
// the result when the game is over. It reports whether this call ended the
// match.
func (c *Controller) afterMoveLocked(m *session.Match, mv engine.Move) bool {
	if m.Closed() {
		return false
	}
	c.log.Debug("move",
		zap.String("match", m.ID),
		zap.Int("player", int(mv.Player)),
		zap.Int("row", mv.Row),
		zap.Int("col", mv.Col),
	)

	humans := m.Humans()
	update := protocol.GameUpdate{Board: m.Game.Grid(), CurrentPlayer: int(m.Game.Turn())}
	for _, h := range humans {
		utils.SendMessage(c.log, h.Client, update)
	}

	if !m.Game.Over() {
		c.recorder.Record(matchEvent(m, db.MatchMoved))
		return false
	}
	if !m.Close() {
		return false
	}

	end := protocol.EndGame{}
	if m.Game.State() == engine.Won {
		end.Winner = protocol.IntPtr(int(m.Game.Winner()))
	}
	for _, h := range humans {
		utils.SendMessage(c.log, h.Client, end)
	}
	c.log.Info("match over",
		zap.String("match", m.ID),
		zap.String("state", m.Game.State().String()),
		zap.Int("winner", int(m.Game.Winner())),
	)
	return true
}

// finish removes a match that ended on the board. Its players stay
// connected and become idle.
func (c *Controller) finish(m *session.Match) {
	c.mu.Lock()
	r := c.teardownLocked(m, nil, nil)
	c.mu.Unlock()
	c.release(r)
}

// teardown is the part of removing a match that runs after mu is
// released: the final snapshot, notices and requeueing need the match lock
// or network I/O.
type teardown struct {
	match     *session.Match
	abandoned bool
	notice    error
	survivors []session.HumanSlot
}

// teardownLocked removes m from the table exactly once. If the game was
// still running every remaining human is marked queued, otherwise idle.
// leaver is skipped. The returned teardown must be passed to release once
// mu is unlocked; it is nil if another caller got there first.
func (c *Controller) teardownLocked(m *session.Match, leaver *types.Client, notice error) *teardown {
	if !c.matches.Delete(m.ID) {
		return nil
	}
	t := &teardown{match: m, abandoned: m.Close(), notice: notice}

	status := session.Idle
	if t.abandoned {
		status = session.Queued
	}
	for _, h := range m.Humans() {
		if h.Client == leaver {
			continue
		}
		if c.registry.SetStatus(h.Client, status, "") {
			t.survivors = append(t.survivors, h)
		}
	}
	return t
}

// release finishes a teardown. Notices go out under the match lock so they
// follow every earlier message of that match; survivors of an abandoned
// match join the back of the queue only after being told.
func (c *Controller) release(t *teardown) {
	if t == nil {
		return
	}
	m := t.match
	now := time.Now()

	m.Lock()
	ev := matchEvent(m, db.MatchEnded)
	if t.abandoned && t.notice != nil {
		for _, h := range t.survivors {
			if p, _ := m.PlayerOf(h.Client); m.Announced(p) {
				sendError(c.log, h.Client, t.notice)
			}
		}
	}
	m.Unlock()

	if t.abandoned {
		ev.Outcome = db.OutcomeAbandoned
		ev.Winner = 0
		c.log.Info("match abandoned", zap.String("match", m.ID))
	}
	c.recorder.Record(ev)

	if !t.abandoned {
		for _, h := range t.survivors {
			c.recorder.Record(db.PlayerEvent{Username: h.Player, State: db.PlayerIdle, At: now})
		}
		return
	}

	var requeued []session.HumanSlot
	c.mu.Lock()
	for _, h := range t.survivors {
		if id, ok := c.registry.Lookup(h.Client); ok && id.Status == session.Queued {
			c.queue.Enqueue(h.Client)
			requeued = append(requeued, h)
		}
	}
	c.mu.Unlock()

	for _, h := range requeued {
		c.recorder.Record(db.PlayerEvent{Username: h.Player, State: db.PlayerQueued, At: now})
	}
}

func (c *Controller) recordStart(m *session.Match) {
	for _, h := range m.Humans() {
		c.recorder.Record(db.PlayerEvent{Username: h.Player, State: db.PlayerPlaying, At: m.StartedAt})
	}
	c.recorder.Record(matchEvent(m, db.MatchStarted))
}

// matchEvent snapshots m for the recorder. The caller holds the match lock
// or owns the match exclusively.
func matchEvent(m *session.Match, phase db.MatchPhase) db.MatchEvent {
	ev := db.MatchEvent{
		Phase:         phase,
		MatchID:       m.ID,
		Board:         m.Game.Grid(),
		CurrentPlayer: int(m.Game.Turn()),
		StartedAt:     m.StartedAt,
		At:            time.Now(),
	}
	if h, ok := m.Slots[0].(session.HumanSlot); ok {
		ev.Player1 = h.Player
	}
	if h, ok := m.Slots[1].(session.HumanSlot); ok {
		ev.Player2 = h.Player
	}
	if phase != db.MatchEnded {
		return ev
	}

	switch m.Game.State() {
	case engine.Won:
		ev.Outcome = db.OutcomeWin
		ev.Winner = int(m.Game.Winner())
	case engine.Drawn:
		ev.Outcome = db.OutcomeDraw
	default:
		ev.Outcome = db.OutcomeAbandoned
	}
	for _, mv := range m.Game.Moves() {
		ev.Moves = append(ev.Moves, db.MoveRecord{Player: int(mv.Player), Row: mv.Row, Col: mv.Col})
	}
	return ev
}
