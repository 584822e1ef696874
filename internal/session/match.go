package session

import (
	"sync"
	"sync/atomic"
	"time"

	"connectfour/internal/engine"
	"connectfour/internal/types"
)

// Slot is one side of a match: either a connected human or the AI.
type Slot interface {
	Name() string
	slot()
}

type HumanSlot struct {
	Client *types.Client
	Player string
}

type AISlot struct {
	Engine engine.Engine
	Player string
}

func (s HumanSlot) Name() string { return s.Player }
func (s AISlot) Name() string    { return s.Player }
func (HumanSlot) slot()          {}
func (AISlot) slot()             {}

// Match is a running game between two slots. Slots[0] plays PlayerOne.
// Callers lock the match while touching Game; Slots never change.
type Match struct {
	sync.Mutex

	ID        string
	Game      *engine.Game
	Slots     [2]Slot
	StartedAt time.Time

	announced [2]bool
	closed    atomic.Bool
}

func NewMatch(id string, one, two Slot) *Match {
	return &Match{
		ID:        id,
		Game:      engine.New(),
		Slots:     [2]Slot{one, two},
		StartedAt: time.Now(),
	}
}

// Slot returns the slot playing p.
func (m *Match) Slot(p engine.Cell) Slot {
	switch p {
	case engine.PlayerOne:
		return m.Slots[0]
	case engine.PlayerTwo:
		return m.Slots[1]
	default:
		return nil
	}
}

// PlayerOf returns the side c plays in this match.
func (m *Match) PlayerOf(c *types.Client) (engine.Cell, bool) {
	for i, s := range m.Slots {
		if h, ok := s.(HumanSlot); ok && h.Client == c {
			return engine.Cell(i + 1), true
		}
	}
	return engine.Empty, false
}

// Humans lists the connected participants in player order.
func (m *Match) Humans() []HumanSlot {
	var out []HumanSlot
	for _, s := range m.Slots {
		if h, ok := s.(HumanSlot); ok {
			out = append(out, h)
		}
	}
	return out
}

func (m *Match) HasAI() bool {
	for _, s := range m.Slots {
		if _, ok := s.(AISlot); ok {
			return true
		}
	}
	return false
}

// Announce records that the human playing p has been sent START_MATCH.
// The caller holds the match lock.
func (m *Match) Announce(p engine.Cell) {
	if p == engine.PlayerOne || p == engine.PlayerTwo {
		m.announced[p-1] = true
	}
}

// Announced reports whether p has been told the match started. The caller
// holds the match lock.
func (m *Match) Announced(p engine.Cell) bool {
	if p != engine.PlayerOne && p != engine.PlayerTwo {
		return false
	}
	return m.announced[p-1]
}

// Close marks the match as finished or abandoned. It returns false if the
// match was already closed.
func (m *Match) Close() bool {
	return m.closed.CompareAndSwap(false, true)
}

func (m *Match) Closed() bool {
	return m.closed.Load()
}
