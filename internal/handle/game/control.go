package game

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"connectfour/internal/config"
	"connectfour/internal/db"
	"connectfour/internal/engine"
	"connectfour/internal/protocol"
	"connectfour/internal/session"
	"connectfour/internal/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	QueueInterval    time.Duration
	AISide           string
	AIEngine         string
	AIName           string
	AIMoveDelay      time.Duration
	AIPhrases        []string
	ChatRetries      int
	ChatRetryBackoff time.Duration
}

// OptionsFromConfig copies the game settings out of the server config.
func OptionsFromConfig(cfg *config.ConfigStruct) Options {
	return Options{
		QueueInterval:    cfg.QueueInterval,
		AISide:           cfg.AISide,
		AIEngine:         cfg.AIEngine,
		AIName:           cfg.AIName,
		AIMoveDelay:      cfg.AIMoveDelay,
		AIPhrases:        cfg.AIPhrases,
		ChatRetries:      cfg.ChatRetries,
		ChatRetryBackoff: cfg.ChatRetryBackoff,
	}
}

// Controller owns the registry, the queue and the match table and applies
// every state transition the clients and the matchmaking loop request.
//
// Lock order: mu, then the structure locks inside session. A match lock
// is never taken while mu is held and mu is never taken while a match lock
// is held, so sends made under a match lock stall only that match. Nothing
// is sent while mu is held.
type Controller struct {
	log      *zap.Logger
	opts     Options
	registry *session.Registry
	queue    *session.Queue
	matches  *session.Matches
	recorder db.Recorder

	// mu serializes membership changes: join, pairing, disconnect and
	// match teardown. It is held only for in-memory updates.
	mu sync.Mutex

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewController(log *zap.Logger, opts Options, recorder db.Recorder) *Controller {
	if recorder == nil {
		recorder = db.Nop{}
	}
	if opts.QueueInterval <= 0 {
		opts.QueueInterval = time.Second
	}
	if opts.ChatRetries < 1 {
		opts.ChatRetries = 1
	}
	if opts.AIName == "" {
		opts.AIName = "AI"
	}
	if len(opts.AIPhrases) == 0 {
		opts.AIPhrases = config.DefaultAIPhrases
	}
	return &Controller{
		log:      log.Named("game"),
		opts:     opts,
		registry: session.NewRegistry(),
		queue:    session.NewQueue(),
		matches:  session.NewMatches(),
		recorder: recorder,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

type Stats struct {
	Players int `json:"players"`
	Queued  int `json:"queued"`
	Matches int `json:"matches"`
}

func (c *Controller) Stats() Stats {
	return Stats{
		Players: c.registry.Count(),
		Queued:  c.queue.Len(),
		Matches: c.matches.Count(),
	}
}

// Run ticks the matchmaker until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	c.log.Info("matchmaking started", zap.Duration("interval", c.opts.QueueInterval))

	ticker := time.NewTicker(c.opts.QueueInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Tick()
		case <-ctx.Done():
			c.log.Info("matchmaking stopped")
			return nil
		}
	}
}

// Tick runs one matchmaking cycle: report the queue size to everyone
// waiting, pair clients from the front of the queue, or start an AI match
// for a lone client that asked for one. Matches are formed under mu and
// announced after it is released, each on its own goroutine.
func (c *Controller) Tick() {
	c.broadcastQueueSize()

	var formed []pairing
	c.mu.Lock()
	if c.queue.Len() < 2 {
		if p, ok := c.startAIMatchLocked(); ok {
			formed = append(formed, p)
		}
	}
	for c.queue.Len() >= 2 {
		if p, ok := c.pairLocked(); ok {
			formed = append(formed, p)
		}
	}
	c.mu.Unlock()

	var g errgroup.Group
	for _, p := range formed {
		p := p
		g.Go(func() error {
			c.announce(p)
			return nil
		})
	}
	_ = g.Wait()
}

// pairing is a match that is in the table but not yet announced. seats
// holds the queue entry of the human in each player slot.
type pairing struct {
	match *session.Match
	seats [2]*session.Entry
}

// pairLocked pops the two oldest entries and forms a match between them.
// Every call removes at least one client from the queue.
func (c *Controller) pairLocked() (pairing, bool) {
	a, b, ok := c.queue.PopPair()
	if !ok {
		return pairing{}, false
	}
	if a.Client == b.Client {
		c.queue.Requeue(a)
		return pairing{}, false
	}

	idA, okA := c.registry.Lookup(a.Client)
	idB, okB := c.registry.Lookup(b.Client)
	if !okA || !okB {
		var keep []session.Entry
		if okA {
			keep = append(keep, a)
		}
		if okB {
			keep = append(keep, b)
		}
		c.queue.Requeue(keep...)
		return pairing{}, false
	}

	m := session.NewMatch(uuid.NewString(),
		session.HumanSlot{Client: a.Client, Player: idA.Name},
		session.HumanSlot{Client: b.Client, Player: idB.Name},
	)
	c.matches.Add(m)
	c.registry.SetStatus(a.Client, session.InMatch, m.ID)
	c.registry.SetStatus(b.Client, session.InMatch, m.ID)
	return pairing{match: m, seats: [2]*session.Entry{&a, &b}}, true
}

// startAIMatchLocked pairs the only queued client with the AI when that
// client opted in.
func (c *Controller) startAIMatchLocked() (pairing, bool) {
	e, ok := c.queue.PopSolo(func(cl *types.Client) bool {
		id, ok := c.registry.Lookup(cl)
		return ok && id.PlayWithAI
	})
	if !ok {
		return pairing{}, false
	}
	id, ok := c.registry.Lookup(e.Client)
	if !ok {
		return pairing{}, false
	}

	human := session.HumanSlot{Client: e.Client, Player: id.Name}
	ai := session.AISlot{Engine: c.newEngine(), Player: c.opts.AIName}

	p := pairing{}
	if c.humanSide() == engine.PlayerOne {
		p.match = session.NewMatch(uuid.NewString(), human, ai)
		p.seats[0] = &e
	} else {
		p.match = session.NewMatch(uuid.NewString(), ai, human)
		p.seats[1] = &e
	}
	c.matches.Add(p.match)
	c.registry.SetStatus(e.Client, session.InMatch, p.match.ID)
	return p, true
}

// announce sends START_MATCH to every human seat in player order and lets
// the AI open if it plays first. A failed delivery aborts the match.
func (c *Controller) announce(p pairing) {
	m := p.match
	log := c.log.With(zap.String("match", m.ID))

	m.Lock()
	for i, seat := range m.Slots {
		if m.Closed() {
			m.Unlock()
			return
		}
		h, ok := seat.(session.HumanSlot)
		if !ok {
			continue
		}
		player := engine.Cell(i + 1)
		start := protocol.StartMatch{
			Player:   int(player),
			Board:    engine.EmptyGrid(),
			Opponent: m.Slot(player.Opponent()).Name(),
		}
		if err := h.Client.Send(start); err != nil {
			m.Unlock()
			log.Warn("start match not delivered", zap.String("player", h.Player), zap.Error(err))
			c.abort(p, player)
			return
		}
		m.Announce(player)
	}
	c.recordStart(m)
	m.Unlock()

	log.Info("match started",
		zap.String("player1", m.Slots[0].Name()),
		zap.String("player2", m.Slots[1].Name()),
		zap.Bool("ai", m.HasAI()),
	)
	if m.HasAI() {
		c.runAI(m)
	}
}

// abort undoes a match whose START_MATCH could not reach failed. The
// unreachable side is closed; the other goes back to the head of the queue,
// told why if it had already been sent START_MATCH.
func (c *Controller) abort(p pairing, failed engine.Cell) {
	m := p.match

	c.mu.Lock()
	owned := c.matches.Delete(m.ID)
	if owned {
		m.Close()
		for i, e := range p.seats {
			if e == nil {
				continue
			}
			if engine.Cell(i+1) == failed {
				c.registry.SetStatus(e.Client, session.Idle, "")
			} else {
				c.registry.SetStatus(e.Client, session.Queued, "")
			}
		}
	}
	c.mu.Unlock()

	if e := p.seats[failed-1]; e != nil {
		e.Client.Close()
	}
	if !owned {
		// a disconnect tore the match down first
		return
	}

	var back []session.Entry
	m.Lock()
	for i, e := range p.seats {
		player := engine.Cell(i + 1)
		if e == nil || player == failed {
			continue
		}
		if m.Announced(player) {
			sendError(c.log, e.Client, ErrOpponentUnreachable)
		}
		back = append(back, *e)
	}
	m.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	var keep []session.Entry
	for _, e := range back {
		if id, ok := c.registry.Lookup(e.Client); ok && id.Status == session.Queued {
			keep = append(keep, e)
		}
	}
	c.queue.Requeue(keep...)
}

func (c *Controller) humanSide() engine.Cell {
	switch c.opts.AISide {
	case config.AISideFirst:
		return engine.PlayerTwo
	case config.AISideSecond:
		return engine.PlayerOne
	}
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return engine.Cell(1 + c.rng.Intn(2))
}

func (c *Controller) newEngine() engine.Engine {
	c.rngMu.Lock()
	seed := c.rng.Int63()
	c.rngMu.Unlock()

	if c.opts.AIEngine == config.AIEngineRandom {
		return engine.NewRandomEngine(seed)
	}
	return engine.NewHeuristicEngine(seed)
}

func (c *Controller) phrase() string {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return c.opts.AIPhrases[c.rng.Intn(len(c.opts.AIPhrases))]
}
