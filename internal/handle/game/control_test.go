package game

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"connectfour/internal/config"
	"connectfour/internal/db"
	"connectfour/internal/engine"
	"connectfour/internal/protocol"
	"connectfour/internal/session"
	"connectfour/internal/types"
	"connectfour/internal/types/typestest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type memRecorder struct {
	mu     sync.Mutex
	events []db.Event
}

func (r *memRecorder) Record(ev db.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *memRecorder) matchEvents(phase db.MatchPhase) []db.MatchEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []db.MatchEvent
	for _, ev := range r.events {
		if me, ok := ev.(db.MatchEvent); ok && me.Phase == phase {
			out = append(out, me)
		}
	}
	return out
}

var (
	errPeerClosed = &protocol.ChannelError{Kind: protocol.Closed, Err: io.EOF}
	errSlowPeer   = &protocol.ChannelError{Kind: protocol.Timeout, Err: errors.New("write deadline")}
)

func testOptions() Options {
	return Options{
		QueueInterval:    10 * time.Millisecond,
		AISide:           config.AISideSecond,
		AIEngine:         config.AIEngineHeuristic,
		AIName:           "AI",
		AIPhrases:        []string{"gg"},
		ChatRetries:      3,
		ChatRetryBackoff: time.Millisecond,
	}
}

func newController(t *testing.T, opts Options) (*Controller, *memRecorder) {
	t.Helper()
	rec := &memRecorder{}
	return NewController(zaptest.NewLogger(t), opts, rec), rec
}

func join(t *testing.T, ctl *Controller, name string, playWithAI bool) (*types.Client, *typestest.Conn) {
	t.Helper()
	conn := typestest.NewConn(name)
	cl := types.NewClient(conn)
	require.NoError(t, ctl.Join(cl, name, playWithAI))
	return cl, conn
}

type player struct {
	cl   *types.Client
	conn *typestest.Conn
}

// startPair queues two humans and runs one matchmaking cycle. The first
// returned player is player 1.
func startPair(t *testing.T, ctl *Controller) (player, player) {
	t.Helper()
	a, connA := join(t, ctl, "alice", false)
	b, connB := join(t, ctl, "bob", false)
	ctl.Tick()
	require.Len(t, typestest.Filter[protocol.StartMatch](connA.Drain()), 1)
	require.Len(t, typestest.Filter[protocol.StartMatch](connB.Drain()), 1)
	return player{a, connA}, player{b, connB}
}

func status(t *testing.T, ctl *Controller, cl *types.Client) session.Status {
	t.Helper()
	id, ok := ctl.registry.Lookup(cl)
	require.True(t, ok)
	return id.Status
}

func TestPairingTwoHumans(t *testing.T) {
	ctl, rec := newController(t, testOptions())
	a, connA := join(t, ctl, "alice", false)
	b, connB := join(t, ctl, "bob", false)
	connA.Drain()
	connB.Drain()

	ctl.Tick()

	sentA := connA.Drain()
	updates := typestest.Filter[protocol.QueueUpdate](sentA)
	require.NotEmpty(t, updates)
	assert.Equal(t, 2, updates[0].QueueSize)

	startA := typestest.Filter[protocol.StartMatch](sentA)
	require.Len(t, startA, 1)
	assert.Equal(t, 1, startA[0].Player)
	assert.Equal(t, "bob", startA[0].Opponent)
	assert.Equal(t, engine.EmptyGrid(), startA[0].Board)

	startB := typestest.Filter[protocol.StartMatch](connB.Drain())
	require.Len(t, startB, 1)
	assert.Equal(t, 2, startB[0].Player)
	assert.Equal(t, "alice", startB[0].Opponent)

	assert.Equal(t, session.InMatch, status(t, ctl, a))
	assert.Equal(t, session.InMatch, status(t, ctl, b))
	assert.Equal(t, Stats{Players: 2, Queued: 0, Matches: 1}, ctl.Stats())
	assert.Len(t, rec.matchEvents(db.MatchStarted), 1)
}

func TestJoinSendsQueueSize(t *testing.T) {
	ctl, _ := newController(t, testOptions())
	_, connA := join(t, ctl, "alice", false)

	updates := typestest.Filter[protocol.QueueUpdate](connA.Drain())
	require.Len(t, updates, 1)
	assert.Equal(t, 1, updates[0].QueueSize)

	join(t, ctl, "bob", false)
	updates = typestest.Filter[protocol.QueueUpdate](connA.Drain())
	require.Len(t, updates, 1)
	assert.Equal(t, 2, updates[0].QueueSize)
}

func TestLoneHumanWithoutAIWaits(t *testing.T) {
	ctl, _ := newController(t, testOptions())
	_, conn := join(t, ctl, "alice", false)
	conn.Drain()

	ctl.Tick()
	ctl.Tick()

	assert.Empty(t, typestest.Filter[protocol.StartMatch](conn.Sent()))
	assert.Len(t, typestest.Filter[protocol.QueueUpdate](conn.Sent()), 2)
	assert.Equal(t, 1, ctl.Stats().Queued)
}

func TestPairsEveryAvailableCouple(t *testing.T) {
	ctl, _ := newController(t, testOptions())
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		join(t, ctl, name, false)
	}
	ctl.Tick()
	assert.Equal(t, Stats{Players: 5, Queued: 1, Matches: 2}, ctl.Stats())
}

func TestRejectedMovesChangeNothing(t *testing.T) {
	ctl, _ := newController(t, testOptions())
	a, b := startPair(t, ctl)

	err := ctl.PlayTurn(b.cl, 0)
	assert.ErrorIs(t, err, engine.ErrNotYourTurn)

	err = ctl.PlayTurn(a.cl, 7)
	assert.ErrorIs(t, err, engine.ErrColumnOutOfRange)

	for i := 0; i < 3; i++ {
		require.NoError(t, ctl.PlayTurn(a.cl, 3))
		require.NoError(t, ctl.PlayTurn(b.cl, 3))
	}
	a.conn.Drain()
	b.conn.Drain()

	err = ctl.PlayTurn(a.cl, 3)
	assert.ErrorIs(t, err, engine.ErrColumnFull)
	assert.Empty(t, a.conn.Sent(), "no update after a rejected move")
	assert.Empty(t, b.conn.Sent())

	require.NoError(t, ctl.PlayTurn(a.cl, 4), "player 1 keeps the turn")
}

func TestMovesBroadcastToBoth(t *testing.T) {
	ctl, rec := newController(t, testOptions())
	a, b := startPair(t, ctl)

	require.NoError(t, ctl.PlayTurn(a.cl, 3))

	for _, p := range []player{a, b} {
		updates := typestest.Filter[protocol.GameUpdate](p.conn.Drain())
		require.Len(t, updates, 1)
		assert.Equal(t, 1, updates[0].Board[engine.Rows-1][3])
		assert.Equal(t, 2, updates[0].CurrentPlayer)
	}
	assert.Len(t, rec.matchEvents(db.MatchMoved), 1)
}

func TestVerticalWinEndsMatch(t *testing.T) {
	ctl, rec := newController(t, testOptions())
	a, b := startPair(t, ctl)

	seq := []struct {
		p   player
		col int
	}{
		{a, 1}, {b, 0}, {a, 1}, {b, 0}, {a, 2}, {b, 0}, {a, 6}, {b, 0},
	}
	for _, mv := range seq {
		require.NoError(t, ctl.PlayTurn(mv.p.cl, mv.col))
	}

	for _, p := range []player{a, b} {
		sent := p.conn.Drain()
		require.NotEmpty(t, sent)
		end, ok := sent[len(sent)-1].(protocol.EndGame)
		require.True(t, ok, "END_GAME comes last")
		require.NotNil(t, end.Winner)
		assert.Equal(t, 2, *end.Winner)

		updates := typestest.Filter[protocol.GameUpdate](sent)
		final := updates[len(updates)-1].Board
		for row := 2; row < engine.Rows; row++ {
			assert.Equal(t, 2, final[row][0])
		}
	}

	assert.ErrorIs(t, ctl.PlayTurn(a.cl, 3), session.ErrNotInMatch)
	assert.ErrorIs(t, ctl.PlayTurn(b.cl, 3), session.ErrNotInMatch)
	assert.Equal(t, session.Idle, status(t, ctl, a.cl))
	assert.Equal(t, session.Idle, status(t, ctl, b.cl))
	assert.Zero(t, ctl.Stats().Matches)

	ended := rec.matchEvents(db.MatchEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, db.OutcomeWin, ended[0].Outcome)
	assert.Equal(t, 2, ended[0].Winner)
	assert.Len(t, ended[0].Moves, len(seq))
	assert.Equal(t, "alice", ended[0].Player1)
	assert.Equal(t, "bob", ended[0].Player2)
}

func TestDrawEndsWithNullWinner(t *testing.T) {
	ctl, rec := newController(t, testOptions())
	a, b := startPair(t, ctl)

	order := []int{
		0, 1, 0, 1, 0, 1,
		1, 0, 1, 0, 1, 0,
		2, 3, 2, 3, 2, 3,
		3, 2, 3, 2, 3, 2,
		4, 5, 4, 5, 4, 5,
		5, 4, 5, 4, 5, 4,
		6, 6, 6, 6, 6, 6,
	}
	for i, col := range order {
		p := a
		if i%2 == 1 {
			p = b
		}
		require.NoError(t, ctl.PlayTurn(p.cl, col), "move %d", i)
	}

	ends := typestest.Filter[protocol.EndGame](a.conn.Sent())
	require.Len(t, ends, 1)
	assert.Nil(t, ends[0].Winner)

	ended := rec.matchEvents(db.MatchEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, db.OutcomeDraw, ended[0].Outcome)
}

func TestAIMovesFirst(t *testing.T) {
	opts := testOptions()
	opts.AISide = config.AISideFirst
	ctl, _ := newController(t, opts)
	_, conn := join(t, ctl, "alice", true)
	conn.Drain()

	ctl.Tick()

	sent := conn.Drain()
	starts := typestest.Filter[protocol.StartMatch](sent)
	require.Len(t, starts, 1)
	assert.Equal(t, 2, starts[0].Player)
	assert.Equal(t, "AI", starts[0].Opponent)

	updates := typestest.Filter[protocol.GameUpdate](sent)
	require.Len(t, updates, 1)
	assert.Equal(t, 1, updates[0].Board[engine.Rows-1][engine.Cols/2], "AI opens in the centre")
	assert.Equal(t, 2, updates[0].CurrentPlayer)
}

func TestAIRepliesToEveryMove(t *testing.T) {
	ctl, _ := newController(t, testOptions())
	cl, conn := join(t, ctl, "alice", true)
	ctl.Tick()

	starts := typestest.Filter[protocol.StartMatch](conn.Drain())
	require.Len(t, starts, 1)
	assert.Equal(t, 1, starts[0].Player)

	require.NoError(t, ctl.PlayTurn(cl, 0))
	updates := typestest.Filter[protocol.GameUpdate](conn.Drain())
	require.Len(t, updates, 2, "human move then AI move")
	assert.Equal(t, 1, updates[1].CurrentPlayer)
}

func TestAIMatchPlaysToTheEnd(t *testing.T) {
	ctl, rec := newController(t, testOptions())
	cl, conn := join(t, ctl, "alice", true)
	ctl.Tick()

	for moves := 0; moves < engine.Rows*engine.Cols; moves++ {
		if len(typestest.Filter[protocol.EndGame](conn.Sent())) > 0 {
			break
		}
		played := false
		for col := 0; col < engine.Cols && !played; col++ {
			err := ctl.PlayTurn(cl, col)
			if err == nil {
				played = true
				continue
			}
			require.ErrorIs(t, err, engine.ErrColumnFull)
		}
		require.True(t, played)
	}

	require.Len(t, typestest.Filter[protocol.EndGame](conn.Sent()), 1)
	assert.Equal(t, session.Idle, status(t, ctl, cl))
	ended := rec.matchEvents(db.MatchEnded)
	require.Len(t, ended, 1)
	assert.Empty(t, ended[0].Player2)
}

func TestDisconnectRequeuesOpponent(t *testing.T) {
	ctl, rec := newController(t, testOptions())
	a, b := startPair(t, ctl)

	ctl.Disconnect(a.cl)
	ctl.Disconnect(a.cl)

	assert.True(t, a.conn.Closed())
	errs := typestest.Filter[protocol.Error](b.conn.Drain())
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "disconnected")
	assert.Equal(t, session.Queued, status(t, ctl, b.cl))
	assert.False(t, ctl.registry.Active(a.cl))

	ended := rec.matchEvents(db.MatchEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, db.OutcomeAbandoned, ended[0].Outcome)

	_, connC := join(t, ctl, "carol", false)
	ctl.Tick()

	startB := typestest.Filter[protocol.StartMatch](b.conn.Drain())
	require.Len(t, startB, 1)
	assert.Equal(t, "carol", startB[0].Opponent)
	assert.Equal(t, 1, startB[0].Player)
	require.Len(t, typestest.Filter[protocol.StartMatch](connC.Drain()), 1)
}

func TestDisconnectAfterMatchEndedSendsNothing(t *testing.T) {
	ctl, _ := newController(t, testOptions())
	a, b := startPair(t, ctl)
	for _, col := range []int{0, 1, 0, 1, 0, 1, 0} {
		p := a
		if col == 1 {
			p = b
		}
		require.NoError(t, ctl.PlayTurn(p.cl, col))
	}
	b.conn.Drain()

	ctl.Disconnect(a.cl)
	assert.Empty(t, b.conn.Sent())
	assert.Equal(t, session.Idle, status(t, ctl, b.cl))
}

func TestDisconnectWhileQueued(t *testing.T) {
	ctl, _ := newController(t, testOptions())
	a, _ := join(t, ctl, "alice", false)
	_, connB := join(t, ctl, "bob", false)
	connB.Drain()

	ctl.Disconnect(a)

	updates := typestest.Filter[protocol.QueueUpdate](connB.Drain())
	require.Len(t, updates, 1)
	assert.Equal(t, 1, updates[0].QueueSize)

	_, _, err := ctl.registry.Register(types.NewClient(typestest.NewConn("x")), "alice", false)
	assert.NoError(t, err, "the name is free again")
}

func TestJoinValidation(t *testing.T) {
	ctl, _ := newController(t, testOptions())
	join(t, ctl, "alice", false)

	cl := types.NewClient(typestest.NewConn("dup"))
	assert.ErrorIs(t, ctl.Join(cl, "alice", false), session.ErrDuplicateName)

	var pErr *protocol.ProtocolError
	require.ErrorAs(t, ctl.Join(cl, "   ", false), &pErr)
	assert.Equal(t, protocol.MissingField, pErr.Code)
	assert.Equal(t, 1, ctl.Stats().Players)
}

func TestRejoinKeepsOrMovesQueuePosition(t *testing.T) {
	ctl, _ := newController(t, testOptions())
	a, _ := join(t, ctl, "alice", false)
	b, _ := join(t, ctl, "bob", false)
	c, _ := join(t, ctl, "carol", false)

	require.NoError(t, ctl.Join(a, "alice", true))
	assert.Equal(t, []*types.Client{a, b, c}, ctl.queue.Snapshot())
	id, _ := ctl.registry.Lookup(a)
	assert.True(t, id.PlayWithAI)

	require.NoError(t, ctl.Join(a, "alicia", false))
	assert.Equal(t, []*types.Client{b, c, a}, ctl.queue.Snapshot())
}

func TestRejoinDuringMatchForfeitsIt(t *testing.T) {
	ctl, _ := newController(t, testOptions())
	a, b := startPair(t, ctl)

	require.NoError(t, ctl.Join(a.cl, "alice", false))

	errs := typestest.Filter[protocol.Error](b.conn.Drain())
	require.Len(t, errs, 1)
	assert.ErrorContains(t, ErrOpponentLeft, errs[0].Message)
	assert.Equal(t, []*types.Client{b.cl, a.cl}, ctl.queue.Snapshot())
	assert.Zero(t, ctl.Stats().Matches)
}

func TestFailedStartRequeuesReachableSide(t *testing.T) {
	ctl, _ := newController(t, testOptions())
	a, connA := join(t, ctl, "alice", false)
	b, connB := join(t, ctl, "bob", false)
	connA.Drain()
	// the queue broadcast and START_MATCH both fail for bob
	connB.FailSends(2, errPeerClosed)

	ctl.Tick()

	sentA := connA.Drain()
	require.Len(t, typestest.Filter[protocol.StartMatch](sentA), 1)
	errs := typestest.Filter[protocol.Error](sentA)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "MatchAborted")

	assert.Equal(t, []*types.Client{a}, ctl.queue.Snapshot())
	assert.Equal(t, session.Queued, status(t, ctl, a))
	assert.Equal(t, session.Idle, status(t, ctl, b))
	assert.True(t, connB.Closed())
	assert.Zero(t, ctl.Stats().Matches)
}

func TestChatRelay(t *testing.T) {
	ctl, _ := newController(t, testOptions())
	a, b := startPair(t, ctl)

	require.NoError(t, ctl.Chat(context.Background(), a.cl, "good luck"))
	chats := typestest.Filter[protocol.ChatMessage](b.conn.Drain())
	require.Len(t, chats, 1)
	assert.Equal(t, protocol.ChatMessage{Sender: "alice", Message: "good luck"}, chats[0])
	assert.Empty(t, typestest.Filter[protocol.ChatMessage](a.conn.Sent()))
}

func TestChatRetries(t *testing.T) {
	ctl, _ := newController(t, testOptions())
	a, b := startPair(t, ctl)

	b.conn.FailSends(2, errSlowPeer)
	require.NoError(t, ctl.Chat(context.Background(), a.cl, "third time lucky"))
	assert.Len(t, typestest.Filter[protocol.ChatMessage](b.conn.Drain()), 1)

	b.conn.FailSends(3, errSlowPeer)
	err := ctl.Chat(context.Background(), a.cl, "lost")
	assert.ErrorIs(t, err, ErrMessageFailed)
	assert.Contains(t, err.Error(), "after 3 attempts")

	b.conn.FailSends(3, errPeerClosed)
	err = ctl.Chat(context.Background(), a.cl, "gone")
	assert.ErrorIs(t, err, ErrMessageFailed)
	assert.Contains(t, err.Error(), "after 1 attempts")
}

func TestChatWithAI(t *testing.T) {
	ctl, _ := newController(t, testOptions())
	cl, conn := join(t, ctl, "alice", true)
	ctl.Tick()
	conn.Drain()

	require.NoError(t, ctl.Chat(context.Background(), cl, "hello"))
	chats := typestest.Filter[protocol.ChatMessage](conn.Drain())
	require.Len(t, chats, 1)
	assert.Equal(t, protocol.ChatMessage{Sender: "AI", Message: "gg"}, chats[0])
}

func TestChatOutsideMatch(t *testing.T) {
	ctl, _ := newController(t, testOptions())
	cl, _ := join(t, ctl, "alice", false)
	assert.ErrorIs(t, ctl.Chat(context.Background(), cl, "anyone?"), session.ErrNotInMatch)
	assert.ErrorIs(t, ctl.PlayTurn(cl, 0), session.ErrNotInMatch)
}

func TestRunPairsOnTicker(t *testing.T) {
	ctl, _ := newController(t, testOptions())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctl.Run(ctx) }()

	_, connA := join(t, ctl, "alice", false)
	join(t, ctl, "bob", false)

	require.Eventually(t, func() bool {
		return len(typestest.Filter[protocol.StartMatch](connA.Sent())) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestConcurrentJoinsAndDisconnects(t *testing.T) {
	ctl, _ := newController(t, testOptions())
	names := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				ctl.Tick()
			}
		}
	}()

	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			cl := types.NewClient(typestest.NewConn(name))
			if err := ctl.Join(cl, name, true); err != nil {
				t.Error(err)
				return
			}
			_ = ctl.PlayTurn(cl, 3)
			_ = ctl.Chat(context.Background(), cl, "hi")
			ctl.Disconnect(cl)
		}(name)
	}
	wg.Wait()
	close(stop)

	assert.Equal(t, Stats{}, ctl.Stats())
}

func isStartMatch(m protocol.Message) bool {
	_, ok := m.(protocol.StartMatch)
	return ok
}

func TestStalledStartDoesNotBlockOtherClients(t *testing.T) {
	ctl, _ := newController(t, testOptions())
	_, connA := join(t, ctl, "alice", false)
	_, connB := join(t, ctl, "bob", false)
	release := connB.Stall(isStartMatch)
	defer release()

	done := make(chan struct{})
	go func() {
		ctl.Tick()
		close(done)
	}()
	require.Eventually(t, func() bool {
		return len(typestest.Filter[protocol.StartMatch](connA.Sent())) == 1
	}, time.Second, time.Millisecond)

	begin := time.Now()
	carol, _ := join(t, ctl, "carol", false)
	ctl.Disconnect(carol)
	assert.Less(t, time.Since(begin), 100*time.Millisecond)

	select {
	case <-done:
		t.Fatal("tick finished while START_MATCH was still stalled")
	default:
	}

	release()
	<-done
	assert.Len(t, typestest.Filter[protocol.StartMatch](connB.Sent()), 1)
	assert.Equal(t, 1, ctl.Stats().Matches)
}

func TestAIThinkingDoesNotBlockDisconnect(t *testing.T) {
	opts := testOptions()
	opts.AISide = config.AISideFirst
	opts.AIMoveDelay = 300 * time.Millisecond
	ctl, rec := newController(t, opts)
	cl, conn := join(t, ctl, "alice", true)

	done := make(chan struct{})
	go func() {
		ctl.Tick()
		close(done)
	}()
	require.Eventually(t, func() bool {
		return len(typestest.Filter[protocol.StartMatch](conn.Sent())) == 1
	}, time.Second, time.Millisecond)

	begin := time.Now()
	ctl.Disconnect(cl)
	join(t, ctl, "bob", false)
	assert.Less(t, time.Since(begin), 100*time.Millisecond)

	<-done
	assert.Empty(t, typestest.Filter[protocol.GameUpdate](conn.Sent()), "the AI does not move in a closed match")
	assert.Zero(t, ctl.Stats().Matches)
	ended := rec.matchEvents(db.MatchEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, db.OutcomeAbandoned, ended[0].Outcome)
}

func TestDisconnectDuringAnnouncement(t *testing.T) {
	ctl, _ := newController(t, testOptions())
	a, connA := join(t, ctl, "alice", false)
	b, connB := join(t, ctl, "bob", false)
	connA.Drain()
	release := connA.Stall(isStartMatch)
	defer release()

	done := make(chan struct{})
	go func() {
		ctl.Tick()
		close(done)
	}()
	require.Eventually(t, func() bool { return ctl.Stats().Matches == 1 }, time.Second, time.Millisecond)

	left := make(chan struct{})
	go func() {
		ctl.Disconnect(b)
		close(left)
	}()
	require.Eventually(t, func() bool { return ctl.Stats().Matches == 0 }, time.Second, time.Millisecond)

	release()
	<-done
	<-left

	sentA := connA.Sent()
	require.Len(t, sentA, 3, "queue update, START_MATCH, then the notice")
	_, ok := sentA[1].(protocol.StartMatch)
	assert.True(t, ok)
	notice, ok := sentA[2].(protocol.Error)
	require.True(t, ok)
	assert.Contains(t, notice.Message, "disconnected")

	assert.Empty(t, typestest.Filter[protocol.StartMatch](connB.Sent()), "bob is not announced a dead match")
	assert.Equal(t, []*types.Client{a}, ctl.queue.Snapshot())
	assert.Equal(t, session.Queued, status(t, ctl, a))
}
