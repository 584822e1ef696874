package engine

import "fmt"

type State int

const (
	InProgress State = iota
	Won
	Drawn
)

func (s State) String() string {
	switch s {
	case InProgress:
		return "in_progress"
	case Won:
		return "won"
	case Drawn:
		return "drawn"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type ErrorCode int

const (
	NotYourTurn ErrorCode = iota
	ColumnFull
	ColumnOutOfRange
	MatchOver
)

func (c ErrorCode) String() string {
	switch c {
	case NotYourTurn:
		return "NotYourTurn"
	case ColumnFull:
		return "ColumnFull"
	case ColumnOutOfRange:
		return "ColumnOutOfRange"
	case MatchOver:
		return "MatchOver"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

// GameError is a rejected move. It matches the Err* sentinels with
// errors.Is by code.
type GameError struct {
	Code   ErrorCode
	Detail string
}

func (e *GameError) Error() string {
	if e.Detail == "" {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Detail
}

func (e *GameError) Is(target error) bool {
	t, ok := target.(*GameError)
	return ok && t.Code == e.Code
}

var (
	ErrNotYourTurn      = &GameError{Code: NotYourTurn}
	ErrColumnFull       = &GameError{Code: ColumnFull}
	ErrColumnOutOfRange = &GameError{Code: ColumnOutOfRange}
	ErrMatchOver        = &GameError{Code: MatchOver}
)

type Move struct {
	Player Cell
	Row    int
	Col    int
}

// Game is one Connect Four match. It is not safe for concurrent use; the
// owning match serializes access.
type Game struct {
	board  Board
	turn   Cell
	state  State
	winner Cell
	moves  []Move
}

// New returns an empty game with PlayerOne to move.
func New() *Game {
	return &Game{turn: PlayerOne}
}

func (g *Game) Board() Board   { return g.board }
func (g *Game) Grid() [][]int  { return g.board.Grid() }
func (g *Game) Turn() Cell     { return g.turn }
func (g *Game) State() State   { return g.state }
func (g *Game) Winner() Cell   { return g.winner }
func (g *Game) Over() bool     { return g.state != InProgress }
func (g *Game) MoveCount() int { return len(g.moves) }

func (g *Game) Moves() []Move {
	out := make([]Move, len(g.moves))
	copy(out, g.moves)
	return out
}

// Play drops a token for actor into col. The turn passes to the opponent
// unless the move ends the game, in which case Turn keeps the last mover.
func (g *Game) Play(col int, actor Cell) (Move, error) {
	if g.state != InProgress {
		return Move{}, &GameError{Code: MatchOver, Detail: "the match has already ended"}
	}
	if col < 0 || col >= Cols {
		return Move{}, &GameError{Code: ColumnOutOfRange, Detail: fmt.Sprintf("column %d is outside 0..%d", col, Cols-1)}
	}
	row := g.board.LowestEmpty(col)
	if row < 0 {
		return Move{}, &GameError{Code: ColumnFull, Detail: fmt.Sprintf("column %d is full", col)}
	}
	if actor != g.turn {
		return Move{}, &GameError{Code: NotYourTurn, Detail: fmt.Sprintf("waiting for player %d", int(g.turn))}
	}

	g.board[row][col] = actor
	mv := Move{Player: actor, Row: row, Col: col}
	g.moves = append(g.moves, mv)

	switch {
	case g.board.WinsAt(row, col):
		g.state = Won
		g.winner = actor
	case g.board.Full():
		g.state = Drawn
	default:
		g.turn = actor.Opponent()
	}
	return mv, nil
}
