package engine

import (
	"errors"
	"math/rand"
)

var ErrNoLegalMoves = errors.New("no legal moves")

// Engine picks the next column for the side to move.
type Engine interface {
	NextMove(g *Game) (int, error)
}

// HeuristicEngine plays a fixed priority list: win now, block an immediate
// loss, prefer the centre, and avoid columns that hand the opponent a win on
// the cell above. Ties are broken at random.
type HeuristicEngine struct {
	rng *rand.Rand
}

func NewHeuristicEngine(seed int64) *HeuristicEngine {
	return &HeuristicEngine{rng: rand.New(rand.NewSource(seed))}
}

func (e *HeuristicEngine) NextMove(g *Game) (int, error) {
	if g.Over() {
		return 0, ErrMatchOver
	}
	return e.Choose(g.Board(), g.Turn())
}

// Choose returns the column the engine plays for me on b.
func (e *HeuristicEngine) Choose(b Board, me Cell) (int, error) {
	legal := b.LegalColumns()
	if len(legal) == 0 {
		return 0, ErrNoLegalMoves
	}
	opp := me.Opponent()

	if wins := winningColumns(b, legal, me); len(wins) > 0 {
		return e.pick(wins), nil
	}
	if blocks := winningColumns(b, legal, opp); len(blocks) > 0 {
		return e.pick(blocks), nil
	}

	var unsafe [Cols]bool
	for _, col := range legal {
		unsafe[col] = opensWinAbove(b, col, me)
	}

	center := Cols / 2
	if b.Legal(center) && !unsafe[center] {
		return center, nil
	}

	safe := make([]int, 0, len(legal))
	for _, col := range legal {
		if !unsafe[col] {
			safe = append(safe, col)
		}
	}
	if len(safe) > 0 {
		return e.pick(safe), nil
	}
	return e.pick(legal), nil
}

func (e *HeuristicEngine) pick(cols []int) int {
	return cols[e.rng.Intn(len(cols))]
}

// winningColumns lists the columns where p would complete a line.
func winningColumns(b Board, legal []int, p Cell) []int {
	var out []int
	for _, col := range legal {
		probe := b
		row := probe.Drop(col, p)
		if row >= 0 && probe.WinsAt(row, col) {
			out = append(out, col)
		}
	}
	return out
}

// opensWinAbove reports whether dropping me into col lets the opponent win
// with the very next token in the same column.
func opensWinAbove(b Board, col int, me Cell) bool {
	probe := b
	row := probe.Drop(col, me)
	if row <= 0 {
		return false
	}
	probe[row-1][col] = me.Opponent()
	return probe.WinsAt(row-1, col)
}

// RandomEngine plays a uniformly random legal column.
type RandomEngine struct {
	rng *rand.Rand
}

func NewRandomEngine(seed int64) *RandomEngine {
	return &RandomEngine{rng: rand.New(rand.NewSource(seed))}
}

func (e *RandomEngine) NextMove(g *Game) (int, error) {
	if g.Over() {
		return 0, ErrMatchOver
	}
	b := g.Board()
	legal := b.LegalColumns()
	if len(legal) == 0 {
		return 0, ErrNoLegalMoves
	}
	return legal[e.rng.Intn(len(legal))], nil
}
