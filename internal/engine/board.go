package engine

const (
	Rows      = 6
	Cols      = 7
	WinLength = 4
)

// Cell is the content of one board position and doubles as the player
// identity: PlayerOne owns cells marked 1, PlayerTwo cells marked 2.
type Cell int

const (
	Empty Cell = iota
	PlayerOne
	PlayerTwo
)

// Opponent returns the other player. Empty has no opponent.
func (c Cell) Opponent() Cell {
	switch c {
	case PlayerOne:
		return PlayerTwo
	case PlayerTwo:
		return PlayerOne
	default:
		return Empty
	}
}

// Board is indexed [row][col]; row 0 is the top, row Rows-1 the bottom.
type Board [Rows][Cols]Cell

// axes through a cell, each checked forwards and backwards.
var axes = [4][2]int{
	{0, 1},  // horizontal
	{1, 0},  // vertical
	{1, 1},  // diagonal down-right
	{1, -1}, // diagonal down-left
}

func inBounds(row, col int) bool {
	return row >= 0 && row < Rows && col >= 0 && col < Cols
}

// LowestEmpty returns the row a token dropped into col would land on, or -1
// when the column is full or out of range.
func (b *Board) LowestEmpty(col int) int {
	if col < 0 || col >= Cols {
		return -1
	}
	for row := Rows - 1; row >= 0; row-- {
		if b[row][col] == Empty {
			return row
		}
	}
	return -1
}

func (b *Board) Legal(col int) bool {
	return b.LowestEmpty(col) >= 0
}

// LegalColumns lists the non-full columns in ascending order.
func (b *Board) LegalColumns() []int {
	cols := make([]int, 0, Cols)
	for col := 0; col < Cols; col++ {
		if b[0][col] == Empty {
			cols = append(cols, col)
		}
	}
	return cols
}

// Drop places p into col under gravity and returns the landing row, or -1.
func (b *Board) Drop(col int, p Cell) int {
	row := b.LowestEmpty(col)
	if row < 0 {
		return -1
	}
	b[row][col] = p
	return row
}

// WinsAt reports whether the token at (row, col) completes a line of
// WinLength. Only the four axes through that cell are inspected.
func (b *Board) WinsAt(row, col int) bool {
	if !inBounds(row, col) {
		return false
	}
	p := b[row][col]
	if p == Empty {
		return false
	}
	for _, axis := range axes {
		count := 1
		count += b.run(row, col, axis[0], axis[1], p)
		count += b.run(row, col, -axis[0], -axis[1], p)
		if count >= WinLength {
			return true
		}
	}
	return false
}

func (b *Board) run(row, col, dr, dc int, p Cell) int {
	n := 0
	for r, c := row+dr, col+dc; inBounds(r, c) && b[r][c] == p; r, c = r+dr, c+dc {
		n++
	}
	return n
}

// Full reports whether no column accepts another token.
func (b *Board) Full() bool {
	for col := 0; col < Cols; col++ {
		if b[0][col] == Empty {
			return false
		}
	}
	return true
}

// Grid copies the board into the nested-slice form used on the wire.
func (b *Board) Grid() [][]int {
	grid := make([][]int, Rows)
	for row := range grid {
		grid[row] = make([]int, Cols)
		for col := range grid[row] {
			grid[row][col] = int(b[row][col])
		}
	}
	return grid
}

func EmptyGrid() [][]int {
	var b Board
	return b.Grid()
}
