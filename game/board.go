// Package game defines the N-in-a-row board state machine and the match
// orchestrator that drives two players against it.
//
// The board is designed to be cheaply clonable: search never mutates a live
// board, it replays moves on deep copies instead.
package game

import (
	"fmt"
	"slices"
)

// Stone identifies the occupant of a cell or the player to move.
type Stone int8

const (
	// Draw is returned by IsTerminal when the board filled up without a winner.
	Draw  Stone = -1
	Empty Stone = 0
	P1    Stone = 1
	P2    Stone = 2
)

// NoMove is the sentinel for "no observed move". It never names a cell.
const NoMove = -1

var players = [2]Stone{P1, P2}

// Opponent returns the other player. Empty and Draw map to themselves.
func (s Stone) Opponent() Stone {
	switch s {
	case P1:
		return P2
	case P2:
		return P1
	default:
		return s
	}
}

func (s Stone) String() string {
	switch s {
	case P1:
		return "P1"
	case P2:
		return "P2"
	case Draw:
		return "draw"
	default:
		return "empty"
	}
}

// Board is an R x C grid where the first player to line up WinLength stones
// horizontally, vertically or diagonally wins.
//
// Cells are addressed by index row*Width + column.
type Board struct {
	width     int
	height    int
	winLength int

	cells     []Stone // dense occupancy, Empty for unplayed cells
	available []int   // sorted unoccupied cell indices
	played    []int   // move history in play order
	current   Stone
	lastMove  int
}

// NewBoard constructs a board and initialises it with P1 to move.
func NewBoard(width, height, winLength int) (*Board, error) {
	b := &Board{width: width, height: height, winLength: winLength}
	if err := b.InitBoard(0); err != nil {
		return nil, err
	}
	return b, nil
}

// InitBoard resets all mutable state. startPlayer is 0 for P1 first, 1 for P2.
func (b *Board) InitBoard(startPlayer int) error {
	if b.width <= 0 || b.height <= 0 || b.winLength <= 0 {
		return fmt.Errorf("%w: board %dx%d with win length %d", ErrConfiguration, b.width, b.height, b.winLength)
	}
	if b.width < b.winLength || b.height < b.winLength {
		return fmt.Errorf("%w: board width and height can not be less than %d", ErrConfiguration, b.winLength)
	}
	if startPlayer != 0 && startPlayer != 1 {
		return fmt.Errorf("%w: start player should be 0 or 1, got %d", ErrConfiguration, startPlayer)
	}

	size := b.width * b.height
	b.cells = make([]Stone, size)
	b.available = make([]int, size)
	for i := range b.available {
		b.available[i] = i
	}
	b.played = make([]int, 0, size)
	b.current = players[startPlayer]
	b.lastMove = NoMove
	return nil
}

func (b *Board) Width() int     { return b.width }
func (b *Board) Height() int    { return b.height }
func (b *Board) WinLength() int { return b.winLength }
func (b *Board) Size() int      { return b.width * b.height }

// CurrentPlayer returns the player about to move.
func (b *Board) CurrentPlayer() Stone { return b.current }

// LastMove returns the most recent action, or NoMove on a fresh board.
func (b *Board) LastMove() int { return b.lastMove }

// MoveCount returns the number of stones on the board.
func (b *Board) MoveCount() int { return len(b.played) }

// Available returns the unoccupied cells in ascending order. The slice is
// owned by the board and must not be modified.
func (b *Board) Available() []int { return b.available }

// History returns a copy of the moves played so far.
func (b *Board) History() []int { return slices.Clone(b.played) }

// At returns the occupant of a cell.
func (b *Board) At(action int) Stone {
	if action < 0 || action >= len(b.cells) {
		return Empty
	}
	return b.cells[action]
}

// IsLegal reports whether action is an unoccupied cell.
func (b *Board) IsLegal(action int) bool {
	return action >= 0 && action < len(b.cells) && b.cells[action] == Empty
}

// DoMove places the current player's stone on action and passes the turn.
func (b *Board) DoMove(action int) error {
	if !b.IsLegal(action) {
		return fmt.Errorf("%w: %d", ErrIllegalAction, action)
	}
	idx, found := slices.BinarySearch(b.available, action)
	if !found {
		return fmt.Errorf("%w: %d not available", ErrIllegalAction, action)
	}
	b.available = slices.Delete(b.available, idx, idx+1)
	b.cells[action] = b.current
	b.played = append(b.played, action)
	b.current = b.current.Opponent()
	b.lastMove = action
	return nil
}

// MoveToLocation converts a cell index into (row, column).
func (b *Board) MoveToLocation(action int) (row, col int, err error) {
	if action < 0 || action >= b.Size() {
		return 0, 0, fmt.Errorf("%w: %d outside %dx%d board", ErrIllegalAction, action, b.width, b.height)
	}
	return action / b.width, action % b.width, nil
}

// LocationToMove converts (row, column) into a cell index.
func (b *Board) LocationToMove(row, col int) (int, error) {
	if row < 0 || row >= b.height || col < 0 || col >= b.width {
		return NoMove, fmt.Errorf("%w: location (%d,%d) outside %dx%d board", ErrIllegalAction, row, col, b.width, b.height)
	}
	return row*b.width + col, nil
}

// directions are (row, column) steps: horizontal, vertical, diagonal, anti-diagonal.
var directions = [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}

// HasWinner scans every played cell for a run of WinLength identical stones
// starting at that cell.
func (b *Board) HasWinner() (bool, Stone) {
	n := b.winLength
	// Not scanned until WinLength+2 moves have been played.
	if len(b.played) < n+2 {
		return false, Empty
	}

	for _, m := range b.played {
		row, col := m/b.width, m%b.width
		player := b.cells[m]
		for _, d := range directions {
			endRow := row + (n-1)*d[0]
			endCol := col + (n-1)*d[1]
			if endRow < 0 || endRow >= b.height || endCol < 0 || endCol >= b.width {
				continue
			}
			run := 1
			for k := 1; k < n; k++ {
				if b.cells[(row+k*d[0])*b.width+col+k*d[1]] != player {
					break
				}
				run++
			}
			if run == n {
				return true, player
			}
		}
	}
	return false, Empty
}

// IsTerminal reports whether the game is over. The second value is the
// winner, or Draw when the board is full without one.
func (b *Board) IsTerminal() (bool, Stone) {
	if win, winner := b.HasWinner(); win {
		return true, winner
	}
	if len(b.available) == 0 {
		return true, Draw
	}
	return false, Empty
}

// Clone performs a deep copy of the board.
func (b *Board) Clone() *Board {
	if b == nil {
		return nil
	}
	return &Board{
		width:     b.width,
		height:    b.height,
		winLength: b.winLength,
		cells:     slices.Clone(b.cells),
		available: slices.Clone(b.available),
		played:    slices.Clone(b.played),
		current:   b.current,
		lastMove:  b.lastMove,
	}
}
