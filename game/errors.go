package game

import "errors"

var (
	// ErrConfiguration reports board dimensions or match settings that can
	// never produce a valid game.
	ErrConfiguration = errors.New("invalid game configuration")

	// ErrIllegalAction reports a move outside the current available set.
	ErrIllegalAction = errors.New("illegal action")

	// ErrBoardFull is returned by players asked to move on a full board.
	ErrBoardFull = errors.New("board is full")
)
