package game

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
)

// Player is anything that can choose a move for the board it is handed.
type Player interface {
	// SetPlayerIndex tells the player which stone it plays.
	SetPlayerIndex(p Stone)
	// GetAction returns an available cell. Implementations return
	// ErrBoardFull when there is nothing to play.
	GetAction(ctx context.Context, b *Board) (int, error)
	// Reset discards any per-game state such as a search tree.
	Reset()
}

// SelfPlayer is a player that can also report the move distribution it used,
// as needed to record supervised targets during self-play.
type SelfPlayer interface {
	Player
	// SelfPlayAction returns the chosen move and a dense probability vector
	// of length b.Size() with zeros at illegal cells.
	SelfPlayAction(ctx context.Context, b *Board, temperature float64) (int, []float64, error)
}

// Sample is one recorded self-play ply.
type Sample struct {
	Planes []float32 // FeaturePlanes before the move
	Probs  []float64 // move probabilities, length width*height
	Player Stone     // player to move
	Value  float64   // +1 if Player eventually won, -1 if lost, 0 for a draw
}

// Game drives matches on a single board.
type Game struct {
	board   *Board
	out     io.Writer
	observe func(b *Board, move int)
}

// NewGame wraps board. Rendered boards are written to stdout when a match is
// started with show set.
func NewGame(board *Board) *Game {
	return &Game{board: board, out: os.Stdout}
}

// SetOutput redirects board rendering.
func (g *Game) SetOutput(w io.Writer) { g.out = w }

// SetObserver registers f to be called after every move is applied. f must
// not modify the board.
func (g *Game) SetObserver(f func(b *Board, move int)) { g.observe = f }

// Board returns the live board.
func (g *Game) Board() *Board { return g.board }

func (g *Game) show(p1, p2 Player) {
	fmt.Fprintf(g.out, "Player %v with X\nPlayer %v with O\n%s\n", p1, p2, g.board)
}

// StartMatch plays p1 (P1) against p2 (P2) until the game ends and returns
// the winner or Draw. startPlayer is 0 for p1 first, 1 for p2 first. Both
// players are reset before the first move.
func (g *Game) StartMatch(ctx context.Context, p1, p2 Player, startPlayer int, show bool) (Stone, error) {
	if err := g.board.InitBoard(startPlayer); err != nil {
		return Empty, err
	}
	p1.SetPlayerIndex(P1)
	p2.SetPlayerIndex(P2)
	p1.Reset()
	p2.Reset()
	byStone := map[Stone]Player{P1: p1, P2: p2}

	if show {
		g.show(p1, p2)
	}

	for {
		if err := ctx.Err(); err != nil {
			return Empty, err
		}
		current := g.board.CurrentPlayer()
		move, err := byStone[current].GetAction(ctx, g.board)
		if err != nil {
			return Empty, fmt.Errorf("%v to move: %w", current, err)
		}
		if err := g.board.DoMove(move); err != nil {
			return Empty, fmt.Errorf("%v played: %w", current, err)
		}
		if g.observe != nil {
			g.observe(g.board, move)
		}
		if show {
			g.show(p1, p2)
		}

		if end, winner := g.board.IsTerminal(); end {
			if show {
				if winner == Draw {
					fmt.Fprintln(g.out, "Game end. Tie")
				} else {
					fmt.Fprintf(g.out, "Game end. Winner is %v\n", byStone[winner])
				}
			}
			return winner, nil
		}
	}
}

// StartSelfPlay lets player play both sides from a fresh board and returns
// the winner together with one Sample per ply. Values are back-filled once
// the outcome is known. The player is reset before returning.
func (g *Game) StartSelfPlay(ctx context.Context, player SelfPlayer, temperature float64, show bool) (Stone, []Sample, error) {
	if err := g.board.InitBoard(0); err != nil {
		return Empty, nil, err
	}
	defer player.Reset()

	samples := make([]Sample, 0, g.board.Size())
	for {
		if err := ctx.Err(); err != nil {
			return Empty, nil, err
		}
		move, probs, err := player.SelfPlayAction(ctx, g.board, temperature)
		if err != nil {
			if errors.Is(err, ErrBoardFull) {
				log.Warn().Int("width", g.board.Width()).Int("height", g.board.Height()).Msg("self-play asked to move on a full board")
			}
			return Empty, nil, err
		}
		samples = append(samples, Sample{
			Planes: g.board.FeaturePlanes(),
			Probs:  probs,
			Player: g.board.CurrentPlayer(),
		})

		if err := g.board.DoMove(move); err != nil {
			return Empty, nil, err
		}
		if g.observe != nil {
			g.observe(g.board, move)
		}
		if show {
			g.show(player, player)
		}

		end, winner := g.board.IsTerminal()
		if !end {
			continue
		}

		for i := range samples {
			switch {
			case winner == Draw:
				samples[i].Value = 0
			case samples[i].Player == winner:
				samples[i].Value = 1
			default:
				samples[i].Value = -1
			}
		}
		if show {
			if winner == Draw {
				fmt.Fprintln(g.out, "Game end. Tie")
			} else {
				fmt.Fprintf(g.out, "Game end. Winner is player: %v\n", winner)
			}
		}
		return winner, samples, nil
	}
}
