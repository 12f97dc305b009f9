package game

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/rs/zerolog/log"
)

// FirstAvailablePlayer always plays the lowest free cell.
type FirstAvailablePlayer struct {
	stone Stone
}

func (p *FirstAvailablePlayer) SetPlayerIndex(s Stone) { p.stone = s }
func (p *FirstAvailablePlayer) Reset()                 {}

func (p *FirstAvailablePlayer) GetAction(_ context.Context, b *Board) (int, error) {
	avail := b.Available()
	if len(avail) == 0 {
		log.Warn().Msg("the board is full")
		return NoMove, ErrBoardFull
	}
	return avail[0], nil
}

func (p *FirstAvailablePlayer) String() string { return fmt.Sprintf("first-available %v", p.stone) }

// SequencePlayer replays a fixed list of moves. When the next scripted move
// is already occupied it is skipped; once the script is exhausted the player
// falls back to the first available cell.
type SequencePlayer struct {
	stone Stone
	moves []int
	next  int
}

func NewSequencePlayer(moves ...int) *SequencePlayer {
	return &SequencePlayer{moves: moves}
}

func (p *SequencePlayer) SetPlayerIndex(s Stone) { p.stone = s }
func (p *SequencePlayer) Reset()                 { p.next = 0 }

func (p *SequencePlayer) GetAction(_ context.Context, b *Board) (int, error) {
	avail := b.Available()
	if len(avail) == 0 {
		log.Warn().Msg("the board is full")
		return NoMove, ErrBoardFull
	}
	for p.next < len(p.moves) {
		m := p.moves[p.next]
		p.next++
		if b.IsLegal(m) {
			return m, nil
		}
	}
	return avail[0], nil
}

func (p *SequencePlayer) String() string { return fmt.Sprintf("sequence %v", p.stone) }

// RandomPlayer picks uniformly among the available cells.
type RandomPlayer struct {
	stone Stone
	rng   *rand.Rand
}

func NewRandomPlayer(seed uint64) *RandomPlayer {
	return &RandomPlayer{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (p *RandomPlayer) SetPlayerIndex(s Stone) { p.stone = s }
func (p *RandomPlayer) Reset()                 {}

func (p *RandomPlayer) GetAction(_ context.Context, b *Board) (int, error) {
	avail := b.Available()
	if len(avail) == 0 {
		log.Warn().Msg("the board is full")
		return NoMove, ErrBoardFull
	}
	return avail[p.rng.IntN(len(avail))], nil
}

func (p *RandomPlayer) String() string { return fmt.Sprintf("random %v", p.stone) }
