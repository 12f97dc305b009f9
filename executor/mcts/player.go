package mcts

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/brensch/nrow/game"
	"github.com/rs/zerolog/log"
)

// PlayTemperature is the near-greedy temperature used outside self-play.
const PlayTemperature = 1e-3

type option func(*Player)

// WithTemperature sets the temperature GetAction searches with.
func WithTemperature(t float64) option {
	return func(p *Player) { p.temperature = t }
}

// WithNoise sets the step applied to the root distribution before a
// self-play move is sampled.
func WithNoise(noise NoiseFunc) option {
	return func(p *Player) { p.noise = noise }
}

// WithSeed seeds move sampling.
func WithSeed(seed uint64) option {
	return func(p *Player) { p.rng = rand.New(rand.NewPCG(seed, seed^0x94d049bb133111eb)) }
}

// Player wraps a guided search. In self-play mode moves are sampled and the
// tree follows the game; otherwise the most probable move is played and the
// tree is discarded after every decision.
type Player struct {
	search      *MCTS
	selfPlay    bool
	temperature float64
	noise       NoiseFunc
	rng         *rand.Rand
	stone       game.Stone

	// rootPly is the move count of the position the root stands for, or -1
	// when the root is fresh.
	rootPly int
}

// NewPlayer creates a guided player.
func NewPlayer(evaluator Evaluator, config Config, selfPlay bool, opts ...option) *Player {
	p := &Player{
		search:      New(evaluator, config),
		selfPlay:    selfPlay,
		temperature: PlayTemperature,
		rootPly:     -1,
	}
	if selfPlay {
		p.temperature = 1
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.rng == nil {
		p.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return p
}

// Search exposes the underlying tree.
func (p *Player) Search() *MCTS { return p.search }

func (p *Player) SetPlayerIndex(s game.Stone) { p.stone = s }

// Reset discards the tree.
func (p *Player) Reset() {
	p.search.UpdateWithMove(game.NoMove)
	p.rootPly = -1
}

func (p *Player) GetAction(ctx context.Context, b *game.Board) (int, error) {
	move, _, err := p.act(ctx, b, p.temperature)
	return move, err
}

func (p *Player) SelfPlayAction(ctx context.Context, b *game.Board, temperature float64) (int, []float64, error) {
	return p.act(ctx, b, temperature)
}

// sync points the root at b. A tree kept from the previous decision is
// reused directly, or advanced by the opponent's reply when exactly one
// move was played since.
func (p *Player) sync(b *game.Board) {
	switch {
	case p.rootPly < 0:
	case p.rootPly == b.MoveCount():
	case p.rootPly+1 == b.MoveCount():
		p.search.UpdateWithMove(b.LastMove())
	default:
		p.search.UpdateWithMove(game.NoMove)
	}
}

func (p *Player) act(ctx context.Context, b *game.Board, temperature float64) (int, []float64, error) {
	if len(b.Available()) == 0 {
		log.Warn().Int("width", b.Width()).Int("height", b.Height()).Msg("the board is full")
		return game.NoMove, nil, game.ErrBoardFull
	}
	p.sync(b)

	actions, probs, err := p.search.MoveProbabilities(ctx, b, temperature)
	if err != nil {
		return game.NoMove, nil, err
	}
	dense := make([]float64, b.Size())
	for i, a := range actions {
		dense[a] = probs[i]
	}

	var move int
	if p.selfPlay {
		choose := probs
		if p.noise != nil {
			choose = p.noise(append([]float64(nil), probs...))
		}
		move = actions[sampleIndex(p.rng, choose)]
		p.search.UpdateWithMove(move)
		p.rootPly = b.MoveCount() + 1
	} else {
		move = actions[argmax(probs)]
		p.Reset()
	}
	return move, dense, nil
}

func (p *Player) String() string { return fmt.Sprintf("MCTS %v", p.stone) }

// PurePlayer wraps a rollout search. The tree is discarded after every move.
type PurePlayer struct {
	search *PureMCTS
	stone  game.Stone
}

// NewPurePlayer creates a rollout player.
func NewPurePlayer(config PureConfig, seed uint64) *PurePlayer {
	return &PurePlayer{search: NewPure(config, seed)}
}

// Search exposes the underlying tree.
func (p *PurePlayer) Search() *PureMCTS { return p.search }

func (p *PurePlayer) SetPlayerIndex(s game.Stone) { p.stone = s }
func (p *PurePlayer) Reset()                      { p.search.UpdateWithMove(game.NoMove) }

func (p *PurePlayer) GetAction(ctx context.Context, b *game.Board) (int, error) {
	if len(b.Available()) == 0 {
		log.Warn().Int("width", b.Width()).Int("height", b.Height()).Msg("the board is full")
		return game.NoMove, game.ErrBoardFull
	}
	move, err := p.search.GetMove(ctx, b)
	if err != nil {
		return game.NoMove, err
	}
	p.Reset()
	return move, nil
}

func (p *PurePlayer) String() string { return fmt.Sprintf("MCTS %v", p.stone) }
