package mcts

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/brensch/nrow/game"
	"github.com/brensch/nrow/metrics"
	"github.com/rs/zerolog/log"
)

// PureConfig configures the rollout baseline.
type PureConfig struct {
	Cpuct        float64
	Playouts     int
	RolloutLimit int // moves per rollout before it is scored as a draw
}

// DefaultPureConfig returns c_puct 5, 1000 playouts and a rollout limit of 1000.
func DefaultPureConfig() PureConfig {
	return PureConfig{Cpuct: 5, Playouts: 1000, RolloutLimit: 1000}
}

// PureMCTS searches with uniform priors and scores leaves by random rollout.
// It needs nothing but the board.
type PureMCTS struct {
	tree
	Config PureConfig
	rng    *rand.Rand
}

// NewPure creates a rollout search seeded for reproducible play.
func NewPure(config PureConfig, seed uint64) *PureMCTS {
	return &PureMCTS{
		tree:   newTree(),
		Config: config,
		rng:    rand.New(rand.NewPCG(seed, seed^0x2545f4914f6cdd1d)),
	}
}

func (m *PureMCTS) playout(b *game.Board) error {
	node := m.root
	for !node.IsLeaf() {
		action, child := node.Select(m.Config.Cpuct)
		if err := b.DoMove(action); err != nil {
			return fmt.Errorf("replaying tree path: %w", err)
		}
		node = child
	}
	if d := node.depth(); d > m.stats.MaxDepth {
		m.stats.MaxDepth = d
	}

	if end, _ := b.IsTerminal(); !end {
		node.Expand(uniformPriors(b))
	}
	node.UpdateRecursive(-m.rollout(b))
	return nil
}

// rollout plays uniformly random moves from b until the game ends and scores
// the result for the player to move at the start.
func (m *PureMCTS) rollout(b *game.Board) float64 {
	player := b.CurrentPlayer()
	for i := 0; i < m.Config.RolloutLimit; i++ {
		if end, winner := b.IsTerminal(); end {
			return terminalValue(winner, player)
		}
		avail := b.Available()
		if err := b.DoMove(avail[m.rng.IntN(len(avail))]); err != nil {
			// Available moves are always legal.
			panic(err)
		}
	}
	if end, winner := b.IsTerminal(); end {
		return terminalValue(winner, player)
	}

	m.stats.Degraded++
	metrics.DegradedRollouts.Inc()
	log.Warn().Int("limit", m.Config.RolloutLimit).Msg("rollout reached move limit")
	return 0
}

// Search runs the configured number of playouts against clones of b.
func (m *PureMCTS) Search(ctx context.Context, b *game.Board) error {
	start := time.Now()
	m.stats.Playouts, m.stats.MaxDepth, m.stats.Degraded = 0, 0, 0
	defer func() {
		metrics.Playouts.WithLabelValues("pure").Add(float64(m.stats.Playouts))
		metrics.SearchDuration.WithLabelValues("pure").Observe(time.Since(start).Seconds())
	}()

	for i := 0; i < m.Config.Playouts; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := m.playout(b.Clone()); err != nil {
			return err
		}
		m.stats.Playouts++
	}
	return nil
}

// GetMove searches b and returns the most visited root action.
func (m *PureMCTS) GetMove(ctx context.Context, b *game.Board) (int, error) {
	if len(b.Available()) == 0 {
		return game.NoMove, game.ErrBoardFull
	}
	if err := m.Search(ctx, b); err != nil {
		return game.NoMove, err
	}
	action := m.root.mostVisited()
	if action < 0 {
		return game.NoMove, fmt.Errorf("root was not expanded after %d playouts", m.stats.Playouts)
	}
	return action, nil
}
