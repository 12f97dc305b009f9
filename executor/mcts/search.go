package mcts

import (
	"context"
	"fmt"
	"time"

	"github.com/brensch/nrow/game"
	"github.com/brensch/nrow/metrics"
)

// Config holds search configuration.
type Config struct {
	Cpuct    float64
	Playouts int
}

// DefaultConfig returns c_puct 5 with 400 playouts per move.
func DefaultConfig() Config {
	return Config{Cpuct: 5, Playouts: 400}
}

// Stats describes the most recent move decision.
type Stats struct {
	Playouts int  // playouts completed
	MaxDepth int  // deepest leaf reached, in plies from the root
	Reused   bool // the root came from a previous decision's subtree
	Degraded int  // rollouts scored as a draw after hitting the move limit
}

// tree is the root bookkeeping shared by both search variants.
type tree struct {
	root  *Node
	stats Stats
}

func newTree() tree {
	return tree{root: NewNode(nil, 1.0)}
}

// Root returns the current root node.
func (t *tree) Root() *Node { return t.root }

// Stats returns statistics for the last search.
func (t *tree) Stats() Stats { return t.stats }

// UpdateWithMove advances the root to the child reached by action, keeping
// its statistics. Any other action, including game.NoMove, restarts the
// tree from a fresh root.
func (t *tree) UpdateWithMove(action int) {
	if child, ok := t.root.Children[action]; ok && action != game.NoMove {
		child.Parent = nil
		t.root = child
		t.stats.Reused = true
		metrics.TreeReuse.WithLabelValues("reused").Inc()
		return
	}
	t.root = NewNode(nil, 1.0)
	t.stats.Reused = false
	metrics.TreeReuse.WithLabelValues("fresh").Inc()
}

// MCTS is a PUCT search guided by an Evaluator.
type MCTS struct {
	tree
	Config    Config
	Evaluator Evaluator
}

// New creates a guided search with an empty tree.
func New(evaluator Evaluator, config Config) *MCTS {
	return &MCTS{tree: newTree(), Config: config, Evaluator: evaluator}
}

// playout runs one simulation on b, which must be a private copy of the
// position at the root. A terminal leaf is scored from the game outcome and
// never reaches the evaluator.
func (m *MCTS) playout(b *game.Board) error {
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

	// value is from the perspective of the player to move at the leaf.
	var value float64
	if end, winner := b.IsTerminal(); end {
		value = terminalValue(winner, b.CurrentPlayer())
	} else {
		priors, v, err := m.Evaluator.Evaluate(b)
		if err != nil {
			return err
		}
		for _, ap := range priors {
			if !b.IsLegal(ap.Action) {
				return fmt.Errorf("evaluator prior for %d: %w", ap.Action, game.ErrIllegalAction)
			}
		}
		node.Expand(priors)
		value = v
	}

	node.UpdateRecursive(-value)
	return nil
}

// terminalValue scores a finished game for the player to move.
func terminalValue(winner, toMove game.Stone) float64 {
	switch winner {
	case game.Draw:
		return 0
	case toMove:
		return 1
	default:
		return -1
	}
}

// Search runs the configured number of playouts against clones of b.
// Cancellation is checked between playouts; statistics gathered before
// cancellation stay in the tree.
func (m *MCTS) Search(ctx context.Context, b *game.Board) error {
	start := time.Now()
	m.stats.Playouts, m.stats.MaxDepth = 0, 0
	defer func() {
		metrics.Playouts.WithLabelValues("guided").Add(float64(m.stats.Playouts))
		metrics.SearchDuration.WithLabelValues("guided").Observe(time.Since(start).Seconds())
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

// MoveProbabilities searches b and returns the root's actions with
// probabilities softmax(log(visits + 1e-10) / temperature).
func (m *MCTS) MoveProbabilities(ctx context.Context, b *game.Board, temperature float64) ([]int, []float64, error) {
	if len(b.Available()) == 0 {
		return nil, nil, game.ErrBoardFull
	}
	if err := m.Search(ctx, b); err != nil {
		return nil, nil, err
	}

	actions := m.root.Actions()
	if len(actions) == 0 {
		return nil, nil, fmt.Errorf("root was not expanded after %d playouts", m.stats.Playouts)
	}
	visits := make([]int, len(actions))
	for i, a := range actions {
		visits[i] = m.root.Children[a].VisitCount
	}
	return append([]int(nil), actions...), visitSoftmax(visits, temperature), nil
}
