package mcts

import (
	"context"
	"errors"
	"testing"

	"github.com/brensch/nrow/game"
	"github.com/stretchr/testify/require"
)

type countingEvaluator struct {
	calls int
}

func (e *countingEvaluator) Evaluate(b *game.Board) ([]ActionPrior, float64, error) {
	e.calls++
	return uniformPriors(b), 0, nil
}

func newBoard(t testing.TB, moves ...int) *game.Board {
	t.Helper()
	b, err := game.NewBoard(3, 3, 3)
	require.NoError(t, err)
	for _, m := range moves {
		require.NoError(t, b.DoMove(m))
	}
	return b
}

// checkVisits asserts that every expanded node has been visited once more
// than all of its children together.
func checkVisits(t *testing.T, n *Node) {
	t.Helper()
	if n.IsLeaf() {
		return
	}
	sum := 0
	for _, a := range n.Actions() {
		child := n.Child(a)
		require.Same(t, n, child.Parent)
		sum += child.VisitCount
		checkVisits(t, child)
	}
	require.Equal(t, n.VisitCount-1, sum)
}

func TestSearchVisitCounts(t *testing.T) {
	ev := &countingEvaluator{}
	m := New(ev, Config{Cpuct: 5, Playouts: 60})
	b := newBoard(t)

	_, _, err := m.MoveProbabilities(context.Background(), b, 1)
	require.NoError(t, err)

	require.Equal(t, 60, m.Root().VisitCount)
	require.Len(t, m.Root().Children, 9)
	checkVisits(t, m.Root())

	st := m.Stats()
	require.Equal(t, 60, st.Playouts)
	require.Positive(t, st.MaxDepth)
	require.LessOrEqual(t, ev.calls, 60)

	require.Equal(t, 0, b.MoveCount(), "search must not touch the live board")
}

func TestMoveProbabilities(t *testing.T) {
	b := newBoard(t, 4)

	t.Run("temperature one follows visit counts", func(t *testing.T) {
		m := New(UniformEvaluator{}, Config{Cpuct: 5, Playouts: 200})
		actions, probs, err := m.MoveProbabilities(context.Background(), b, 1)
		require.NoError(t, err)
		require.Len(t, actions, 8)
		require.NotContains(t, actions, 4)

		total := m.Root().VisitCount - 1
		sum := 0.0
		for i, a := range actions {
			sum += probs[i]
			require.InDelta(t, float64(m.Root().Child(a).VisitCount)/float64(total), probs[i], 1e-6)
		}
		require.InDelta(t, 1.0, sum, 1e-9)
	})

	t.Run("low temperature is nearly one-hot", func(t *testing.T) {
		m := New(UniformEvaluator{}, Config{Cpuct: 5, Playouts: 200})
		actions, probs, err := m.MoveProbabilities(context.Background(), b, 1e-3)
		require.NoError(t, err)

		best := argmax(probs)
		require.Equal(t, m.Root().mostVisited(), actions[best])

		// Symmetric cells may tie on visits; everything below the top count
		// vanishes.
		top := m.Root().Child(actions[best]).VisitCount
		mass := 0.0
		for i, a := range actions {
			if m.Root().Child(a).VisitCount < top {
				require.Less(t, probs[i], 1e-6)
			} else {
				mass += probs[i]
			}
		}
		require.InDelta(t, 1.0, mass, 1e-6)
	})
}

func TestSearchTakesImmediateWin(t *testing.T) {
	// X X . / O O . / . . .  with X to move.
	b := newBoard(t, 0, 3, 1, 4)
	m := New(UniformEvaluator{}, Config{Cpuct: 5, Playouts: 400})

	actions, probs, err := m.MoveProbabilities(context.Background(), b, PlayTemperature)
	require.NoError(t, err)
	require.Equal(t, 2, actions[argmax(probs)])
	require.InDelta(t, 1.0, m.Root().Child(2).Q, 1e-9, "winning child always scores a win")
}

func TestTerminalLeavesSkipEvaluator(t *testing.T) {
	// Only cell 8 is left and filling it draws.
	b := newBoard(t, 0, 1, 2, 4, 3, 5, 7, 6)
	ev := &countingEvaluator{}
	m := New(ev, Config{Cpuct: 5, Playouts: 50})

	_, _, err := m.MoveProbabilities(context.Background(), b, 1)
	require.NoError(t, err)
	require.Equal(t, 1, ev.calls, "only the root is evaluated")
	require.Equal(t, 50, m.Root().VisitCount)
	require.Equal(t, 49, m.Root().Child(8).VisitCount)
	require.Zero(t, m.Root().Child(8).Q)
}

func TestUpdateWithMove(t *testing.T) {
	b := newBoard(t)
	m := New(UniformEvaluator{}, Config{Cpuct: 5, Playouts: 100})
	_, _, err := m.MoveProbabilities(context.Background(), b, 1)
	require.NoError(t, err)

	child := m.Root().Child(4)
	visits, q := child.VisitCount, child.Q

	m.UpdateWithMove(4)
	require.Same(t, child, m.Root())
	require.Nil(t, m.Root().Parent)
	require.Equal(t, visits, m.Root().VisitCount)
	require.Equal(t, q, m.Root().Q)
	require.True(t, m.Stats().Reused)

	// The kept subtree keeps growing from the reused statistics.
	require.NoError(t, b.DoMove(4))
	_, _, err = m.MoveProbabilities(context.Background(), b, 1)
	require.NoError(t, err)
	require.Equal(t, visits+100, m.Root().VisitCount)
	checkVisits(t, m.Root())

	m.UpdateWithMove(42)
	require.True(t, m.Root().IsLeaf())
	require.Zero(t, m.Root().VisitCount)
	require.Equal(t, 1.0, m.Root().Prior)
	require.False(t, m.Stats().Reused)

	_, _, err = m.MoveProbabilities(context.Background(), b, 1)
	require.NoError(t, err)
	m.UpdateWithMove(game.NoMove)
	require.True(t, m.Root().IsLeaf())
}

func TestSearchErrors(t *testing.T) {
	t.Run("full board", func(t *testing.T) {
		b := newBoard(t, 0, 1, 2, 4, 3, 5, 7, 6, 8)
		m := New(UniformEvaluator{}, DefaultConfig())
		_, _, err := m.MoveProbabilities(context.Background(), b, 1)
		require.ErrorIs(t, err, game.ErrBoardFull)
	})

	t.Run("cancelled between playouts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		m := New(UniformEvaluator{}, DefaultConfig())
		_, _, err := m.MoveProbabilities(ctx, newBoard(t), 1)
		require.ErrorIs(t, err, context.Canceled)
		require.Zero(t, m.Stats().Playouts)
	})

	t.Run("evaluator failure is returned unchanged", func(t *testing.T) {
		boom := errors.New("model unavailable")
		m := New(EvaluatorFunc(func(*game.Board) ([]ActionPrior, float64, error) {
			return nil, 0, boom
		}), DefaultConfig())
		_, _, err := m.MoveProbabilities(context.Background(), newBoard(t), 1)
		require.ErrorIs(t, err, boom)
	})

	t.Run("prior for an occupied cell", func(t *testing.T) {
		b := newBoard(t, 4)
		m := New(EvaluatorFunc(func(*game.Board) ([]ActionPrior, float64, error) {
			return []ActionPrior{{Action: 4, Prior: 1}}, 0, nil
		}), DefaultConfig())
		_, _, err := m.MoveProbabilities(context.Background(), b, 1)
		require.ErrorIs(t, err, game.ErrIllegalAction)
	})
}

func TestTerminalValue(t *testing.T) {
	require.Equal(t, 0.0, terminalValue(game.Draw, game.P1))
	require.Equal(t, 1.0, terminalValue(game.P2, game.P2))
	require.Equal(t, -1.0, terminalValue(game.P1, game.P2))
}

func BenchmarkSearch(b *testing.B) {
	board, err := game.NewBoard(6, 6, 4)
	if err != nil {
		b.Fatal(err)
	}
	for i := 0; i < b.N; i++ {
		m := New(UniformEvaluator{}, Config{Cpuct: 5, Playouts: 400})
		if err := m.Search(context.Background(), board); err != nil {
			b.Fatal(err)
		}
	}
}
