package mcts

import (
	"context"
	"testing"

	"github.com/brensch/nrow/game"
	"github.com/stretchr/testify/require"
)

func TestPlayerPlayMode(t *testing.T) {
	p := NewPlayer(UniformEvaluator{}, Config{Cpuct: 5, Playouts: 400}, false)
	p.SetPlayerIndex(game.P1)

	b := newBoard(t, 0, 3, 1, 4)
	move, err := p.GetAction(context.Background(), b)
	require.NoError(t, err)
	require.Equal(t, 2, move)

	// The opponent's reply is unknown, so nothing is kept.
	require.True(t, p.Search().Root().IsLeaf())
	require.Equal(t, 400, p.Search().Stats().Playouts)
	require.Equal(t, "MCTS P1", p.String())
}

func TestPlayerSelfPlayMode(t *testing.T) {
	p := NewPlayer(UniformEvaluator{}, Config{Cpuct: 5, Playouts: 100}, true, WithSeed(3), WithNoise(DirichletNoise(0.3, 0.25, 3)))
	b := newBoard(t, 4)

	move, probs, err := p.SelfPlayAction(context.Background(), b, 1)
	require.NoError(t, err)
	require.True(t, b.IsLegal(move))
	require.Len(t, probs, 9)
	require.Zero(t, probs[4], "occupied cell")
	sum := 0.0
	for _, v := range probs {
		sum += v
	}
	require.InDelta(t, 1.0, sum, 1e-9)

	// The chosen subtree becomes the root.
	root := p.Search().Root()
	require.True(t, root.IsRoot())
	require.Positive(t, root.VisitCount)

	require.NoError(t, b.DoMove(move))
	_, _, err = p.SelfPlayAction(context.Background(), b, 1)
	require.NoError(t, err)
	require.True(t, p.Search().Stats().Reused)

	p.Reset()
	require.True(t, p.Search().Root().IsLeaf())
}

func TestPlayerFollowsOpponentMove(t *testing.T) {
	p := NewPlayer(UniformEvaluator{}, Config{Cpuct: 5, Playouts: 200}, true, WithSeed(9))
	b := newBoard(t)

	move, _, err := p.SelfPlayAction(context.Background(), b, 1)
	require.NoError(t, err)
	require.NoError(t, b.DoMove(move))

	// Somebody else answers; the player advances through the reply.
	reply := b.Available()[0]
	next := p.Search().Root().Child(reply)
	require.NotNil(t, next, "root after the first move should be expanded")
	before := next.VisitCount
	require.NoError(t, b.DoMove(reply))

	second, _, err := p.SelfPlayAction(context.Background(), b, 1)
	require.NoError(t, err)
	require.Equal(t, 200, p.Search().Stats().Playouts)
	require.Equal(t, before+200, next.VisitCount, "search ran under the reply's subtree")

	// The chosen move is promoted as well: 3 stones, 6 empty cells.
	root := p.Search().Root()
	require.Same(t, next.Children[second], root)
	require.True(t, root.IsRoot())
	require.NoError(t, b.DoMove(second))
	checkVisits(t, root)
	if !root.IsLeaf() {
		require.Len(t, root.Children, 6)
	}
}

func TestPlayerBoardFull(t *testing.T) {
	b := newBoard(t, 0, 1, 2, 4, 3, 5, 7, 6, 8)

	_, err := NewPlayer(UniformEvaluator{}, DefaultConfig(), false).GetAction(context.Background(), b)
	require.ErrorIs(t, err, game.ErrBoardFull)

	_, err = NewPurePlayer(DefaultPureConfig(), 1).GetAction(context.Background(), b)
	require.ErrorIs(t, err, game.ErrBoardFull)
}

func TestPurePlayerResetsEveryMove(t *testing.T) {
	p := NewPurePlayer(PureConfig{Cpuct: 5, Playouts: 200, RolloutLimit: 1000}, 1)
	move, err := p.GetAction(context.Background(), newBoard(t, 4))
	require.NoError(t, err)
	require.NotEqual(t, 4, move)
	require.True(t, p.Search().Root().IsLeaf())
}
