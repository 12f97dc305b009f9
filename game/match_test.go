package game

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStartMatch(t *testing.T) {
	t.Run("first player completes a row", func(t *testing.T) {
		g := NewGame(newBoard(t, 3, 3, 3))
		winner, err := g.StartMatch(context.Background(), NewSequencePlayer(0, 1, 2), NewSequencePlayer(3, 4), 0, false)
		require.NoError(t, err)
		require.Equal(t, P1, winner)
		require.Equal(t, 5, g.Board().MoveCount())
	})

	t.Run("second player starts", func(t *testing.T) {
		g := NewGame(newBoard(t, 3, 3, 3))
		winner, err := g.StartMatch(context.Background(), NewSequencePlayer(0, 1), NewSequencePlayer(3, 4, 5), 1, false)
		require.NoError(t, err)
		require.Equal(t, P2, winner)
		require.Equal(t, []int{3, 0, 4, 1, 5}, g.Board().History())
	})

	t.Run("ends in a draw on a full board", func(t *testing.T) {
		g := NewGame(newBoard(t, 3, 3, 3))
		// X O X / X O O / O X X
		p1 := NewSequencePlayer(0, 2, 3, 7, 8)
		p2 := NewSequencePlayer(1, 4, 5, 6)
		winner, err := g.StartMatch(context.Background(), p1, p2, 0, false)
		require.NoError(t, err)
		require.Equal(t, Draw, winner)
	})

	t.Run("renders progress when asked", func(t *testing.T) {
		var out bytes.Buffer
		g := NewGame(newBoard(t, 3, 3, 3))
		g.SetOutput(&out)
		_, err := g.StartMatch(context.Background(), NewSequencePlayer(0, 1, 2), NewSequencePlayer(3, 4), 0, true)
		require.NoError(t, err)
		require.True(t, strings.HasSuffix(out.String(), "Game end. Winner is sequence P1\n"), out.String())
	})

	t.Run("observer sees every move", func(t *testing.T) {
		g := NewGame(newBoard(t, 3, 3, 3))
		var seen []int
		g.SetObserver(func(b *Board, move int) {
			require.Equal(t, move, b.LastMove())
			seen = append(seen, move)
		})
		_, err := g.StartMatch(context.Background(), NewSequencePlayer(0, 1, 2), NewSequencePlayer(3, 4), 0, false)
		require.NoError(t, err)
		require.Equal(t, []int{0, 3, 1, 4, 2}, seen)
	})

	t.Run("stops when cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		g := NewGame(newBoard(t, 3, 3, 3))
		_, err := g.StartMatch(ctx, &FirstAvailablePlayer{}, &FirstAvailablePlayer{}, 0, false)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("random players always finish", func(t *testing.T) {
		for seed := uint64(0); seed < 20; seed++ {
			g := NewGame(newBoard(t, 4, 4, 3))
			winner, err := g.StartMatch(context.Background(), NewRandomPlayer(seed), NewRandomPlayer(seed+100), int(seed%2), false)
			require.NoError(t, err)
			require.Contains(t, []Stone{P1, P2, Draw}, winner)
		}
	})
}

// firstAvailableSelfPlayer reports a uniform distribution and plays the
// lowest free cell.
type firstAvailableSelfPlayer struct {
	FirstAvailablePlayer
	resets int
}

func (p *firstAvailableSelfPlayer) Reset() { p.resets++ }

func (p *firstAvailableSelfPlayer) SelfPlayAction(ctx context.Context, b *Board, _ float64) (int, []float64, error) {
	move, err := p.GetAction(ctx, b)
	if err != nil {
		return NoMove, nil, err
	}
	probs := make([]float64, b.Size())
	for _, a := range b.Available() {
		probs[a] = 1 / float64(len(b.Available()))
	}
	return move, probs, nil
}

func TestStartSelfPlay(t *testing.T) {
	g := NewGame(newBoard(t, 3, 3, 3))
	player := &firstAvailableSelfPlayer{}

	// 0..6 in order: P1 holds 0, 2, 4, 6 and wins on the anti diagonal.
	winner, samples, err := g.StartSelfPlay(context.Background(), player, 1.0, false)
	require.NoError(t, err)
	require.Equal(t, P1, winner)
	require.Len(t, samples, 7)
	require.Equal(t, 1, player.resets)

	for i, s := range samples {
		require.Len(t, s.Planes, FeaturePlaneCount*9)
		require.Len(t, s.Probs, 9)
		if i%2 == 0 {
			require.Equal(t, P1, s.Player)
			require.Equal(t, 1.0, s.Value)
		} else {
			require.Equal(t, P2, s.Player)
			require.Equal(t, -1.0, s.Value)
		}
		var sum float64
		for _, p := range s.Probs {
			sum += p
		}
		require.InDelta(t, 1.0, sum, 1e-9)
	}

	// The recorded planes are the position before the move.
	require.Zero(t, samples[0].Planes[0])
	require.Equal(t, float32(1), samples[1].Planes[9], "P1 stone seen as opponent by P2")
}
