package selfplay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brensch/nrow/executor/mcts"
	"github.com/brensch/nrow/game"
	"github.com/brensch/nrow/store"
)

func testOptions(t *testing.T) Options {
	return Options{
		Width:          3,
		Height:         3,
		NInRow:         3,
		Search:         mcts.Config{Cpuct: 5, Playouts: 20},
		Temperature:    1,
		DirichletAlpha: 0.3,
		NoiseWeight:    0.25,
		Workers:        2,
		GamesPerFlush:  2,
		OutDir:         t.TempDir(),
		Seed:           7,
	}
}

func TestPlayGame(t *testing.T) {
	opts := testOptions(t)
	rows, result, err := PlayGame(context.Background(), 3, mcts.UniformEvaluator{}, opts, 11)
	require.NoError(t, err)

	require.Equal(t, 3, result.WorkerID)
	require.NotEmpty(t, result.GameID)
	require.Len(t, rows, result.Steps)
	require.GreaterOrEqual(t, result.Steps, 5)
	require.LessOrEqual(t, result.Steps, 9)

	for i, row := range rows {
		require.Equal(t, result.GameID, row.GameID)
		require.Equal(t, i, int(row.Ply))
		require.Len(t, row.Policy, 9)
		require.Len(t, row.Planes, game.FeaturePlaneCount*9)
		switch result.Winner {
		case game.Draw:
			require.Zero(t, row.Value)
		default:
			require.Contains(t, []float32{-1, 1}, row.Value)
		}
	}
}

func TestRunStopsAtMaxGames(t *testing.T) {
	opts := testOptions(t)
	opts.MaxGames = 5

	updates := make(chan GameResult, 16)
	summary, err := Run(context.Background(), mcts.UniformEvaluator{}, opts, updates)
	require.NoError(t, err)

	require.EqualValues(t, 5, summary.Games)
	// Two full batches and a final partial flush.
	require.Len(t, summary.Files, 3)

	close(updates)
	ids := map[string]bool{}
	for u := range updates {
		ids[u.GameID] = true
	}
	require.Len(t, ids, 5)

	total := 0
	seen := map[string]bool{}
	for _, path := range summary.Files {
		rows, err := store.ReadRows(path)
		require.NoError(t, err)
		total += len(rows)
		for _, r := range rows {
			seen[r.GameID] = true
			require.Equal(t, "selfplay", r.Source)
		}
	}
	require.Equal(t, summary.Rows, total)
	require.Equal(t, ids, seen)
}

func TestRunCancel(t *testing.T) {
	opts := testOptions(t)
	opts.Workers = 1

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := make(chan GameResult, 1)
	go func() {
		<-updates
		cancel()
	}()

	done := make(chan struct{})
	var summary Summary
	var err error
	go func() {
		summary, err = Run(ctx, mcts.UniformEvaluator{}, opts, updates)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	require.NoError(t, err)
	require.GreaterOrEqual(t, summary.Games, int64(1))
	require.NotEmpty(t, summary.Files)
}

func TestRunPropagatesEvaluatorErrors(t *testing.T) {
	opts := testOptions(t)
	opts.MaxGames = 3
	failing := mcts.EvaluatorFunc(func(*game.Board) ([]mcts.ActionPrior, float64, error) {
		return nil, 0, context.DeadlineExceeded
	})

	summary, err := Run(context.Background(), failing, opts, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Zero(t, summary.Games)
	require.Empty(t, summary.Files)
}
