// Package selfplay generates training data by letting a guided search play
// both sides of many games in parallel.
package selfplay

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/brensch/nrow/executor/mcts"
	"github.com/brensch/nrow/game"
	"github.com/brensch/nrow/metrics"
	"github.com/brensch/nrow/store"
)

type Options struct {
	Width, Height, NInRow int

	Search         mcts.Config
	Temperature    float64
	DirichletAlpha float64
	NoiseWeight    float64

	Workers       int
	GamesPerFlush int
	MaxGames      int64 // 0 runs until the context is cancelled
	OutDir        string

	Source    string // stored with every row
	ModelPath string
	Seed      uint64 // 0 picks a random seed per game
	Verbose   bool
}

// GameResult summarises one finished game.
type GameResult struct {
	GameID   string
	WorkerID int
	Winner   game.Stone
	Steps    int
	Duration time.Duration
}

// Summary describes a whole run.
type Summary struct {
	Games int64
	Rows  int
	Files []string
}

// PlayGame plays one self-play game and returns its training rows.
func PlayGame(ctx context.Context, workerID int, evaluator mcts.Evaluator, opts Options, seed uint64) ([]store.TrainingRow, GameResult, error) {
	start := time.Now()
	b, err := game.NewBoard(opts.Width, opts.Height, opts.NInRow)
	if err != nil {
		return nil, GameResult{}, err
	}

	player := mcts.NewPlayer(evaluator, opts.Search, true,
		mcts.WithSeed(seed),
		mcts.WithNoise(mcts.DirichletNoise(opts.DirichletAlpha, opts.NoiseWeight, seed)),
	)
	g := game.NewGame(b)
	winner, samples, err := g.StartSelfPlay(ctx, player, opts.Temperature, opts.Verbose)
	if err != nil {
		return nil, GameResult{}, err
	}

	result := GameResult{
		GameID:   uuid.NewString(),
		WorkerID: workerID,
		Winner:   winner,
		Steps:    len(samples),
		Duration: time.Since(start),
	}
	metrics.Games.WithLabelValues("selfplay", metrics.Outcome(winner)).Inc()
	metrics.GameLength.Observe(float64(result.Steps))
	log.Debug().
		Str("game_id", result.GameID).
		Int("worker", workerID).
		Stringer("winner", winner).
		Int("episode_len", result.Steps).
		Dur("took", result.Duration).
		Msg("self-play game finished")

	return store.RowsFromSamples(result.GameID, opts.Source, opts.ModelPath, b, samples), result, nil
}

// Run starts opts.Workers self-play loops sharing evaluator and streams
// finished games to parquet batches of opts.GamesPerFlush games. Results are
// offered to updates without blocking when it is non-nil. Cancelling ctx
// abandons games in progress, flushes what was finished and returns nil.
func Run(ctx context.Context, evaluator mcts.Evaluator, opts Options, updates chan<- GameResult) (Summary, error) {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Source == "" {
		opts.Source = "selfplay"
	}

	writeReqs := make(chan []store.TrainingRow, opts.Workers*4)
	writerDone := make(chan Summary, 1)
	go func() {
		writerDone <- parquetWriterLoop(opts.OutDir, opts.GamesPerFlush, writeReqs)
	}()

	var started atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < opts.Workers; i++ {
		workerID := i
		g.Go(func() error {
			log.Debug().Int("worker", workerID).Msg("worker started")
			for n := uint64(0); ; n++ {
				if gctx.Err() != nil {
					return nil
				}
				if opts.MaxGames > 0 && started.Add(1) > opts.MaxGames {
					return nil
				}

				seed := rand.Uint64()
				if opts.Seed != 0 {
					seed = opts.Seed + uint64(workerID)*1000003 + n
				}
				rows, result, err := PlayGame(gctx, workerID, evaluator, opts, seed)
				if err != nil {
					if gctx.Err() != nil && errors.Is(err, gctx.Err()) {
						return nil
					}
					return fmt.Errorf("worker %d: %w", workerID, err)
				}

				writeReqs <- rows
				if updates != nil {
					select {
					case updates <- result:
					default:
					}
				}
			}
		})
	}

	err := g.Wait()
	close(writeReqs)
	summary := <-writerDone
	log.Info().Int64("games", summary.Games).Int("rows", summary.Rows).Int("files", len(summary.Files)).Msg("self-play finished")
	return summary, err
}

func parquetWriterLoop(outDir string, gamesPerFlush int, in <-chan []store.TrainingRow) Summary {
	if gamesPerFlush <= 0 {
		gamesPerFlush = 50
	}

	var summary Summary
	pendingRows := make([]store.TrainingRow, 0, 16*gamesPerFlush)
	pendingGames := 0

	flush := func() {
		outPath, err := store.WriteBatchParquetAtomic(outDir, pendingRows)
		if err != nil {
			log.Error().Err(err).Int("games", pendingGames).Int("rows", len(pendingRows)).Msg("parquet flush failed")
		} else {
			log.Info().Str("path", outPath).Int("games", pendingGames).Int("rows", len(pendingRows)).Msg("parquet flush ok")
			summary.Files = append(summary.Files, outPath)
			summary.Rows += len(pendingRows)
			metrics.TrainingRows.Add(float64(len(pendingRows)))
		}
		pendingRows = pendingRows[:0]
		pendingGames = 0
	}

	for rows := range in {
		summary.Games++
		if len(rows) == 0 {
			continue
		}
		pendingRows = append(pendingRows, rows...)
		pendingGames++
		if pendingGames >= gamesPerFlush {
			flush()
		}
	}
	if pendingGames > 0 {
		flush()
	}
	return summary
}
