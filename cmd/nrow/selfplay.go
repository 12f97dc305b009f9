package main

import (
	"context"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/brensch/nrow/executor/mcts"
	"github.com/brensch/nrow/executor/selfplay"
	"github.com/brensch/nrow/game"
	"github.com/brensch/nrow/logging"
)

var (
	selfPlayWorkers  int
	selfPlayMaxGames int64
	selfPlayOutDir   string
	selfPlayFlush    int
	selfPlaySeed     uint64
	selfPlayTUI      bool

	selfPlayCmd = &cobra.Command{
		Use:   "selfplay",
		Short: "Generate training data by self-play",
		Long: `Runs guided search against itself on many boards at once and writes one
parquet row per ply. Stops after --max-games games or on interrupt.`,
		RunE: runSelfPlay,
	}
)

func init() {
	f := selfPlayCmd.Flags()
	f.IntVar(&selfPlayWorkers, "workers", 0, "number of concurrent games (default from config)")
	f.Int64Var(&selfPlayMaxGames, "max-games", 0, "stop after this many games, 0 runs until interrupted (default from config)")
	f.StringVar(&selfPlayOutDir, "out-dir", "", "output directory for parquet batches (default from config)")
	f.IntVar(&selfPlayFlush, "games-per-flush", 0, "games per parquet file (default from config)")
	f.Uint64Var(&selfPlaySeed, "seed", 0, "base seed, 0 for random games")
	f.BoolVar(&selfPlayTUI, "tui", false, "show a live dashboard; logs go to a file")
	rootCmd.AddCommand(selfPlayCmd)
}

// countingEvaluator counts evaluations for the dashboard.
type countingEvaluator struct {
	mcts.Evaluator
	calls atomic.Int64
}

func (c *countingEvaluator) Evaluate(b *game.Board) ([]mcts.ActionPrior, float64, error) {
	c.calls.Add(1)
	return c.Evaluator.Evaluate(b)
}

func selfPlayOptions() selfplay.Options {
	sp := cfg.SelfPlay
	opts := selfplay.Options{
		Width:          cfg.Board.Width,
		Height:         cfg.Board.Height,
		NInRow:         cfg.Board.NInRow,
		Search:         cfg.MCTS(),
		Temperature:    sp.Temperature,
		DirichletAlpha: sp.DirichletAlpha,
		NoiseWeight:    sp.NoiseWeight,
		Workers:        sp.Workers,
		GamesPerFlush:  sp.GamesPerFlush,
		MaxGames:       int64(sp.MaxGames),
		OutDir:         sp.OutDir,
		Source:         "selfplay",
		ModelPath:      cfg.Model.Path,
		Seed:           selfPlaySeed,
	}
	if selfPlayWorkers > 0 {
		opts.Workers = selfPlayWorkers
	}
	if selfPlayMaxGames > 0 {
		opts.MaxGames = selfPlayMaxGames
	}
	if selfPlayOutDir != "" {
		opts.OutDir = selfPlayOutDir
	}
	if selfPlayFlush > 0 {
		opts.GamesPerFlush = selfPlayFlush
	}
	return opts
}

func runSelfPlay(cmd *cobra.Command, args []string) error {
	if selfPlayTUI && cfg.Log.File == "" {
		closer, err := logging.Setup(cfg.Log.Level, false, "nrow-selfplay.log")
		if err != nil {
			return err
		}
		_ = logCloser.Close()
		logCloser = closer
	}

	ev, closer, err := newEvaluator()
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}
	counted := &countingEvaluator{Evaluator: ev}

	opts := selfPlayOptions()
	log.Info().
		Int("workers", opts.Workers).
		Int64("max_games", opts.MaxGames).
		Str("out_dir", opts.OutDir).
		Int("playouts", opts.Search.Playouts).
		Msg("starting self-play")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	updates := make(chan selfplay.GameResult, opts.Workers)

	type runResult struct {
		summary selfplay.Summary
		err     error
	}
	done := make(chan runResult, 1)
	go func() {
		s, err := selfplay.Run(ctx, counted, opts, updates)
		done <- runResult{s, err}
	}()

	if selfPlayTUI {
		p := tea.NewProgram(newDashboard(updates, counted, closer), tea.WithAltScreen(), tea.WithContext(ctx))
		finished := make(chan runResult, 1)
		go func() {
			res := <-done
			finished <- res
			p.Quit()
		}()
		if _, err := p.Run(); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("dashboard failed")
		}
		cancel()
		res := <-finished
		log.Info().Int64("games", res.summary.Games).Int("rows", res.summary.Rows).Int("files", len(res.summary.Files)).Msg("self-play done")
		return res.err
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	start := time.Now()
	var games, plies int
	for {
		select {
		case res := <-done:
			log.Info().Int64("games", res.summary.Games).Int("rows", res.summary.Rows).Int("files", len(res.summary.Files)).Msg("self-play done")
			return res.err
		case u := <-updates:
			games++
			plies += u.Steps
			log.Info().Int("worker", u.WorkerID).Stringer("winner", u.Winner).Int("episode_len", u.Steps).Msg("game finished")
		case <-ticker.C:
			elapsed := time.Since(start).Seconds()
			line := log.Info().
				Int("games", games).
				Float64("games_per_sec", float64(games)/elapsed).
				Float64("moves_per_sec", float64(plies)/elapsed).
				Float64("evals_per_sec", float64(counted.calls.Load())/elapsed)
			if closer != nil {
				st := closer.Stats()
				line = line.Float64("batch_avg", st.AvgBatchSize).Int("queue", st.QueueLen).Float64("run_avg_ms", st.AvgRunMs)
			}
			line.Msg("stats")
		}
	}
}
