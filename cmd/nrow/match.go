package main

import (
	"fmt"
	"math/rand/v2"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/brensch/nrow/executor/arena"
	"github.com/brensch/nrow/executor/mcts"
	"github.com/brensch/nrow/game"
	"github.com/brensch/nrow/metrics"
)

var (
	matchP1    string
	matchP2    string
	matchStart int
	matchSeed  uint64
	matchQuiet bool

	matchCmd = &cobra.Command{
		Use:   "match",
		Short: "Play one game between two players and print the board",
		RunE:  runMatch,
	}

	evalGames    int
	evalParallel int
	evalPure     int
	evalBest     float64

	evaluateCmd = &cobra.Command{
		Use:   "evaluate",
		Short: "Measure the guided player against the pure rollout baseline",
		Long: `Plays --games games between the guided player (P1) and a pure rollout
player (P2), alternating who opens. Prints the win ratio and the next baseline
strength given the best ratio seen so far.`,
		RunE: runEvaluate,
	}
)

func init() {
	f := matchCmd.Flags()
	f.StringVar(&matchP1, "p1", "guided", "player 1: guided, pure, random or first")
	f.StringVar(&matchP2, "p2", "pure", "player 2: guided, pure, random or first")
	f.IntVar(&matchStart, "start", 0, "0 if player 1 opens, 1 if player 2 opens")
	f.Uint64Var(&matchSeed, "seed", 0, "seed, 0 for random")
	f.BoolVar(&matchQuiet, "quiet", false, "only print the result")
	rootCmd.AddCommand(matchCmd)

	f = evaluateCmd.Flags()
	f.IntVar(&evalGames, "games", 10, "number of games")
	f.IntVar(&evalParallel, "parallel", 1, "games played at once")
	f.IntVar(&evalPure, "pure-playouts", 0, "baseline playouts (default from config)")
	f.Float64Var(&evalBest, "best", 0, "best win ratio so far")
	rootCmd.AddCommand(evaluateCmd)
}

func runMatch(cmd *cobra.Command, args []string) error {
	ev, closer, err := newEvaluator()
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	seed := matchSeed
	if seed == 0 {
		seed = rand.Uint64()
	}
	p1, err := newPlayer(matchP1, ev, seed)
	if err != nil {
		return err
	}
	p2, err := newPlayer(matchP2, ev, seed+1)
	if err != nil {
		return err
	}
	b, err := newBoard()
	if err != nil {
		return err
	}

	g := game.NewGame(b)
	g.SetOutput(cmd.OutOrStdout())
	winner, err := g.StartMatch(cmd.Context(), p1, p2, matchStart, !matchQuiet)
	if err != nil {
		return err
	}
	metrics.Games.WithLabelValues("match", metrics.Outcome(winner)).Inc()
	log.Info().Stringer("winner", winner).Ints("moves", b.History()).Msg("match finished")
	if matchQuiet {
		fmt.Fprintln(cmd.OutOrStdout(), winner)
	}
	return nil
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	ev, closer, err := newEvaluator()
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	pureCfg := cfg.Pure()
	if evalPure > 0 {
		pureCfg.Playouts = evalPure
	}
	candidate := func() game.Player {
		return mcts.NewPlayer(ev, cfg.MCTS(), false, mcts.WithSeed(rand.Uint64()), mcts.WithTemperature(cfg.Search.Temperature))
	}
	baseline := func() game.Player {
		return mcts.NewPurePlayer(pureCfg, rand.Uint64())
	}

	res, err := arena.Evaluate(cmd.Context(), arena.Options{
		Width:    cfg.Board.Width,
		Height:   cfg.Board.Height,
		NInRow:   cfg.Board.NInRow,
		Games:    evalGames,
		Parallel: evalParallel,
	}, candidate, baseline)
	if err != nil {
		return err
	}

	best, pure, improved := arena.NextBaseline(evalBest, res.Ratio(), pureCfg.Playouts)
	fmt.Fprintf(cmd.OutOrStdout(), "num_playouts:%d, %v\n", pureCfg.Playouts, res)
	fmt.Fprintf(cmd.OutOrStdout(), "win ratio %.3f, improved %v, next best %.3f, next pure playouts %d\n", res.Ratio(), improved, best, pure)
	return nil
}
