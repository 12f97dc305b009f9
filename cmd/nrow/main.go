// Command nrow trains and plays n-in-a-row games with Monte Carlo tree search.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/brensch/nrow/config"
	"github.com/brensch/nrow/executor/inference"
	"github.com/brensch/nrow/executor/mcts"
	"github.com/brensch/nrow/game"
	"github.com/brensch/nrow/logging"
)

var (
	cfg        config.Config
	configPath string
	logLevel   string
	logCloser  io.Closer

	rootCmd = &cobra.Command{
		Use:   "nrow",
		Short: "AlphaZero-style search for n-in-a-row games",
		Long: `nrow generates self-play training data, runs matches between search
players, evaluates a model against the rollout baseline and serves moves over HTTP.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			logCloser, err = logging.Setup(cfg.Log.Level, cfg.Log.Pretty, cfg.Log.File)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logCloser != nil {
				_ = logCloser.Close()
			}
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/"+config.DefaultFile+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

type evaluatorCloser interface {
	mcts.Evaluator
	io.Closer
	Stats() inference.RuntimeStats
}

// newEvaluator opens the configured model, or returns the uniform evaluator
// with a nil closer when no model is set.
func newEvaluator() (mcts.Evaluator, evaluatorCloser, error) {
	if cfg.Model.Path == "" {
		log.Warn().Msg("no model configured, searching with uniform priors")
		return mcts.UniformEvaluator{}, nil, nil
	}
	if _, err := os.Stat(cfg.Model.Path); err != nil {
		return nil, nil, fmt.Errorf("model file: %w", err)
	}

	onnxCfg := inference.OnnxClientConfig{
		Width:        cfg.Board.Width,
		Height:       cfg.Board.Height,
		BatchSize:    cfg.Model.BatchSize,
		BatchTimeout: cfg.Model.BatchTimeout,
		UseCUDA:      cfg.Model.CUDA,
	}
	var (
		ev  evaluatorCloser
		err error
	)
	if cfg.Model.Sessions <= 1 {
		ev, err = inference.NewOnnxClientWithConfig(cfg.Model.Path, onnxCfg)
	} else {
		ev, err = inference.NewOnnxClientPool(cfg.Model.Path, cfg.Model.Sessions, onnxCfg)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("create onnx evaluator: %w", err)
	}
	log.Info().Str("model", cfg.Model.Path).Int("sessions", cfg.Model.Sessions).Int("batch", cfg.Model.BatchSize).Msg("onnx evaluator ready")
	return ev, ev, nil
}

// newPlayer builds a player by name for the configured board.
func newPlayer(kind string, ev mcts.Evaluator, seed uint64) (game.Player, error) {
	switch kind {
	case "guided":
		return mcts.NewPlayer(ev, cfg.MCTS(), false, mcts.WithSeed(seed), mcts.WithTemperature(cfg.Search.Temperature)), nil
	case "pure":
		return mcts.NewPurePlayer(cfg.Pure(), seed), nil
	case "random":
		return game.NewRandomPlayer(seed), nil
	case "first":
		return &game.FirstAvailablePlayer{}, nil
	default:
		return nil, fmt.Errorf("unknown player %q (want guided, pure, random or first)", kind)
	}
}

func newBoard() (*game.Board, error) {
	return game.NewBoard(cfg.Board.Width, cfg.Board.Height, cfg.Board.NInRow)
}
