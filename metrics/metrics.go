// Package metrics holds the Prometheus collectors shared by search, self-play
// and the HTTP host. Collectors register with the default registry on import.
package metrics

import (
	"github.com/brensch/nrow/game"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Playouts counts completed simulations by search variant ("guided", "pure").
	Playouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nrow_mcts_playouts_total",
		Help: "Completed MCTS playouts by search variant",
	}, []string{"variant"})

	// SearchDuration tracks wall time of one move decision.
	SearchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nrow_mcts_search_duration_seconds",
		Help:    "Time spent searching for one move",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	}, []string{"variant"})

	// TreeReuse counts root advances by outcome ("reused", "fresh").
	TreeReuse = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nrow_mcts_tree_reuse_total",
		Help: "Root advances that kept a subtree versus restarted",
	}, []string{"result"})

	// DegradedRollouts counts pure rollouts that hit the move limit and were
	// scored as a draw.
	DegradedRollouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nrow_mcts_degraded_rollouts_total",
		Help: "Random rollouts that reached the move limit without a result",
	})

	// Games counts finished games by mode ("selfplay", "match", "arena") and
	// outcome ("p1", "p2", "draw").
	Games = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nrow_games_total",
		Help: "Finished games by mode and outcome",
	}, []string{"mode", "outcome"})

	// GameLength tracks plies per finished game.
	GameLength = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nrow_game_length_plies",
		Help:    "Plies per finished game",
		Buckets: prometheus.LinearBuckets(5, 5, 20),
	})

	// TrainingRows counts rows flushed to parquet.
	TrainingRows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nrow_training_rows_total",
		Help: "Training rows written to parquet",
	})

	// EvaluatorBatch tracks how many positions the network scored per run.
	EvaluatorBatch = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nrow_evaluator_batch_size",
		Help:    "Positions per evaluator batch",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
	})

	// EvaluatorErrors counts failed evaluator batches.
	EvaluatorErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nrow_evaluator_errors_total",
		Help: "Evaluator batches that failed",
	})
)

// Outcome maps a game result to the label used by Games.
func Outcome(winner game.Stone) string {
	switch winner {
	case game.P1:
		return "p1"
	case game.P2:
		return "p2"
	default:
		return "draw"
	}
}
