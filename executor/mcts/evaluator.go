package mcts

import "github.com/brensch/nrow/game"

// ActionPrior pairs a legal action with its prior probability.
type ActionPrior struct {
	Action int
	Prior  float64
}

// Evaluator scores a position for the player to move. Priors must cover
// exactly the board's available moves and the value must lie in [-1, 1].
// Errors are returned to the caller of the search unchanged.
type Evaluator interface {
	Evaluate(b *game.Board) ([]ActionPrior, float64, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(b *game.Board) ([]ActionPrior, float64, error)

func (f EvaluatorFunc) Evaluate(b *game.Board) ([]ActionPrior, float64, error) { return f(b) }

// UniformEvaluator assigns equal priors to every available move and a
// neutral value.
type UniformEvaluator struct{}

func (UniformEvaluator) Evaluate(b *game.Board) ([]ActionPrior, float64, error) {
	return uniformPriors(b), 0, nil
}

func uniformPriors(b *game.Board) []ActionPrior {
	avail := b.Available()
	if len(avail) == 0 {
		return nil
	}
	p := 1 / float64(len(avail))
	priors := make([]ActionPrior, len(avail))
	for i, a := range avail {
		priors[i] = ActionPrior{Action: a, Prior: p}
	}
	return priors
}
