package inference

import (
	"fmt"
	"math"
	"sync"

	"github.com/brensch/nrow/executor/mcts"
	"github.com/brensch/nrow/game"
)

// encoder hands out pooled feature buffers for one board size.
type encoder struct {
	width, height int
	size          int // floats per position
	pool          sync.Pool
}

func newEncoder(width, height int) *encoder {
	e := &encoder{width: width, height: height, size: game.FeaturePlaneCount * width * height}
	e.pool.New = func() any {
		b := make([]float32, e.size)
		return &b
	}
	return e
}

// encode writes the board's feature planes, shaped [C, H, W], into a pooled
// buffer. The caller returns it with put.
func (e *encoder) encode(b *game.Board) (*[]float32, error) {
	if b.Width() != e.width || b.Height() != e.height {
		return nil, fmt.Errorf("model expects a %dx%d board, got %dx%d", e.width, e.height, b.Width(), b.Height())
	}
	buf := e.pool.Get().(*[]float32)
	b.FeaturePlanesInto(*buf)
	return buf, nil
}

func (e *encoder) put(buf *[]float32) { e.pool.Put(buf) }

// legalPriors applies a softmax to the policy logits restricted to the
// board's available moves. Illegal cells get no prior at all.
func legalPriors(b *game.Board, logits []float32) []mcts.ActionPrior {
	avail := b.Available()
	priors := make([]mcts.ActionPrior, len(avail))
	if len(avail) == 0 {
		return priors
	}

	maxV := math.Inf(-1)
	for _, a := range avail {
		if v := float64(logits[a]); v > maxV {
			maxV = v
		}
	}
	sum := 0.0
	for i, a := range avail {
		e := math.Exp(float64(logits[a]) - maxV)
		priors[i] = mcts.ActionPrior{Action: a, Prior: e}
		sum += e
	}
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		u := 1 / float64(len(avail))
		for i := range priors {
			priors[i].Prior = u
		}
		return priors
	}
	for i := range priors {
		priors[i].Prior /= sum
	}
	return priors
}

// clampValue keeps a network value inside [-1, 1].
func clampValue(v float32) float64 {
	switch {
	case math.IsNaN(float64(v)):
		return 0
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return float64(v)
}
