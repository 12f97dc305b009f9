package mcts

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distmv"
)

// NoiseFunc perturbs a move distribution before it is sampled. It must
// return a distribution of the same length and may reuse the input slice.
type NoiseFunc func(probs []float64) []float64

// DirichletNoise mixes (1-weight)*p + weight*Dir(alpha) into the root
// distribution, as used for exploration during self-play.
func DirichletNoise(alpha, weight float64, seed uint64) NoiseFunc {
	src := rand.NewPCG(seed, seed^0xda3e39cb94b95bdb)
	return func(probs []float64) []float64 {
		if len(probs) < 2 || weight <= 0 {
			return probs
		}
		alphas := make([]float64, len(probs))
		for i := range alphas {
			alphas[i] = alpha
		}
		eta := distmv.NewDirichlet(alphas, src).Rand(nil)
		out := make([]float64, len(probs))
		for i, p := range probs {
			out[i] = (1-weight)*p + weight*eta[i]
		}
		return out
	}
}
