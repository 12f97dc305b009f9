package mcts

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// visitEpsilon keeps log() finite for children that were never visited.
const visitEpsilon = 1e-10

// visitSoftmax returns softmax(log(visits + eps) / temperature). A
// non-positive temperature yields a one-hot vector on the most visited entry.
func visitSoftmax(visits []int, temperature float64) []float64 {
	probs := make([]float64, len(visits))
	if len(visits) == 0 {
		return probs
	}
	if temperature <= 0 {
		best := 0
		for i, v := range visits {
			if v > visits[best] {
				best = i
			}
		}
		probs[best] = 1
		return probs
	}

	for i, v := range visits {
		probs[i] = math.Log(float64(v)+visitEpsilon) / temperature
	}
	lse := floats.LogSumExp(probs)
	for i := range probs {
		probs[i] = math.Exp(probs[i] - lse)
	}
	return probs
}

// argmax returns the index of the first maximum.
func argmax(probs []float64) int {
	best := 0
	for i := 1; i < len(probs); i++ {
		if probs[i] > probs[best] {
			best = i
		}
	}
	return best
}

// sampleIndex draws an index with probability proportional to probs by a
// cumulative scan.
func sampleIndex(rng *rand.Rand, probs []float64) int {
	total := floats.Sum(probs)
	if total <= 0 || math.IsNaN(total) {
		return argmax(probs)
	}
	r := rng.Float64() * total
	cumulative := 0.0
	for i, p := range probs {
		cumulative += p
		if r < cumulative {
			return i
		}
	}
	return len(probs) - 1 // rounding fallback
}
