package game

// FeaturePlaneCount is the number of planes produced by FeaturePlanes.
const FeaturePlaneCount = 4

// FeatureSize returns the length of the flattened feature tensor.
func (b *Board) FeatureSize() int {
	return FeaturePlaneCount * b.width * b.height
}

// FeaturePlanes encodes the board as a [4][height][width] float32 tensor,
// flattened in C, H, W order:
//
//	0: current player's stones
//	1: opponent's stones
//	2: one-hot of the last move
//	3: all ones when the first mover is to play (even number of stones)
func (b *Board) FeaturePlanes() []float32 {
	out := make([]float32, b.FeatureSize())
	b.FeaturePlanesInto(out)
	return out
}

// FeaturePlanesInto writes the feature tensor into dst, which must have at
// least FeatureSize elements. dst is cleared first.
func (b *Board) FeaturePlanesInto(dst []float32) {
	plane := b.width * b.height
	dst = dst[:FeaturePlaneCount*plane]
	clear(dst)

	for _, m := range b.played {
		if b.cells[m] == b.current {
			dst[m] = 1
		} else {
			dst[plane+m] = 1
		}
	}
	if b.lastMove != NoMove {
		dst[2*plane+b.lastMove] = 1
	}
	if len(b.played)%2 == 0 {
		parity := dst[3*plane : 4*plane]
		for i := range parity {
			parity[i] = 1
		}
	}
}
