package tensor

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Initializer fills parameter tensors from a seeded source so that two
// models built with the same seed hold identical weights.
type Initializer struct {
	src rand.Source
}

// NewInitializer returns an Initializer seeded with seed.
func NewInitializer(seed uint64) *Initializer {
	return &Initializer{src: rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)}
}

// Normal fills t from N(0, std²).
func (in *Initializer) Normal(t *Tensor, std float64) {
	dist := distuv.Normal{Mu: 0, Sigma: std, Src: in.src}
	for i := range t.Data {
		t.Data[i] = float32(dist.Rand())
	}
}
