package tensor

import (
	"math/rand/v2"
	"sync"
)

var (
	dropoutMu   sync.Mutex
	dropoutRand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
)

// SetDropoutSeed makes dropout masks reproducible.
func SetDropoutSeed(seed uint64) {
	dropoutMu.Lock()
	defer dropoutMu.Unlock()
	dropoutRand = rand.New(rand.NewPCG(seed, seed))
}

// Dropout zeroes elements with probability p and rescales survivors by
// 1/(1-p). Outside training, or with p == 0, it returns a copy.
func (t *Tensor) Dropout(p float32, training bool) *Tensor {
	if !training || p == 0 {
		return t.Clone()
	}
	if p < 0 || p >= 1 {
		panic("dropout probability must be in [0, 1)")
	}

	out := NewTensor(t.Shape)
	scale := 1 / (1 - p)

	dropoutMu.Lock()
	defer dropoutMu.Unlock()
	for i, v := range t.Data {
		if dropoutRand.Float32() >= p {
			out.Data[i] = v * scale
		}
	}
	return out
}
