package model

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"minigpt/pkg/tensor"
)

// GenerateOptions controls autoregressive sampling.
type GenerateOptions struct {
	// MaxNewTokens is the number of tokens appended to each sequence.
	MaxNewTokens int

	// Temperature divides the logits before sampling. Zero selects greedy
	// (argmax) decoding.
	Temperature float64

	// TopK keeps only the k most likely tokens when positive.
	TopK int

	// Seed drives the sampler.
	Seed uint64
}

// Generate extends ids (batch, seq) by opts.MaxNewTokens tokens, cropping
// the conditioning window to the model's context length at each step. The
// model is switched to inference mode for the duration of the call.
func Generate(ctx context.Context, m *GPT, ids *tensor.Tensor, opts GenerateOptions) (*tensor.Tensor, error) {
	if len(ids.Shape) != 2 {
		return nil, fmt.Errorf("expected 2D input (batch, seq), got %dD with shape %v", len(ids.Shape), ids.Shape)
	}
	if ids.Shape[0] == 0 || ids.Shape[1] == 0 {
		return nil, fmt.Errorf("prompt must hold at least one token per sequence, got shape %v", ids.Shape)
	}
	if opts.MaxNewTokens < 0 {
		return nil, fmt.Errorf("max new tokens must be non-negative, got %d", opts.MaxNewTokens)
	}
	if !(opts.Temperature >= 0) || math.IsInf(opts.Temperature, 1) {
		return nil, fmt.Errorf("temperature must be finite and non-negative, got %v", opts.Temperature)
	}

	wasTraining := m.Training()
	m.SetTraining(false)
	defer m.SetTraining(wasTraining)

	batch, ctxLen := ids.Shape[0], m.ContextLength()
	seqs := make([][]int, batch)
	for b := range seqs {
		seqs[b] = make([]int, ids.Shape[1], ids.Shape[1]+opts.MaxNewTokens)
		for s := range seqs[b] {
			seqs[b][s] = int(ids.Get([]int{b, s}))
		}
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))
	for step := 0; step < opts.MaxNewTokens; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cond, err := window(seqs, ctxLen)
		if err != nil {
			return nil, fmt.Errorf("failed to crop context at step %d: %w", step, err)
		}
		logits, err := m.Forward(cond)
		if err != nil {
			return nil, fmt.Errorf("model forward pass failed at step %d: %w", step, err)
		}
		last, err := extractLastToken(logits)
		if err != nil {
			return nil, fmt.Errorf("failed to extract last token at step %d: %w", step, err)
		}

		var next *tensor.Tensor
		if opts.Temperature == 0 {
			next, err = argmax(last)
		} else {
			next, err = sample(last, opts.Temperature, opts.TopK, rng)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to pick next token at step %d: %w", step, err)
		}
		for b := range seqs {
			seqs[b] = append(seqs[b], int(next.Get([]int{b, 0})))
		}
	}

	flat := make([]int, 0, batch*(ids.Shape[1]+opts.MaxNewTokens))
	for _, s := range seqs {
		flat = append(flat, s...)
	}
	return tensor.FromInts(flat, []int{batch, ids.Shape[1] + opts.MaxNewTokens})
}

// window packs the last n tokens of every sequence into a (batch, <=n)
// tensor.
func window(seqs [][]int, n int) (*tensor.Tensor, error) {
	seq := min(len(seqs[0]), n)
	flat := make([]int, 0, len(seqs)*seq)
	for _, s := range seqs {
		flat = append(flat, s[len(s)-seq:]...)
	}
	return tensor.FromInts(flat, []int{len(seqs), seq})
}

// extractLastToken extracts the logits for the last token position.
//
// Input shape: (batch, seq, vocab_size)
// Output shape: (batch, vocab_size)
func extractLastToken(logits *tensor.Tensor) (*tensor.Tensor, error) {
	if len(logits.Shape) != 3 {
		return nil, fmt.Errorf("expected 3D input (batch, seq, vocab_size), got %dD", len(logits.Shape))
	}
	batch, seq, vocab := logits.Shape[0], logits.Shape[1], logits.Shape[2]

	result, err := logits.SliceN([]int{0, seq - 1, 0}, []int{batch, seq, vocab})
	if err != nil {
		return nil, err
	}
	return result.View([]int{batch, vocab})
}

// argmax returns the index of the maximum value along the last dimension.
//
// Input shape: (batch, vocab_size)
// Output shape: (batch, 1)
func argmax(logits *tensor.Tensor) (*tensor.Tensor, error) {
	if len(logits.Shape) != 2 {
		return nil, fmt.Errorf("expected 2D input (batch, vocab_size), got %dD", len(logits.Shape))
	}
	batch, vocab := logits.Shape[0], logits.Shape[1]
	result := tensor.NewTensor([]int{batch, 1})

	for b := 0; b < batch; b++ {
		maxIdx := 0
		maxVal := float32(math.Inf(-1))
		for v := 0; v < vocab; v++ {
			if val := logits.Get([]int{b, v}); val > maxVal {
				maxVal = val
				maxIdx = v
			}
		}
		result.Set([]int{b, 0}, float32(maxIdx))
	}
	return result, nil
}

// sample draws one token per row from softmax(logits/temperature), keeping
// only the topK largest logits when topK is positive. The softmax runs in
// float64 after subtracting the row maximum; a row whose scaled logits
// overflow even float64 degrades to argmax.
//
// Input shape: (batch, vocab_size)
// Output shape: (batch, 1)
func sample(logits *tensor.Tensor, temperature float64, topK int, rng *rand.Rand) (*tensor.Tensor, error) {
	if len(logits.Shape) != 2 {
		return nil, fmt.Errorf("expected 2D input (batch, vocab_size), got %dD", len(logits.Shape))
	}
	batch, vocab := logits.Shape[0], logits.Shape[1]
	result := tensor.NewTensor([]int{batch, 1})

	weights := make([]float64, vocab)
	for b := 0; b < batch; b++ {
		row, err := logits.Row(b)
		if err != nil {
			return nil, err
		}
		for v, l := range row {
			weights[v] = float64(l) / temperature
		}
		if topK > 0 && topK < vocab {
			cropTopK(weights, topK)
		}

		best := 0
		for v, w := range weights {
			if w > weights[best] {
				best = v
			}
		}
		maxVal := weights[best]
		if math.IsInf(maxVal, 0) || math.IsNaN(maxVal) {
			result.Set([]int{b, 0}, float32(best))
			continue
		}
		for v, w := range weights {
			weights[v] = math.Exp(w - maxVal)
		}
		cat := distuv.NewCategorical(weights, rng)
		result.Set([]int{b, 0}, float32(cat.Rand()))
	}
	return result, nil
}

// cropTopK sets every entry of row below its k-th largest to -Inf.
func cropTopK(row []float64, k int) {
	sorted := slices.Clone(row)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	cutoff := sorted[k-1]
	for v := range row {
		if row[v] < cutoff {
			row[v] = math.Inf(-1)
		}
	}
}
