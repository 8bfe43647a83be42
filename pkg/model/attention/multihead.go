// Package attention implements the GPT-2 style transformer block: causal
// multi-head self-attention followed by a position-wise MLP, each behind a
// pre-norm residual connection.
package attention

import (
	"fmt"
	"math"

	"minigpt/pkg/nn"
	"minigpt/pkg/tensor"
)

// Config holds the attention hyperparameters.
type Config struct {
	EmbedDim int
	NumHeads int
	Bias     bool
	Dropout  float32
}

// MultiHeadAttention splits the embedding into NumHeads heads of HeadDim
// each, attends causally within every head and recombines through an output
// projection.
type MultiHeadAttention struct {
	NumHeads int
	HeadDim  int
	EmbedDim int
	Dropout  float32

	Query *nn.Linear // (emb, emb)
	Key   *nn.Linear // (emb, emb)
	Value *nn.Linear // (emb, emb)
	Out   *nn.Linear // (emb, emb)
}

// NewMultiHeadAttention allocates the four projections. EmbedDim must be
// divisible by NumHeads.
func NewMultiHeadAttention(cfg Config) (*MultiHeadAttention, error) {
	if cfg.NumHeads <= 0 || cfg.EmbedDim%cfg.NumHeads != 0 {
		return nil, fmt.Errorf("embed_dim (%d) must be divisible by num_heads (%d)", cfg.EmbedDim, cfg.NumHeads)
	}
	return &MultiHeadAttention{
		NumHeads: cfg.NumHeads,
		HeadDim:  cfg.EmbedDim / cfg.NumHeads,
		EmbedDim: cfg.EmbedDim,
		Dropout:  cfg.Dropout,
		Query:    nn.NewLinear(cfg.EmbedDim, cfg.EmbedDim, cfg.Bias),
		Key:      nn.NewLinear(cfg.EmbedDim, cfg.EmbedDim, cfg.Bias),
		Value:    nn.NewLinear(cfg.EmbedDim, cfg.EmbedDim, cfg.Bias),
		Out:      nn.NewLinear(cfg.EmbedDim, cfg.EmbedDim, cfg.Bias),
	}, nil
}

// Forward computes attention for x of shape (batch, seq, emb). mask is a
// (seq, seq) causal mask or nil.
func (m *MultiHeadAttention) Forward(x, mask *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	if len(x.Shape) != 3 {
		return nil, fmt.Errorf("expected 3D input (batch, seq, emb), got %dD with shape %v",
			len(x.Shape), x.Shape)
	}
	batch, seq, emb := x.Shape[0], x.Shape[1], x.Shape[2]
	if emb != m.EmbedDim {
		return nil, fmt.Errorf("input dimension %d doesn't match expected %d", emb, m.EmbedDim)
	}

	q, err := m.heads(m.Query, x, batch, seq)
	if err != nil {
		return nil, fmt.Errorf("failed to compute Q: %w", err)
	}
	k, err := m.heads(m.Key, x, batch, seq)
	if err != nil {
		return nil, fmt.Errorf("failed to compute K: %w", err)
	}
	v, err := m.heads(m.Value, x, batch, seq)
	if err != nil {
		return nil, fmt.Errorf("failed to compute V: %w", err)
	}

	// scores: (batch, heads, seq, seq)
	kt, err := k.Transpose(2, 3)
	if err != nil {
		return nil, fmt.Errorf("failed to transpose K: %w", err)
	}
	scores, err := tensor.Matmul(q, kt)
	if err != nil {
		return nil, fmt.Errorf("failed to compute attention scores: %w", err)
	}
	scores = scores.Scale(float32(1 / math.Sqrt(float64(m.HeadDim))))
	if mask != nil {
		scores = tensor.ApplyMask(scores, mask)
	}

	weights, err := tensor.Softmax(scores, 3)
	if err != nil {
		return nil, fmt.Errorf("failed to apply softmax: %w", err)
	}
	if m.Dropout > 0 && training {
		weights = weights.Dropout(m.Dropout, training)
	}

	ctx, err := tensor.Matmul(weights, v)
	if err != nil {
		return nil, fmt.Errorf("failed to apply attention to V: %w", err)
	}
	// (batch, heads, seq, head_dim) -> (batch, seq, emb)
	ctx, err = ctx.Transpose(1, 2)
	if err != nil {
		return nil, fmt.Errorf("failed to transpose attention output: %w", err)
	}
	ctx = ctx.Reshape([]int{batch, seq, m.EmbedDim})

	out, err := m.Out.Forward(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to apply output projection: %w", err)
	}
	return out, nil
}

// heads projects x and lays it out as (batch, heads, seq, head_dim).
func (m *MultiHeadAttention) heads(proj *nn.Linear, x *tensor.Tensor, batch, seq int) (*tensor.Tensor, error) {
	p, err := proj.Forward(x)
	if err != nil {
		return nil, err
	}
	return p.Reshape([]int{batch, seq, m.NumHeads, m.HeadDim}).Transpose(1, 2)
}

// Parameters returns q_proj, k_proj, v_proj and c_proj parameters.
func (m *MultiHeadAttention) Parameters() []tensor.Param {
	var ps []tensor.Param
	ps = append(ps, nn.Prefix("q_proj.", m.Query.Parameters())...)
	ps = append(ps, nn.Prefix("k_proj.", m.Key.Parameters())...)
	ps = append(ps, nn.Prefix("v_proj.", m.Value.Parameters())...)
	ps = append(ps, nn.Prefix("c_proj.", m.Out.Parameters())...)
	return ps
}
