package attention

import (
	"fmt"

	"minigpt/pkg/nn"
	"minigpt/pkg/tensor"
)

// Layer is a shape-preserving sub-layer of a block: the MLP or a norm.
type Layer interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
	Parameters() []tensor.Param
}

// TransformerBlock is one pre-norm GPT-2 block:
//
//	x = x + Dropout(Attn(Norm1(x), mask))
//	x = x + Dropout(MLP(Norm2(x)))
type TransformerBlock struct {
	Attn    *MultiHeadAttention
	MLP     Layer
	Norm1   Layer // ln_1, before attention
	Norm2   Layer // ln_2, before the MLP
	Dropout float32
}

// NewTransformerBlock assembles a block from its parts.
func NewTransformerBlock(attn *MultiHeadAttention, mlp Layer, norm1, norm2 Layer, dropout float32) *TransformerBlock {
	return &TransformerBlock{
		Attn:    attn,
		MLP:     mlp,
		Norm1:   norm1,
		Norm2:   norm2,
		Dropout: dropout,
	}
}

// Forward maps (batch, seq, emb) to (batch, seq, emb).
func (b *TransformerBlock) Forward(x, mask *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	normed, err := b.Norm1.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("failed to apply ln_1: %w", err)
	}
	attnOut, err := b.Attn.Forward(normed, mask, training)
	if err != nil {
		return nil, fmt.Errorf("failed to compute attention: %w", err)
	}
	if b.Dropout > 0 && training {
		attnOut = attnOut.Dropout(b.Dropout, training)
	}
	x, err = tensor.Add(x, attnOut)
	if err != nil {
		return nil, fmt.Errorf("failed to add attention residual: %w", err)
	}

	normed, err = b.Norm2.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("failed to apply ln_2: %w", err)
	}
	mlpOut, err := b.MLP.Forward(normed)
	if err != nil {
		return nil, fmt.Errorf("failed to compute mlp: %w", err)
	}
	if b.Dropout > 0 && training {
		mlpOut = mlpOut.Dropout(b.Dropout, training)
	}
	out, err := tensor.Add(x, mlpOut)
	if err != nil {
		return nil, fmt.Errorf("failed to add mlp residual: %w", err)
	}
	return out, nil
}

// Parameters lists parameters under ln_1, attn, ln_2 and mlp.
func (b *TransformerBlock) Parameters() []tensor.Param {
	var ps []tensor.Param
	ps = append(ps, nn.Prefix("ln_1.", b.Norm1.Parameters())...)
	ps = append(ps, nn.Prefix("attn.", b.Attn.Parameters())...)
	ps = append(ps, nn.Prefix("ln_2.", b.Norm2.Parameters())...)
	ps = append(ps, nn.Prefix("mlp.", b.MLP.Parameters())...)
	return ps
}
