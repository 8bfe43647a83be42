// Package nn holds the layer primitives the GPT skeleton is wired from:
// embedding tables, linear projections, layer normalization and the
// position-wise MLP.
package nn

import (
	"fmt"

	"minigpt/pkg/tensor"
)

// Linear is an affine projection y = x @ W + b with W stored as (in, out).
type Linear struct {
	Weight *tensor.Tensor // (in, out)
	Bias   *tensor.Tensor // (out,), nil without bias
}

// NewLinear allocates a zero-initialized in -> out projection.
func NewLinear(in, out int, bias bool) *Linear {
	l := &Linear{Weight: tensor.NewTensor([]int{in, out})}
	if bias {
		l.Bias = tensor.NewTensor([]int{out})
	}
	return l
}

// In is the input width.
func (l *Linear) In() int { return l.Weight.Shape[0] }

// Out is the output width.
func (l *Linear) Out() int { return l.Weight.Shape[1] }

// Forward applies the projection to the last dimension of x.
func (l *Linear) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) < 2 {
		return nil, fmt.Errorf("expected at least 2D input, got %dD", len(x.Shape))
	}
	if last := x.Shape[len(x.Shape)-1]; last != l.In() {
		return nil, fmt.Errorf("input dimension %d doesn't match linear input dimension %d", last, l.In())
	}
	y, err := tensor.Matmul(x, l.Weight)
	if err != nil {
		return nil, err
	}
	if l.Bias == nil {
		return y, nil
	}
	return tensor.Add(y, l.Bias)
}

// Parameters returns "weight" and, with bias, "bias".
func (l *Linear) Parameters() []tensor.Param {
	ps := []tensor.Param{{Name: "weight", Value: l.Weight}}
	if l.Bias != nil {
		ps = append(ps, tensor.Param{Name: "bias", Value: l.Bias})
	}
	return ps
}

// Prefix qualifies parameter names with prefix, e.g. "attn." + "weight".
func Prefix(prefix string, params []tensor.Param) []tensor.Param {
	out := make([]tensor.Param, len(params))
	for i, p := range params {
		out[i] = tensor.Param{Name: prefix + p.Name, Value: p.Value}
	}
	return out
}
