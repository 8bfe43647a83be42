package nn

import (
	"fmt"

	"minigpt/pkg/tensor"
)

// MLP is the position-wise feed-forward network of a transformer block:
// c_fc (dim -> hidden), GELU, c_proj (hidden -> dim).
type MLP struct {
	FC   *Linear
	Proj *Linear
}

// NewMLP allocates both projections.
func NewMLP(dim, hidden int, bias bool) *MLP {
	return &MLP{
		FC:   NewLinear(dim, hidden, bias),
		Proj: NewLinear(hidden, dim, bias),
	}
}

// Forward maps (..., dim) to (..., dim).
func (m *MLP) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	hidden, err := m.FC.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("failed to compute c_fc projection: %w", err)
	}
	out, err := m.Proj.Forward(hidden.GELU())
	if err != nil {
		return nil, fmt.Errorf("failed to compute c_proj projection: %w", err)
	}
	return out, nil
}

// Parameters returns the c_fc and c_proj parameters.
func (m *MLP) Parameters() []tensor.Param {
	return append(Prefix("c_fc.", m.FC.Parameters()), Prefix("c_proj.", m.Proj.Parameters())...)
}
