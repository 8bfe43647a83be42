package nn

import (
	"fmt"
	"math"

	"minigpt/pkg/tensor"
)

// LayerNorm normalizes over the last dimension and applies a learned scale
// and, when built with bias, a learned shift:
//
//	y = (x - mean) / sqrt(var + eps) * scale + shift
type LayerNorm struct {
	Scale *tensor.Tensor // (dim,)
	Shift *tensor.Tensor // (dim,), nil without bias
	Eps   float32
}

// NewLayerNorm returns a LayerNorm with scale=1 and shift=0.
func NewLayerNorm(dim int, eps float32, bias bool) *LayerNorm {
	ln := &LayerNorm{
		Scale: tensor.NewTensor([]int{dim}).Fill(1),
		Eps:   eps,
	}
	if bias {
		ln.Shift = tensor.NewTensor([]int{dim})
	}
	return ln
}

// Dim is the normalized width.
func (ln *LayerNorm) Dim() int {
	return len(ln.Scale.Data)
}

// Forward normalizes each position independently. Output shape equals input
// shape.
func (ln *LayerNorm) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) == 0 {
		return nil, fmt.Errorf("cannot apply LayerNorm to 0D tensor")
	}
	width := x.Shape[len(x.Shape)-1]
	if width != ln.Dim() {
		return nil, fmt.Errorf("input last dimension %d doesn't match LayerNorm dimension %d",
			width, ln.Dim())
	}

	out := tensor.NewTensor(x.Shape)
	for off := 0; off < len(x.Data); off += width {
		row := x.Data[off : off+width]

		var mean float32
		for _, v := range row {
			mean += v
		}
		mean /= float32(width)

		var variance float32
		for _, v := range row {
			d := v - mean
			variance += d * d
		}
		variance /= float32(width)

		invStd := float32(1 / math.Sqrt(float64(variance+ln.Eps)))
		dst := out.Data[off : off+width]
		for i, v := range row {
			dst[i] = (v - mean) * invStd * ln.Scale.Data[i]
			if ln.Shift != nil {
				dst[i] += ln.Shift.Data[i]
			}
		}
	}
	return out, nil
}

// Parameters returns "weight" and, with bias, "bias".
func (ln *LayerNorm) Parameters() []tensor.Param {
	ps := []tensor.Param{{Name: "weight", Value: ln.Scale}}
	if ln.Shift != nil {
		ps = append(ps, tensor.Param{Name: "bias", Value: ln.Shift})
	}
	return ps
}
