package tensor

import "math"

// GELU applies the tanh approximation of the Gaussian Error Linear Unit
// element-wise:
//
//	GELU(x) = 0.5 * x * (1 + tanh(sqrt(2/π) * (x + 0.044715 * x^3)))
func (t *Tensor) GELU() *Tensor {
	const (
		sqrt2OverPi = 0.7978845608
		coeff       = 0.044715
	)
	out := NewTensor(t.Shape)
	for i, x := range t.Data {
		inner := sqrt2OverPi * (x + coeff*x*x*x)
		out.Data[i] = 0.5 * x * (1 + float32(math.Tanh(float64(inner))))
	}
	return out
}
