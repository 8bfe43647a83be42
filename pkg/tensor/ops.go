package tensor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Matmul multiplies over the last two dimensions.
//
//	(..., m, k) @ (k, n)      -> (..., m, n)   weight broadcast
//	(..., m, k) @ (..., k, n) -> (..., m, n)   leading dims must match
func Matmul(a, b *Tensor) (*Tensor, error) {
	if len(a.Shape) < 2 || len(b.Shape) < 2 {
		return nil, fmt.Errorf("matmul requires at least 2D tensors, got %dD and %dD",
			len(a.Shape), len(b.Shape))
	}
	m, k := a.Shape[len(a.Shape)-2], a.Shape[len(a.Shape)-1]
	kb, n := b.Shape[len(b.Shape)-2], b.Shape[len(b.Shape)-1]
	if k != kb {
		return nil, fmt.Errorf("incompatible shapes for matmul: %v and %v (inner dimensions %d and %d don't match)",
			a.Shape, b.Shape, k, kb)
	}

	lead := a.Shape[:len(a.Shape)-2]
	outShape := append(copyShape(lead), m, n)
	out := NewTensor(outShape)
	batch := numElements(lead)

	if len(b.Shape) == 2 {
		// Fold every leading dimension into the row count: one GEMM call.
		gemm(batch*m, k, n, a.Data, b.Data, out.Data)
		return out, nil
	}

	if !shapesEqual(lead, b.Shape[:len(b.Shape)-2]) {
		return nil, fmt.Errorf("incompatible batch dimensions for matmul: %v and %v", a.Shape, b.Shape)
	}
	for i := 0; i < batch; i++ {
		gemm(m, k, n,
			a.Data[i*m*k:(i+1)*m*k],
			b.Data[i*k*n:(i+1)*k*n],
			out.Data[i*m*n:(i+1)*m*n])
	}
	return out, nil
}

func gemm(m, k, n int, a, b, c []float32) {
	if m == 0 || n == 0 || k == 0 {
		return
	}
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		blas32.General{Rows: m, Cols: k, Stride: k, Data: a},
		blas32.General{Rows: k, Cols: n, Stride: n, Data: b},
		0,
		blas32.General{Rows: m, Cols: n, Stride: n, Data: c})
}

// Scale multiplies every element by s.
func (t *Tensor) Scale(s float32) *Tensor {
	out := NewTensor(t.Shape)
	for i, v := range t.Data {
		out.Data[i] = v * s
	}
	return out
}

// Softmax applies a numerically stable softmax along dim.
func Softmax(t *Tensor, dim int) (*Tensor, error) {
	if dim < 0 || dim >= len(t.Shape) {
		return nil, fmt.Errorf("invalid dimension %d for tensor with %d dimensions", dim, len(t.Shape))
	}
	out := NewTensor(t.Shape)
	size := t.Shape[dim]
	inner := t.Strides[dim]
	outer := numElements(t.Shape[:dim])

	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			base := o*size*inner + in
			maxVal := float32(math.Inf(-1))
			for i := 0; i < size; i++ {
				if v := t.Data[base+i*inner]; v > maxVal {
					maxVal = v
				}
			}
			var sum float32
			for i := 0; i < size; i++ {
				e := float32(math.Exp(float64(t.Data[base+i*inner] - maxVal)))
				out.Data[base+i*inner] = e
				sum += e
			}
			for i := 0; i < size; i++ {
				out.Data[base+i*inner] /= sum
			}
		}
	}
	return out, nil
}

// Add performs element-wise addition with numpy-style broadcasting.
func Add(a, b *Tensor) (*Tensor, error) {
	return elementWise(a, b, func(x, y float32) float32 { return x + y })
}

// Mul performs element-wise multiplication with broadcasting.
func Mul(a, b *Tensor) (*Tensor, error) {
	return elementWise(a, b, func(x, y float32) float32 { return x * y })
}

func elementWise(a, b *Tensor, op func(x, y float32) float32) (*Tensor, error) {
	if shapesEqual(a.Shape, b.Shape) {
		out := NewTensor(a.Shape)
		for i := range out.Data {
			out.Data[i] = op(a.Data[i], b.Data[i])
		}
		return out, nil
	}

	shape, err := broadcastShapes(a.Shape, b.Shape)
	if err != nil {
		return nil, fmt.Errorf("cannot broadcast shapes %v and %v: %w", a.Shape, b.Shape, err)
	}
	out := NewTensor(shape)
	as := broadcastStrides(a.Shape, shape)
	bs := broadcastStrides(b.Shape, shape)

	idx := make([]int, len(shape))
	for o := range out.Data {
		ai, bi := 0, 0
		for d := range shape {
			ai += idx[d] * as[d]
			bi += idx[d] * bs[d]
		}
		out.Data[o] = op(a.Data[ai], b.Data[bi])
		for d := len(shape) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < shape[d] {
				break
			}
			idx[d] = 0
		}
	}
	return out, nil
}

func broadcastShapes(a, b []int) ([]int, error) {
	n := max(len(a), len(b))
	out := make([]int, n)
	for i := 0; i < n; i++ {
		da, db := 1, 1
		if i < len(a) {
			da = a[len(a)-1-i]
		}
		if i < len(b) {
			db = b[len(b)-1-i]
		}
		if da != db && da != 1 && db != 1 {
			return nil, fmt.Errorf("incompatible dimensions %d and %d", da, db)
		}
		out[n-1-i] = max(da, db)
	}
	return out, nil
}

// broadcastStrides returns strides of in aligned to out, zero on
// broadcast dimensions.
func broadcastStrides(in, out []int) []int {
	strides := make([]int, len(out))
	own := stridesFor(in)
	diff := len(out) - len(in)
	for i := range in {
		if in[i] != 1 {
			strides[i+diff] = own[i]
		}
	}
	return strides
}

// CreateCausalMask returns a (seq, seq) mask with ones on and below the
// diagonal.
func CreateCausalMask(seqLen int) *Tensor {
	mask := NewTensor([]int{seqLen, seqLen})
	for i := 0; i < seqLen; i++ {
		for j := 0; j <= i; j++ {
			mask.Data[i*seqLen+j] = 1
		}
	}
	return mask
}

// ApplyMask sets scores to -inf wherever mask is zero. The mask covers the
// trailing dimensions of t and repeats over the leading ones.
func ApplyMask(t, mask *Tensor) *Tensor {
	out := t.Clone()
	n := len(mask.Data)
	if n == 0 {
		return out
	}
	negInf := float32(math.Inf(-1))
	for i := range out.Data {
		if mask.Data[i%n] == 0 {
			out.Data[i] = negInf
		}
	}
	return out
}
