// Package tensor provides the dense float32 tensors the GPT skeleton is
// assembled from. Storage is a flat row-major slice with shape and strides.
package tensor

import (
	"fmt"
	"math"
	"strings"
)

// Tensor represents a multi-dimensional array of float32 values.
type Tensor struct {
	Data    []float32 // row-major storage
	Shape   []int
	Strides []int
}

// Param is a tensor together with its dotted parameter name,
// e.g. "transformer.wte.weight".
type Param struct {
	Name  string
	Value *Tensor
}

// NewTensor creates a zero-filled tensor with the given shape.
func NewTensor(shape []int) *Tensor {
	return &Tensor{
		Data:    make([]float32, numElements(shape)),
		Shape:   copyShape(shape),
		Strides: stridesFor(shape),
	}
}

// FromSlice creates a tensor holding a copy of data.
// Returns an error if data size doesn't match the shape.
func FromSlice(data []float32, shape []int) (*Tensor, error) {
	for _, dim := range shape {
		if dim < 0 {
			return nil, fmt.Errorf("invalid dimension %d in shape %v", dim, shape)
		}
	}
	if want := numElements(shape); len(data) != want {
		return nil, fmt.Errorf("data size %d does not match shape %v (expected %d elements)",
			len(data), shape, want)
	}
	t := NewTensor(shape)
	copy(t.Data, data)
	return t, nil
}

// FromInts builds a tensor of token ids. Ids are stored as float32, which is
// exact for any realistic vocabulary.
func FromInts(ids []int, shape []int) (*Tensor, error) {
	data := make([]float32, len(ids))
	for i, id := range ids {
		data[i] = float32(id)
	}
	return FromSlice(data, shape)
}

// View returns a tensor with a different shape sharing the same data.
func (t *Tensor) View(shape []int) (*Tensor, error) {
	for _, dim := range shape {
		if dim < 0 {
			return nil, fmt.Errorf("invalid dimension %d in shape %v", dim, shape)
		}
	}
	if n := numElements(shape); n != len(t.Data) {
		return nil, fmt.Errorf("cannot view tensor of size %d as shape %v (total size %d)",
			len(t.Data), shape, n)
	}
	return &Tensor{Data: t.Data, Shape: copyShape(shape), Strides: stridesFor(shape)}, nil
}

// Reshape is View that panics on size mismatch. Callers use it only where the
// element count is known to be preserved.
func (t *Tensor) Reshape(shape []int) *Tensor {
	v, err := t.View(shape)
	if err != nil {
		panic(err)
	}
	return v
}

// Transpose returns a copy with dimensions dim1 and dim2 exchanged.
func (t *Tensor) Transpose(dim1, dim2 int) (*Tensor, error) {
	rank := len(t.Shape)
	if dim1 < 0 || dim1 >= rank || dim2 < 0 || dim2 >= rank {
		return nil, fmt.Errorf("invalid transpose dimensions %d and %d for tensor with %d dimensions",
			dim1, dim2, rank)
	}
	if dim1 == dim2 {
		return t.Clone(), nil
	}

	shape := copyShape(t.Shape)
	shape[dim1], shape[dim2] = shape[dim2], shape[dim1]
	out := NewTensor(shape)

	// Walk the output in order and gather from the source with swapped strides.
	src := copyShape(t.Strides)
	src[dim1], src[dim2] = src[dim2], src[dim1]
	idx := make([]int, rank)
	for o := range out.Data {
		off := 0
		for d := 0; d < rank; d++ {
			off += idx[d] * src[d]
		}
		out.Data[o] = t.Data[off]
		for d := rank - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < shape[d] {
				break
			}
			idx[d] = 0
		}
	}
	return out, nil
}

// Size returns the total number of elements.
func (t *Tensor) Size() int {
	return numElements(t.Shape)
}

// FlatIndex converts multi-dimensional indices to a flat offset.
func (t *Tensor) FlatIndex(indices []int) int {
	if len(indices) != len(t.Shape) {
		panic(fmt.Sprintf("indices length %d does not match shape dimensions %d",
			len(indices), len(t.Shape)))
	}
	idx := 0
	for i, v := range indices {
		if v < 0 || v >= t.Shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d with size %d", v, i, t.Shape[i]))
		}
		idx += v * t.Strides[i]
	}
	return idx
}

// Get retrieves the value at the given indices.
func (t *Tensor) Get(indices []int) float32 {
	return t.Data[t.FlatIndex(indices)]
}

// Set stores value at the given indices.
func (t *Tensor) Set(indices []int, value float32) {
	t.Data[t.FlatIndex(indices)] = value
}

// Fill sets every element to v.
func (t *Tensor) Fill(v float32) *Tensor {
	for i := range t.Data {
		t.Data[i] = v
	}
	return t
}

// Clone creates a deep copy.
func (t *Tensor) Clone() *Tensor {
	c := NewTensor(t.Shape)
	copy(c.Data, t.Data)
	return c
}

// Row returns row i of a 2D tensor as a slice sharing storage.
func (t *Tensor) Row(i int) ([]float32, error) {
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("row access requires a 2D tensor, got shape %v", t.Shape)
	}
	if i < 0 || i >= t.Shape[0] {
		return nil, fmt.Errorf("row %d out of range [0, %d)", i, t.Shape[0])
	}
	cols := t.Shape[1]
	return t.Data[i*cols : (i+1)*cols], nil
}

// SliceN copies out the sub-tensor [starts, ends) in every dimension.
func (t *Tensor) SliceN(starts, ends []int) (*Tensor, error) {
	rank := len(t.Shape)
	if len(starts) != rank || len(ends) != rank {
		return nil, fmt.Errorf("starts and ends must have same length as tensor dimensions (%d), got %d and %d",
			rank, len(starts), len(ends))
	}
	shape := make([]int, rank)
	for i := 0; i < rank; i++ {
		if starts[i] < 0 || starts[i] > t.Shape[i] {
			return nil, fmt.Errorf("invalid start index %d for dimension %d with size %d", starts[i], i, t.Shape[i])
		}
		if ends[i] < starts[i] || ends[i] > t.Shape[i] {
			return nil, fmt.Errorf("invalid end index %d for dimension %d (start=%d, size=%d)", ends[i], i, starts[i], t.Shape[i])
		}
		shape[i] = ends[i] - starts[i]
	}

	out := NewTensor(shape)
	if len(out.Data) == 0 {
		return out, nil
	}
	idx := make([]int, rank)
	for o := range out.Data {
		off := 0
		for d := 0; d < rank; d++ {
			off += (starts[d] + idx[d]) * t.Strides[d]
		}
		out.Data[o] = t.Data[off]
		for d := rank - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < shape[d] {
				break
			}
			idx[d] = 0
		}
	}
	return out, nil
}

// Equals reports whether shapes match and values agree within tolerance.
func (t *Tensor) Equals(other *Tensor, tolerance float32) bool {
	if !t.ShapeEquals(other) {
		return false
	}
	for i := range t.Data {
		if math.Abs(float64(t.Data[i]-other.Data[i])) > float64(tolerance) {
			return false
		}
	}
	return true
}

// ShapeEquals reports whether two tensors have identical shapes.
func (t *Tensor) ShapeEquals(other *Tensor) bool {
	return shapesEqual(t.Shape, other.Shape)
}

// String renders the shape and a truncated preview of the data.
func (t *Tensor) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Tensor%v: [", t.Shape)
	for i, v := range t.Data {
		if i == 8 {
			sb.WriteString(", ...")
			break
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%g", v)
	}
	sb.WriteString("]")
	return sb.String()
}

func numElements(shape []int) int {
	n := 1
	for _, dim := range shape {
		n *= dim
	}
	return n
}

func stridesFor(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func shapesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func copyShape(shape []int) []int {
	out := make([]int, len(shape))
	copy(out, shape)
	return out
}
