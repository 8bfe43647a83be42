package nn

import (
	"fmt"

	"minigpt/pkg/tensor"
)

// Embedding is a lookup table mapping integer ids to dim-wide vectors.
type Embedding struct {
	Weight *tensor.Tensor // (num, dim)
}

// NewEmbedding allocates a zero-initialized (num, dim) table.
func NewEmbedding(num, dim int) *Embedding {
	return &Embedding{Weight: tensor.NewTensor([]int{num, dim})}
}

// Num is the number of rows (ids) in the table.
func (e *Embedding) Num() int { return e.Weight.Shape[0] }

// Dim is the vector width.
func (e *Embedding) Dim() int { return e.Weight.Shape[1] }

// Lookup returns the vector for id. The slice aliases the table.
func (e *Embedding) Lookup(id int) ([]float32, error) {
	if id < 0 || id >= e.Num() {
		return nil, fmt.Errorf("id %d out of range [0, %d)", id, e.Num())
	}
	return e.Weight.Row(id)
}

// Forward gathers rows for a (batch, seq) tensor of ids into
// (batch, seq, dim).
func (e *Embedding) Forward(ids *tensor.Tensor) (*tensor.Tensor, error) {
	if len(ids.Shape) != 2 {
		return nil, fmt.Errorf("expected 2D input (batch, seq), got %dD", len(ids.Shape))
	}
	batch, seq, dim := ids.Shape[0], ids.Shape[1], e.Dim()
	out := tensor.NewTensor([]int{batch, seq, dim})

	for i, raw := range ids.Data {
		id := int(raw)
		if float32(id) != raw {
			return nil, fmt.Errorf("position (%d, %d): id %v is not an integer", i/seq, i%seq, raw)
		}
		row, err := e.Lookup(id)
		if err != nil {
			return nil, fmt.Errorf("position (%d, %d): %w", i/seq, i%seq, err)
		}
		copy(out.Data[i*dim:(i+1)*dim], row)
	}
	return out, nil
}

// Parameters returns "weight".
func (e *Embedding) Parameters() []tensor.Param {
	return []tensor.Param{{Name: "weight", Value: e.Weight}}
}
