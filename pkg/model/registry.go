package model

import (
	"fmt"
	"sort"
	"sync"

	"minigpt/pkg/model/attention"
	"minigpt/pkg/nn"
	"minigpt/pkg/tensor"
)

// Block is one repeated unit of the stack. Its internals belong to the
// factory that built it; the skeleton only needs a shape-preserving forward
// pass and its parameters.
type Block interface {
	Forward(x, mask *tensor.Tensor, training bool) (*tensor.Tensor, error)
	Parameters() []tensor.Param
}

// BlockFactory builds the block at index layer for cfg.
type BlockFactory func(cfg GPTConfig, layer int) (Block, error)

// BlockRegistry maps block type names used in layouts to factories. It is
// safe for concurrent use.
type BlockRegistry struct {
	mu        sync.RWMutex
	factories map[string]BlockFactory
}

// NewBlockRegistry returns an empty registry.
func NewBlockRegistry() *BlockRegistry {
	return &BlockRegistry{factories: make(map[string]BlockFactory)}
}

// Register adds a factory under name. Names are unique.
func (r *BlockRegistry) Register(name string, f BlockFactory) error {
	if name == "" || f == nil {
		return fmt.Errorf("block registration needs a name and a factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("block type %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

// Lookup returns the factory registered under name.
func (r *BlockRegistry) Lookup(name string) (BlockFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// Names lists registered block types in sorted order.
func (r *BlockRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultBlocks holds the block types available to NewGPT: only "gpt2".
var DefaultBlocks = func() *BlockRegistry {
	r := NewBlockRegistry()
	if err := r.Register("gpt2", NewGPT2Block); err != nil {
		panic(err)
	}
	return r
}()

// NewGPT2Block builds a pre-norm block: causal multi-head attention and a
// 4x GELU MLP, each behind a layer norm and a residual connection.
func NewGPT2Block(cfg GPTConfig, layer int) (Block, error) {
	attn, err := attention.NewMultiHeadAttention(attention.Config{
		EmbedDim: cfg.NEmbd,
		NumHeads: cfg.NHead,
		Bias:     cfg.Bias,
		Dropout:  cfg.Dropout,
	})
	if err != nil {
		return nil, fmt.Errorf("block %d: %w", layer, err)
	}
	return attention.NewTransformerBlock(
		attn,
		nn.NewMLP(cfg.NEmbd, 4*cfg.NEmbd, cfg.Bias),
		nn.NewLayerNorm(cfg.NEmbd, layerNormEps, cfg.Bias),
		nn.NewLayerNorm(cfg.NEmbd, layerNormEps, cfg.Bias),
		cfg.Dropout,
	), nil
}
