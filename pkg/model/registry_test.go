package model

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minigpt/pkg/tensor"
)

type identityBlock struct{}

func (identityBlock) Forward(x, _ *tensor.Tensor, _ bool) (*tensor.Tensor, error) {
	return x.Clone(), nil
}

func (identityBlock) Parameters() []tensor.Param { return nil }

func TestDefaultBlocks(t *testing.T) {
	assert.Equal(t, []string{"gpt2"}, DefaultBlocks.Names())

	_, ok := DefaultBlocks.Lookup("Block")
	assert.False(t, ok)
}

func TestBlockRegistry_Register(t *testing.T) {
	r := NewBlockRegistry()
	factory := func(GPTConfig, int) (Block, error) { return identityBlock{}, nil }

	require.NoError(t, r.Register("identity", factory))
	assert.Error(t, r.Register("identity", factory), "duplicate names are rejected")
	assert.Error(t, r.Register("", factory))
	assert.Error(t, r.Register("nil", nil))

	f, ok := r.Lookup("identity")
	require.True(t, ok)
	b, err := f(tinyConfig(), 0)
	require.NoError(t, err)
	assert.Empty(t, b.Parameters())
}

func TestBlockRegistry_Concurrent(t *testing.T) {
	r := NewBlockRegistry()
	factory := func(GPTConfig, int) (Block, error) { return identityBlock{}, nil }

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, r.Register(fmt.Sprintf("b%02d", i), factory))
		}(i)
		go func() {
			defer wg.Done()
			r.Lookup("b00")
			r.Names()
		}()
	}
	wg.Wait()
	assert.Len(t, r.Names(), 16)
	assert.Equal(t, "b00", r.Names()[0])
}

func TestBuild_CustomBlockRegistry(t *testing.T) {
	r := NewBlockRegistry()
	require.NoError(t, r.Register("identity", func(GPTConfig, int) (Block, error) {
		return identityBlock{}, nil
	}))

	l := DefaultLayout()
	l.H.Type = "identity"

	_, err := Build(tinyConfig(), l, WithLogger(quietLogger()))
	assert.ErrorIs(t, err, ErrUndefinedBlock, "default registry has no identity block")

	m, err := Build(tinyConfig(), l, WithLogger(quietLogger()), WithBlockRegistry(r))
	require.NoError(t, err)
	assert.Len(t, m.H, 2)

	ids, _ := tensor.FromInts([]int{1, 2}, []int{1, 2})
	logits, err := m.Forward(ids)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 11}, logits.Shape)
}

func TestNewGPT2Block(t *testing.T) {
	b, err := NewGPT2Block(tinyConfig(), 0)
	require.NoError(t, err)
	assert.Len(t, b.Parameters(), 16)

	cfg := tinyConfig()
	cfg.Bias = false
	b, err = NewGPT2Block(cfg, 0)
	require.NoError(t, err)
	assert.Len(t, b.Parameters(), 8)
}
