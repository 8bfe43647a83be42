package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestDefaultLayout(t *testing.T) {
	l := DefaultLayout()

	assert.Equal(t, "gpt", l.Name)
	assert.Equal(t, []Dim{"vocab_size", "n_embd"}, l.WTE.Dims)
	assert.Equal(t, []Dim{"block_size", "n_embd"}, l.WPE.Dims)
	assert.Equal(t, "gpt2", l.H.Type)
	assert.Equal(t, Dim("n_layer"), l.H.Count)
	assert.Equal(t, []Dim{"n_embd"}, l.LNF.Dims)
	assert.Equal(t, []Dim{"n_embd", "vocab_size"}, l.LMHead.Dims)
	require.NotNil(t, l.LMHead.Bias)
	assert.False(t, *l.LMHead.Bias)
}

func TestDim_Resolve(t *testing.T) {
	dims := DefaultConfig().Dims()

	tests := []struct {
		dim     Dim
		want    int
		wantErr error
	}{
		{dim: "n_embd", want: 384},
		{dim: "block_size", want: 256},
		{dim: "32", want: 32},
		{dim: "n_emb", wantErr: ErrUnknownField},
		{dim: "dropout", wantErr: ErrUnknownField},
		{dim: "0", wantErr: ErrInvalidLayout},
		{dim: "-4", wantErr: ErrInvalidLayout},
	}
	for _, tt := range tests {
		t.Run(string(tt.dim), func(t *testing.T) {
			got, err := tt.dim.Resolve(dims)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// The layout as first transcribed carries three defects. All of them must be
// reported by a single Build call.
func TestBuild_TranscribedLayoutFails(t *testing.T) {
	l, err := LoadLayout("testdata/transcribed.yaml")
	require.NoError(t, err)

	m, err := Build(DefaultConfig(), l, WithLogger(quietLogger()))
	require.Error(t, err)
	assert.Nil(t, m)

	assert.ErrorIs(t, err, ErrUnknownField, "n_emb is not a config key")
	assert.ErrorIs(t, err, ErrUndefinedBlock, "Block is not a registered block type")
	assert.ErrorIs(t, err, ErrShapeMismatch, "lm_head maps vocab_size -> n_embd")
	assert.Contains(t, err.Error(), `"n_emb"`)
	assert.Contains(t, err.Error(), `"Block"`)

	// wpe and ln_f each name n_emb once; lm_head and h add one error each.
	assert.Len(t, multierr.Errors(errors.Unwrap(err)), 4)
}

func TestBuild_LiteralDims(t *testing.T) {
	l, err := LoadLayout("testdata/literal.yaml")
	require.NoError(t, err)

	cfg := GPTConfig{BlockSize: 64, VocabSize: 20, NLayer: 6, NHead: 4, NEmbd: 32, Bias: true}
	m, err := Build(cfg, l, WithLogger(quietLogger()))
	require.NoError(t, err)

	assert.Equal(t, "gpt-tiny", m.LayoutName())
	assert.Equal(t, []int{20, 32}, m.WTE.Weight.Shape)
	assert.Equal(t, 16, m.ContextLength(), "literal wpe rows override block_size")
	assert.Len(t, m.H, 2, "literal count overrides n_layer")
	assert.Nil(t, m.LNF.Shift, "ln_f bias disabled by the layout")
	assert.Equal(t, []int{32, 20}, m.LMHead.Weight.Shape)
}

func TestBuild_LiteralWidthMismatch(t *testing.T) {
	l, err := LoadLayout("testdata/literal.yaml")
	require.NoError(t, err)

	cfg := GPTConfig{BlockSize: 64, VocabSize: 20, NLayer: 2, NHead: 4, NEmbd: 64, Bias: true}
	_, err = Build(cfg, l, WithLogger(quietLogger()))
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.NotErrorIs(t, err, ErrUnknownField)
}

func TestParseLayout_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "unknown key",
			yaml: "name: x\nwte:\n  kind: embedding\n  dims: [vocab_size, n_embd]\n  init: zeros\n",
		},
		{
			name: "mapping as dim",
			yaml: "name: x\nwte:\n  kind: embedding\n  dims: [{a: 1}, n_embd]\n",
		},
		{
			name: "not yaml",
			yaml: "wte: [",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLayout([]byte(tt.yaml))
			assert.ErrorIs(t, err, ErrInvalidLayout)
		})
	}
}

func TestBuild_StructuralErrors(t *testing.T) {
	l := DefaultLayout()
	l.LNF.Kind = KindLinear
	l.WPE.Dims = l.WPE.Dims[:1]

	_, err := Build(DefaultConfig(), l, WithLogger(quietLogger()))
	require.ErrorIs(t, err, ErrInvalidLayout)
	assert.Contains(t, err.Error(), "ln_f")
	assert.Contains(t, err.Error(), "wpe")
}

func TestLoadLayout_MissingFile(t *testing.T) {
	_, err := LoadLayout("testdata/does-not-exist.yaml")
	assert.Error(t, err)
}
