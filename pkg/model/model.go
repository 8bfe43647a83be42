package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"minigpt/pkg/nn"
	"minigpt/pkg/tensor"
)

const (
	layerNormEps = 1e-5
	initStd      = 0.02
)

// GPT is the decoder-only skeleton.
//
// Modules, in construction order:
//  1. WTE: token embedding (vocab_size, n_embd)
//  2. WPE: learned position embedding (block_size, n_embd)
//  3. H: n_layer blocks
//  4. LNF: final layer norm over n_embd
//  5. LMHead: projection n_embd -> vocab_size, no bias
type GPT struct {
	WTE    *nn.Embedding
	WPE    *nn.Embedding
	H      []Block
	LNF    *nn.LayerNorm
	LMHead *nn.Linear

	config   GPTConfig
	layout   string
	training bool
}

type buildOptions struct {
	registry *BlockRegistry
	logger   logrus.FieldLogger
	seed     uint64
}

// Option customizes model construction.
type Option func(*buildOptions)

// WithBlockRegistry resolves block types against r instead of DefaultBlocks.
func WithBlockRegistry(r *BlockRegistry) Option {
	return func(o *buildOptions) { o.registry = r }
}

// WithLogger sets the logger used during construction.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *buildOptions) { o.logger = l }
}

// WithSeed fixes the weight initialization seed.
func WithSeed(seed uint64) Option {
	return func(o *buildOptions) { o.seed = seed }
}

// NewGPT builds a model from cfg using the built-in layout.
func NewGPT(cfg GPTConfig, opts ...Option) (*GPT, error) {
	return Build(cfg, DefaultLayout(), opts...)
}

// Build allocates every module described by layout, sized from cfg, and
// initializes the weights. All layout problems are reported together; use
// errors.Is with ErrUnknownField, ErrUndefinedBlock, ErrShapeMismatch or
// ErrInvalidLayout to classify them.
func Build(cfg GPTConfig, layout *Layout, opts ...Option) (*GPT, error) {
	o := buildOptions{
		registry: DefaultBlocks,
		logger:   logrus.StandardLogger(),
		seed:     1337,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p, err := layout.resolve(cfg, o.registry)
	if err != nil {
		return nil, fmt.Errorf("layout %q: %w", layout.Name, err)
	}

	log := o.logger.WithField("layout", layout.Name)
	m := &GPT{
		config:   cfg,
		layout:   layout.Name,
		training: true,
	}
	m.WTE = nn.NewEmbedding(p.vocab, p.width)
	m.WPE = nn.NewEmbedding(p.positions, p.width)
	m.H = make([]Block, p.blocks)
	for i := range m.H {
		b, err := p.newBlock(cfg, i)
		if err != nil {
			return nil, fmt.Errorf("failed to build block %d (%s): %w", i, p.blockType, err)
		}
		m.H[i] = b
	}
	m.LNF = nn.NewLayerNorm(p.width, layerNormEps, p.normBias)
	m.LMHead = nn.NewLinear(p.headIn, p.headOut, p.headBias)

	m.initWeights(o.seed)

	log.WithFields(logrus.Fields{
		"n_layer":    len(m.H),
		"n_embd":     p.width,
		"vocab_size": p.vocab,
		"block_size": p.positions,
		"block":      p.blockType,
	}).Infof("number of parameters: %.2fM", float64(m.NumParams(true))/1e6)
	return m, nil
}

// initWeights draws linear and embedding weights from N(0, 0.02) and scales
// residual output projections (c_proj) by 1/sqrt(2*n_layer). Norm scales
// stay at one and biases at zero.
func (m *GPT) initWeights(seed uint64) {
	rng := tensor.NewInitializer(seed)
	projStd := initStd / math.Sqrt(2*float64(max(len(m.H), 1)))

	for _, p := range m.Parameters() {
		switch {
		case !strings.HasSuffix(p.Name, ".weight"), isNormParam(p.Name):
			continue
		case strings.HasSuffix(p.Name, "c_proj.weight"):
			rng.Normal(p.Value, projStd)
		default:
			rng.Normal(p.Value, initStd)
		}
	}
}

func isNormParam(name string) bool {
	for _, part := range strings.Split(name, ".") {
		if strings.HasPrefix(part, "ln_") {
			return true
		}
	}
	return false
}

// Config returns a copy of the configuration the model was built from.
func (m *GPT) Config() GPTConfig {
	return m.config
}

// LayoutName is the name of the layout the model was built from.
func (m *GPT) LayoutName() string {
	return m.layout
}

// ContextLength is the number of positions WPE can address.
func (m *GPT) ContextLength() int {
	return m.WPE.Num()
}

// VocabSize is the number of logits produced per position.
func (m *GPT) VocabSize() int {
	return m.LMHead.Out()
}

// SetTraining toggles dropout.
func (m *GPT) SetTraining(training bool) {
	m.training = training
}

// Training reports whether dropout is active.
func (m *GPT) Training() bool {
	return m.training
}

// Parameters lists every parameter tensor under its dotted name, in
// construction order.
func (m *GPT) Parameters() []tensor.Param {
	var ps []tensor.Param
	ps = append(ps, nn.Prefix("transformer.wte.", m.WTE.Parameters())...)
	ps = append(ps, nn.Prefix("transformer.wpe.", m.WPE.Parameters())...)
	for i, b := range m.H {
		ps = append(ps, nn.Prefix("transformer.h."+strconv.Itoa(i)+".", b.Parameters())...)
	}
	ps = append(ps, nn.Prefix("transformer.ln_f.", m.LNF.Parameters())...)
	ps = append(ps, nn.Prefix("lm_head.", m.LMHead.Parameters())...)
	return ps
}

// NumParams counts parameters. With nonEmbedding set, position embeddings
// are excluded.
func (m *GPT) NumParams(nonEmbedding bool) int {
	n := 0
	for _, p := range m.Parameters() {
		n += p.Value.Size()
	}
	if nonEmbedding {
		n -= m.WPE.Weight.Size()
	}
	return n
}

// Forward maps token ids (batch, seq) to logits (batch, seq, vocab_size).
func (m *GPT) Forward(ids *tensor.Tensor) (*tensor.Tensor, error) {
	if len(ids.Shape) != 2 {
		return nil, fmt.Errorf("expected 2D input (batch, seq), got %dD", len(ids.Shape))
	}
	seq := ids.Shape[1]
	if seq > m.ContextLength() {
		return nil, fmt.Errorf("sequence length %d exceeds context length %d", seq, m.ContextLength())
	}

	tok, err := m.WTE.Forward(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup token embeddings: %w", err)
	}
	pos, err := m.WPE.Weight.SliceN([]int{0, 0}, []int{seq, m.WPE.Dim()})
	if err != nil {
		return nil, fmt.Errorf("failed to slice position embeddings: %w", err)
	}
	x, err := tensor.Add(tok, pos)
	if err != nil {
		return nil, fmt.Errorf("failed to add embeddings: %w", err)
	}
	if m.config.Dropout > 0 && m.training {
		x = x.Dropout(m.config.Dropout, m.training)
	}

	mask := tensor.CreateCausalMask(seq)
	for i, b := range m.H {
		x, err = b.Forward(x, mask, m.training)
		if err != nil {
			return nil, fmt.Errorf("failed in block %d: %w", i, err)
		}
	}

	x, err = m.LNF.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("failed to apply ln_f: %w", err)
	}
	logits, err := m.LMHead.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("failed to compute logits: %w", err)
	}
	return logits, nil
}
