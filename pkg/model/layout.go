package model

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

//go:embed layouts/gpt.yaml
var defaultLayoutYAML []byte

// Layer kinds accepted in a layout.
const (
	KindEmbedding = "embedding"
	KindLayerNorm = "layernorm"
	KindLinear    = "linear"
)

// Dim is a layout dimension: either a config key such as "n_embd" or a
// positive integer literal.
type Dim string

// UnmarshalYAML accepts any scalar so that both `n_embd` and `384` decode.
func (d *Dim) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: dimension must be a scalar", n.Line)
	}
	*d = Dim(n.Value)
	return nil
}

// Resolve returns the integer value of d against a config's Dims.
func (d Dim) Resolve(dims map[string]int) (int, error) {
	if n, err := strconv.Atoi(string(d)); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("%w: dimension %d must be positive", ErrInvalidLayout, n)
		}
		return n, nil
	}
	n, ok := dims[string(d)]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownField, string(d))
	}
	return n, nil
}

// LayerSpec declares one layer: its kind, symbolic dimensions and whether it
// carries a bias. A nil Bias defers to the config.
type LayerSpec struct {
	Kind string `yaml:"kind"`
	Dims []Dim  `yaml:"dims"`
	Bias *bool  `yaml:"bias,omitempty"`
}

// BlockSpec declares the block stack: a registered block type repeated
// Count times.
type BlockSpec struct {
	Type  string `yaml:"type"`
	Count Dim    `yaml:"count"`
}

// Layout describes the skeleton's modules under their conventional names.
type Layout struct {
	Name   string    `yaml:"name"`
	WTE    LayerSpec `yaml:"wte"`
	WPE    LayerSpec `yaml:"wpe"`
	H      BlockSpec `yaml:"h"`
	LNF    LayerSpec `yaml:"ln_f"`
	LMHead LayerSpec `yaml:"lm_head"`
}

// DefaultLayout returns the built-in GPT layout.
func DefaultLayout() *Layout {
	l, err := ParseLayout(defaultLayoutYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded layout: %v", err))
	}
	return l
}

// ParseLayout decodes a YAML layout. Unknown keys are rejected.
func ParseLayout(data []byte) (*Layout, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var l Layout
	if err := dec.Decode(&l); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}
	return &l, nil
}

// LoadLayout reads and decodes a layout file.
func LoadLayout(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read layout %s: %w", path, err)
	}
	l, err := ParseLayout(data)
	if err != nil {
		return nil, fmt.Errorf("layout %s: %w", path, err)
	}
	return l, nil
}

// plan is a layout resolved against a config: concrete sizes for every
// module plus the block factory.
type plan struct {
	vocab, width    int // wte rows and columns
	positions       int // wpe rows
	blockType       string
	blocks          int
	newBlock        BlockFactory
	normBias        bool
	headIn, headOut int
	headBias        bool
}

// resolve checks the layout against cfg and returns every problem found,
// not only the first.
func (l *Layout) resolve(cfg GPTConfig, reg *BlockRegistry) (*plan, error) {
	dims := cfg.Dims()
	var errs error
	p := &plan{blockType: l.H.Type}

	wte, err := l.WTE.resolve("wte", KindEmbedding, 2, dims)
	errs = multierr.Append(errs, err)
	wpe, err := l.WPE.resolve("wpe", KindEmbedding, 2, dims)
	errs = multierr.Append(errs, err)
	lnf, err := l.LNF.resolve("ln_f", KindLayerNorm, 1, dims)
	errs = multierr.Append(errs, err)
	head, err := l.LMHead.resolve("lm_head", KindLinear, 2, dims)
	errs = multierr.Append(errs, err)

	if n, err := l.H.Count.Resolve(dims); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("h.count: %w", err))
	} else {
		p.blocks = n
	}
	if f, ok := reg.Lookup(l.H.Type); ok {
		p.newBlock = f
	} else {
		errs = multierr.Append(errs, fmt.Errorf("h.type: %w %q (registered: %v)",
			ErrUndefinedBlock, l.H.Type, reg.Names()))
	}

	// Shape chaining. Each check runs only when its inputs resolved, so a
	// single typo is reported once rather than cascading.
	if wte != nil {
		p.vocab, p.width = wte[0], wte[1]
		if p.width != cfg.NEmbd {
			errs = multierr.Append(errs, fmt.Errorf("wte: %w: width %d, blocks expect n_embd=%d",
				ErrShapeMismatch, p.width, cfg.NEmbd))
		}
	}
	if wpe != nil {
		p.positions = wpe[0]
		if wte != nil && wpe[1] != p.width {
			errs = multierr.Append(errs, fmt.Errorf("wpe: %w: width %d, wte width %d",
				ErrShapeMismatch, wpe[1], p.width))
		}
	}
	if lnf != nil && wte != nil && lnf[0] != p.width {
		errs = multierr.Append(errs, fmt.Errorf("ln_f: %w: width %d, stream width %d",
			ErrShapeMismatch, lnf[0], p.width))
	}
	if head != nil {
		p.headIn, p.headOut = head[0], head[1]
		if wte != nil && (p.headIn != p.width || p.headOut != p.vocab) {
			errs = multierr.Append(errs, fmt.Errorf("lm_head: %w: maps %d -> %d, want %d -> %d",
				ErrShapeMismatch, p.headIn, p.headOut, p.width, p.vocab))
		}
	}

	p.normBias = l.LNF.biasOr(cfg.Bias)
	p.headBias = l.LMHead.biasOr(false)

	if errs != nil {
		return nil, errs
	}
	return p, nil
}

// resolve validates kind and arity and resolves every dimension. It returns
// nil sizes when anything failed.
func (s LayerSpec) resolve(name, kind string, arity int, dims map[string]int) ([]int, error) {
	if s.Kind != kind {
		return nil, fmt.Errorf("%s: %w: kind %q, want %q", name, ErrInvalidLayout, s.Kind, kind)
	}
	if len(s.Dims) != arity {
		return nil, fmt.Errorf("%s: %w: %d dims, want %d", name, ErrInvalidLayout, len(s.Dims), arity)
	}
	var errs error
	out := make([]int, arity)
	for i, d := range s.Dims {
		n, err := d.Resolve(dims)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s.dims[%d]: %w", name, i, err))
			continue
		}
		out[i] = n
	}
	if errs != nil {
		return nil, errs
	}
	return out, nil
}

func (s LayerSpec) biasOr(def bool) bool {
	if s.Bias == nil {
		return def
	}
	return *s.Bias
}
