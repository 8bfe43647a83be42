// Package model assembles a decoder-only GPT skeleton: token and position
// embeddings, a stack of transformer blocks, a final layer norm and an
// output projection to vocabulary logits.
package model

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// GPTConfig holds the model hyperparameters. The wire keys match the
// symbolic dimensions accepted in layout manifests.
type GPTConfig struct {
	// BlockSize is the context length: the number of positions the model
	// can address.
	BlockSize int `yaml:"block_size" mapstructure:"block_size"`

	// VocabSize is the number of distinct tokens.
	VocabSize int `yaml:"vocab_size" mapstructure:"vocab_size"`

	// NLayer is the number of stacked blocks.
	NLayer int `yaml:"n_layer" mapstructure:"n_layer"`

	// NHead is the number of attention heads; it must divide NEmbd.
	NHead int `yaml:"n_head" mapstructure:"n_head"`

	// NEmbd is the embedding width.
	NEmbd int `yaml:"n_embd" mapstructure:"n_embd"`

	// Dropout is applied to embeddings, attention weights and residuals
	// while training.
	Dropout float32 `yaml:"dropout" mapstructure:"dropout"`

	// Bias enables bias vectors in block linears and layer norms.
	Bias bool `yaml:"bias" mapstructure:"bias"`
}

// DefaultConfig returns the stock character-level configuration.
func DefaultConfig() GPTConfig {
	return GPTConfig{
		BlockSize: 256,
		VocabSize: 85,
		NLayer:    6,
		NHead:     6,
		NEmbd:     384,
		Dropout:   0.0,
		Bias:      true,
	}
}

// Validate checks that every size is positive and the heads divide the
// embedding width.
func (c GPTConfig) Validate() error {
	for _, f := range []struct {
		key string
		val int
	}{
		{"block_size", c.BlockSize},
		{"vocab_size", c.VocabSize},
		{"n_layer", c.NLayer},
		{"n_head", c.NHead},
		{"n_embd", c.NEmbd},
	} {
		if f.val <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfig, f.key, f.val)
		}
	}
	if c.NEmbd%c.NHead != 0 {
		return fmt.Errorf("%w: n_embd (%d) must be divisible by n_head (%d)",
			ErrInvalidConfig, c.NEmbd, c.NHead)
	}
	if !(c.Dropout >= 0 && c.Dropout < 1) {
		return fmt.Errorf("%w: dropout must be in [0, 1), got %v", ErrInvalidConfig, c.Dropout)
	}
	return nil
}

// HeadDim returns the width of one attention head.
func (c GPTConfig) HeadDim() int {
	return c.NEmbd / c.NHead
}

// Dims maps each integer wire key to its value.
func (c GPTConfig) Dims() map[string]int {
	return map[string]int{
		"block_size": c.BlockSize,
		"vocab_size": c.VocabSize,
		"n_layer":    c.NLayer,
		"n_head":     c.NHead,
		"n_embd":     c.NEmbd,
	}
}

// LoadConfig reads a YAML config file, overlays GPT_* environment variables
// (GPT_N_EMBD, GPT_BLOCK_SIZE, ...) and fills unset keys from DefaultConfig.
// An empty path uses defaults and the environment only.
func LoadConfig(path string) (GPTConfig, error) {
	v := viper.New()
	def := DefaultConfig()
	v.SetDefault("block_size", def.BlockSize)
	v.SetDefault("vocab_size", def.VocabSize)
	v.SetDefault("n_layer", def.NLayer)
	v.SetDefault("n_head", def.NHead)
	v.SetDefault("n_embd", def.NEmbd)
	v.SetDefault("dropout", def.Dropout)
	v.SetDefault("bias", def.Bias)

	v.SetEnvPrefix("GPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return GPTConfig{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg GPTConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return GPTConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return GPTConfig{}, err
	}
	return cfg, nil
}
