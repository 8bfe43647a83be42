package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"minigpt/pkg/model"
	"minigpt/pkg/tensor"
	"minigpt/pkg/tokenizer"
)

type generateOptions struct {
	corpusPath  string
	vocabPath   string
	prompt      string
	maxTokens   int
	temperature float64
	topK        int
	sampleSeed  uint64
}

func newGenerateCmd(root *rootOptions) *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Sample text from an untrained model with a character vocabulary",
		Long: "Build a character tokenizer from --corpus (or load one with --vocab), size the model's\n" +
			"vocabulary to match, and extend --prompt by --max-tokens characters.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := opts.tokenizer()
			if err != nil {
				return err
			}

			cfg, err := model.LoadConfig(root.configPath)
			if err != nil {
				return err
			}
			cfg.VocabSize = tok.VocabSize()

			m, err := root.build(cfg)
			if err != nil {
				return fmt.Errorf("failed to build model: %w", err)
			}

			ids, err := tok.Encode(opts.prompt)
			if err != nil {
				return fmt.Errorf("failed to encode prompt: %w", err)
			}
			prompt, err := tensor.FromInts(ids, []int{1, len(ids)})
			if err != nil {
				return err
			}

			root.logger.WithFields(logrus.Fields{
				"prompt_tokens": len(ids),
				"max_tokens":    opts.maxTokens,
				"temperature":   opts.temperature,
				"top_k":         opts.topK,
			}).Info("generating")

			out, err := model.Generate(cmd.Context(), m, prompt, model.GenerateOptions{
				MaxNewTokens: opts.maxTokens,
				Temperature:  opts.temperature,
				TopK:         opts.topK,
				Seed:         opts.sampleSeed,
			})
			if err != nil {
				return err
			}

			generated := make([]int, out.Shape[1])
			for i := range generated {
				generated[i] = int(out.Data[i])
			}
			text, err := tok.Decode(generated)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.corpusPath, "corpus", "", "text file whose characters form the vocabulary")
	flags.StringVar(&opts.vocabPath, "vocab", "", "vocabulary file written by a previous run; saved here when --corpus is also set")
	flags.StringVarP(&opts.prompt, "prompt", "p", "\n", "prompt text")
	flags.IntVarP(&opts.maxTokens, "max-tokens", "n", 100, "number of characters to generate")
	flags.Float64VarP(&opts.temperature, "temperature", "t", 1.0, "sampling temperature; 0 for greedy decoding")
	flags.IntVarP(&opts.topK, "top-k", "k", 0, "sample only from the k most likely characters; 0 disables")
	flags.Uint64Var(&opts.sampleSeed, "sample-seed", 0, "sampler seed")
	return cmd
}

func (o *generateOptions) tokenizer() (*tokenizer.Tokenizer, error) {
	switch {
	case o.corpusPath != "":
		data, err := os.ReadFile(o.corpusPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read corpus: %w", err)
		}
		tok, err := tokenizer.NewCharTokenizer(string(data))
		if err != nil {
			return nil, err
		}
		if o.vocabPath != "" {
			if err := tok.Save(o.vocabPath); err != nil {
				return nil, fmt.Errorf("failed to save vocabulary: %w", err)
			}
		}
		return tok, nil
	case o.vocabPath != "":
		return tokenizer.LoadTokenizer(o.vocabPath)
	default:
		return nil, fmt.Errorf("one of --corpus or --vocab is required")
	}
}
