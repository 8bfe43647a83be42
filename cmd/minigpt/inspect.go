package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"minigpt/pkg/model"
)

func newInspectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Build a model and list its parameters",
		Long: "Build a model from the config and layout, then print every named parameter with its shape.\n" +
			"A layout that fails to build has each of its defects listed.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := model.LoadConfig(opts.configPath)
			if err != nil {
				return err
			}

			m, err := opts.build(cfg)
			if err != nil {
				red := color.New(color.FgRed)
				for _, d := range defects(err) {
					red.Fprintf(cmd.ErrOrStderr(), "  - %v\n", d)
				}
				return fmt.Errorf("failed to build model: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "layout: %s\n", m.LayoutName())
			fmt.Fprintf(out, "config: block_size=%d vocab_size=%d n_layer=%d n_head=%d n_embd=%d dropout=%g bias=%t\n\n",
				cfg.BlockSize, cfg.VocabSize, cfg.NLayer, cfg.NHead, cfg.NEmbd, cfg.Dropout, cfg.Bias)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSHAPE\tCOUNT")
			for _, p := range m.Parameters() {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", p.Name, shapeString(p.Value.Shape), p.Value.Size())
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			fmt.Fprintf(out, "\ntotal parameters: %d\n", m.NumParams(false))
			fmt.Fprintf(out, "non-embedding parameters: %d\n", m.NumParams(true))
			return nil
		},
	}
}

// defects splits an aggregated build error into its parts.
func defects(err error) []error {
	var agg interface{ Errors() []error }
	if errors.As(err, &agg) {
		return agg.Errors()
	}
	return []error{err}
}

func shapeString(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = fmt.Sprint(d)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
