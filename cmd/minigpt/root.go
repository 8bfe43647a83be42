package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"minigpt/internal/logging"
	"minigpt/pkg/model"
)

type rootOptions struct {
	configPath string
	layoutPath string
	verbose    bool
	seed       uint64

	logger *logrus.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "minigpt",
		Short:         "Build and inspect decoder-only GPT skeletons",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.logger = logging.NewWithWriter(cmd.ErrOrStderr(), opts.verbose)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "model config file (YAML); GPT_* env vars override")
	flags.StringVarP(&opts.layoutPath, "layout", "l", "", "layout manifest (YAML); built-in GPT layout when empty")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	flags.Uint64Var(&opts.seed, "seed", 1337, "weight initialization seed")

	cmd.AddCommand(
		newInspectCmd(opts),
		newGenerateCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// build loads the layout named by the flags and builds cfg against it.
func (o *rootOptions) build(cfg model.GPTConfig) (*model.GPT, error) {
	layout := model.DefaultLayout()
	if o.layoutPath != "" {
		var err error
		if layout, err = model.LoadLayout(o.layoutPath); err != nil {
			return nil, err
		}
	}
	o.logger.WithField("layout", layout.Name).Debug("building model")
	return model.Build(cfg, layout,
		model.WithLogger(o.logger),
		model.WithSeed(o.seed),
	)
}
