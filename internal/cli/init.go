package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kingrea/layerdeck/internal/config"
)

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the .layerdeck directory and a default config",
		Long: `Create .layerdeck/ with a commented config.yaml, a logs directory and a
state directory for the journal. An existing config is left alone unless
--document is given, in which case the document setting is updated.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(rootOpts, cmd.OutOrStdout())
		},
	}
}

func runInit(opts *RootOptions, out io.Writer) error {
	if err := config.InitProjectDir(opts.Dir); err != nil {
		return err
	}
	cfg, err := config.NewConfig(opts.Dir)
	if err != nil {
		return err
	}
	if doc := strings.TrimSpace(opts.Document); doc != "" {
		if err := cfg.SetDocument(doc); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "Initialized %s\n", cfg.StateDir)
	fmt.Fprintf(out, "Document: %s\n", cfg.DocumentPath())
	return nil
}
