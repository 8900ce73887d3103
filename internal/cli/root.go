// Package cli holds the layerdeck command tree.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Dir      string
	Document string
	Debug    bool
}

// NewRootCommand creates the root command. Run without a subcommand it opens
// the UI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "layerdeck",
		Short: "Keep a layer stack and its paint order in step",
		Long: `layerdeck edits the stacking order of a document's image layers and
annotations. The visible list, both record stores and the painted z-order
are kept consistent on every move; producers feed records in over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(opts.Dir) == "" {
				cwd, err := os.Getwd()
				if err != nil {
					return fmt.Errorf("resolve working directory: %w", err)
				}
				opts.Dir = cwd
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUI(cmd.Context(), opts)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.Dir, "dir", "C", "", "project directory (default: working directory)")
	cmd.PersistentFlags().StringVarP(&opts.Document, "document", "d", "", "layer document (default: from .layerdeck/config.yaml)")
	cmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "write DEBUG entries to the log")

	cmd.AddCommand(NewUICommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewOrderCommand(opts))
	cmd.AddCommand(NewMoveCommand(opts))
	cmd.AddCommand(NewRebuildCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewInitCommand(opts))

	return cmd
}
