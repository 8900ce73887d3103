package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kingrea/layerdeck/internal/journal"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded order changes, newest first",
		Long: `Print the order journal: every applied move, degraded move and
rebuild with the stack it produced.

Examples:
  layerdeck history
  layerdeck history -n 5`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "number of changes to show (0 for all)")

	return cmd
}

func runHistory(ctx context.Context, opts *HistoryOptions, out io.Writer) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if !cfg.JournalEnabled() {
		return errors.New("journal is disabled (journal.enabled in config.yaml)")
	}
	if _, err := os.Stat(cfg.JournalPath()); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(out, "No order changes recorded yet.")
		return nil
	}
	j, err := journal.Open(cfg.JournalPath())
	if err != nil {
		return err
	}
	defer j.Close()
	records, err := j.History(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "No order changes recorded yet.")
		return nil
	}
	fmt.Fprint(out, journal.FormatHistory(records))
	return nil
}
