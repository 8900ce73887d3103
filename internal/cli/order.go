package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kingrea/layerdeck/internal/eventbridge"
	"github.com/kingrea/layerdeck/internal/order"
)

// OrderOptions holds flags for the order command.
type OrderOptions struct {
	*RootOptions
	JSON bool
}

// NewOrderCommand creates the order command.
func NewOrderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OrderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "order",
		Short: "Print the resolved stack, top first",
		Long: `Resolve the document's layer list against its records and print the
stack with the paint index each entry gets. Rows whose record is missing are
shown as unresolved. Nothing is written.

Examples:
  layerdeck order
  layerdeck order --json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrder(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print the stack as JSON")

	return cmd
}

// NewMoveCommand creates the move command.
func NewMoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "move <dragged> <target>",
		Short: "Move one layer onto another, as a completed drag would",
		Long: `Move the dragged entry to the target's position: above it when moving
up, below it when moving down. Both record stores and the document are
updated. When either id cannot be resolved only the list moves and a
rebuild from the stores follows.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMove(cmd.Context(), rootOpts, args[0], args[1], cmd.OutOrStdout())
		},
	}
}

// NewRebuildCommand creates the rebuild command.
func NewRebuildCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Regenerate the layer list from the record stores",
		Long: `Drop rows whose records are gone, add records the list is missing and
reapply the paint order, then save the document.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRebuild(cmd.Context(), rootOpts, cmd.OutOrStdout())
		},
	}
}

func runOrder(ctx context.Context, opts *OrderOptions, out io.Writer) error {
	s, err := openSession(opts.RootOptions, sessionConfig{})
	if err != nil {
		return err
	}
	defer s.Close()
	return s.oneShot(ctx, func(ctx context.Context) error {
		snapshot, base, err := s.ws.CurrentOrder(ctx)
		if err != nil {
			return err
		}
		if opts.JSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Base    int                      `json:"base"`
				Entries []eventbridge.OrderEntry `json:"entries"`
			}{Base: base, Entries: eventbridge.EntriesFromSnapshot(snapshot)})
		}
		fmt.Fprint(out, order.FormatSnapshot(snapshot))
		return nil
	})
}

func runMove(ctx context.Context, opts *RootOptions, dragged, target string, out io.Writer) error {
	s, err := openSession(opts, sessionConfig{autosave: true, journal: true})
	if err != nil {
		return err
	}
	defer s.Close()
	return s.oneShot(ctx, func(ctx context.Context) error {
		result, err := s.ws.Move(ctx, dragged, target)
		if err != nil {
			return err
		}
		if err := s.ws.Flush(ctx); err != nil {
			return err
		}
		switch result.Applied {
		case order.AppliedFull:
			fmt.Fprintf(out, "moved %s next to %s\n", dragged, target)
		case order.AppliedViewOnly:
			fmt.Fprintf(out, "moved %s in the list only (%s); rebuilt from the stores\n", dragged, result.Reason)
		default:
			return fmt.Errorf("move %s -> %s skipped: %s", dragged, target, result.Reason)
		}
		if err := s.ws.LastSaveError(ctx); err != nil {
			return fmt.Errorf("save document: %w", err)
		}
		snapshot, err := s.ws.Snapshot(ctx)
		if err != nil {
			return err
		}
		fmt.Fprint(out, order.FormatSnapshot(snapshot))
		return nil
	})
}

func runRebuild(ctx context.Context, opts *RootOptions, out io.Writer) error {
	s, err := openSession(opts, sessionConfig{autosave: true, journal: true})
	if err != nil {
		return err
	}
	defer s.Close()
	return s.oneShot(ctx, func(ctx context.Context) error {
		result, err := s.ws.Rebuild(ctx)
		if err != nil {
			return err
		}
		if err := s.ws.Flush(ctx); err != nil {
			return err
		}
		if err := s.ws.LastSaveError(ctx); err != nil {
			return fmt.Errorf("save document: %w", err)
		}
		fmt.Fprintf(out, "rebuilt %d row(s)\n", len(result.Rows))
		for _, issue := range result.Report.Issues {
			fmt.Fprintf(out, "  ! %s %s\n", issue.Kind, issue.ID)
		}
		fmt.Fprint(out, order.FormatSnapshot(result.Order))
		return nil
	})
}
