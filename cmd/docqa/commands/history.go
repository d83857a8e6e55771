package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/logging"
)

// NewHistoryCmd constructs the `docqa history` command group. It operates on
// the persisted transcript, so it is only useful when DOCQA_HISTORY_DB is not
// "disabled".
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show or clear the conversation history",
	}
	cmd.AddCommand(newHistoryShowCmd(), newHistoryClearCmd())
	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the retained conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			a, err := newApp(ctx, log)
			if err != nil {
				return fmt.Errorf("history show: %w", err)
			}
			defer a.Close()

			conv := a.History(ctx)
			out := cmd.OutOrStdout()
			msgs := conv.All()
			if len(msgs) == 0 {
				fmt.Fprintln(out, "No conversation history.")
				return nil
			}
			for _, m := range msgs {
				fmt.Fprintf(out, "[%s] %s\n\n", m.Role, m.Content)
			}
			fmt.Fprintf(out, "%d of at most %d messages\n", len(msgs), conv.Cap())
			return nil
		},
	}
}

func newHistoryClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Discard the conversation history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			a, err := newApp(ctx, log)
			if err != nil {
				return fmt.Errorf("history clear: %w", err)
			}
			defer a.Close()

			if err := a.History(ctx).Clear(ctx); err != nil {
				return fmt.Errorf("history clear: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Conversation history cleared")
			return nil
		},
	}
}
