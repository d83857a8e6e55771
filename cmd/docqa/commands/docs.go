package commands

import (
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/logging"
)

// NewDocsCmd constructs the `docqa docs` command group for inspecting and
// removing stored documents. None of its subcommands need an embedder.
func NewDocsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Inspect and manage stored documents",
	}
	cmd.AddCommand(newDocsStatsCmd(), newDocsListCmd(), newDocsDeleteCmd(), newDocsClearCmd())
	return cmd
}

func newDocsStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the number of stored fragments and files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			a, err := newApp(ctx, log)
			if err != nil {
				return fmt.Errorf("docs stats: %w", err)
			}
			defer a.Close()

			stats, err := a.store.Stats(ctx)
			if err != nil {
				return fmt.Errorf("docs stats: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Fragments: %d\nFiles:     %d\n", stats.TotalChunks, stats.UniqueFiles)
			return nil
		},
	}
}

func newDocsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [fileName]",
		Short: "List stored files, or the fragments of one file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			a, err := newApp(ctx, log)
			if err != nil {
				return fmt.Errorf("docs list: %w", err)
			}
			defer a.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer tw.Flush()

			if len(args) == 1 {
				name := ingestion.SanitizeFileName(args[0])
				chunks, err := a.store.ChunksByFileName(ctx, name)
				if err != nil {
					return fmt.Errorf("docs list: %w", err)
				}
				if len(chunks) == 0 {
					return fmt.Errorf("docs list: document %q not found", name)
				}
				fmt.Fprintln(tw, "INDEX\tID\tCHARS\tUPLOADED")
				for _, c := range chunks {
					fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", c.Metadata.ChunkIndex, c.ID, len([]rune(c.Text)),
						c.Metadata.UploadDate.Format("2006-01-02 15:04"))
				}
				return nil
			}

			chunks, err := a.store.AllChunks(ctx)
			if err != nil {
				return fmt.Errorf("docs list: %w", err)
			}
			counts := make(map[string]int)
			types := make(map[string]string)
			for _, c := range chunks {
				counts[c.Metadata.FileName]++
				types[c.Metadata.FileName] = c.Metadata.FileType
			}
			names := make([]string, 0, len(counts))
			for name := range counts {
				names = append(names, name)
			}
			slices.Sort(names)

			fmt.Fprintln(tw, "FILE\tTYPE\tFRAGMENTS")
			for _, name := range names {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", name, types[name], counts[name])
			}
			return nil
		},
	}
}

func newDocsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <fileName>",
		Short: "Remove every fragment of one file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			a, err := newApp(ctx, log)
			if err != nil {
				return fmt.Errorf("docs delete: %w", err)
			}
			defer a.Close()

			name := ingestion.SanitizeFileName(args[0])
			if err := a.store.DeleteByFileName(ctx, name); err != nil {
				return fmt.Errorf("docs delete: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", name)
			return nil
		},
	}
}

func newDocsClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every stored document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("docs clear: refusing to clear the store without --yes")
			}

			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			a, err := newApp(ctx, log)
			if err != nil {
				return fmt.Errorf("docs clear: %w", err)
			}
			defer a.Close()

			if err := a.store.Clear(ctx); err != nil {
				return fmt.Errorf("docs clear: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All documents cleared")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm removal of every document")
	return cmd
}
