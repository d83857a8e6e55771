package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/agent"
	"github.com/54b3r/docqa-go/internal/apperr"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/tracing"
)

// NewAskCmd constructs the `docqa ask` command, which answers a single
// question from the ingested documents.
func NewAskCmd() *cobra.Command {
	var model string
	var fresh bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the ingested documents",
		Long: `Ask a natural language question. The most similar document fragments are
retrieved and sent to the model together with the recent conversation.

Examples:
  docqa ask "What does the handbook say about remote work?"
  docqa ask --model gemma3:4b "Summarise the Q3 report"
  docqa ask --fresh "What is Gemini?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			flush, _ := tracing.Setup(log)
			defer flush()

			a, err := newApp(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer a.Close()

			conv := a.History(ctx)
			assistant, err := a.Assistant(ctx, conv)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			req := agent.Request{Question: strings.Join(args, " "), Model: model}
			if fresh {
				req.History = []rag.Message{}
			}

			resp, err := assistant.Answer(ctx, req)
			if err != nil {
				if e, ok := apperr.As(err); ok && e.Hint != "" {
					return fmt.Errorf("ask: %s (try: %s)", apperr.PublicMessage(err), e.Hint)
				}
				return fmt.Errorf("ask: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, resp.Answer)
			if len(resp.Sources) > 0 {
				fmt.Fprintln(out, "\nSources:")
				for i, src := range resp.Sources {
					fmt.Fprintf(out, "  %d. %s (similarity %s)\n", i+1, src.FileName, src.Similarity)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "Model to answer with (default from DEFAULT_MODEL)")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "Ignore prior conversation for this question")

	return cmd
}
