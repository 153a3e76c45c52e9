package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/query"
)

// NewClassifyCmd constructs the `docqa classify` command, which labels a
// question as Factual, Analytical, Opinion or Contextual and can list the
// sub-questions analytical retrieval would search for.
func NewClassifyCmd() *cobra.Command {
	var subQuestions int

	cmd := &cobra.Command{
		Use:   "classify [question]",
		Short: "Classify a question and optionally decompose it",
		Long: `Ask the chat model which kind of question this is.

The category is one of Factual, Analytical, Opinion or Contextual, or
Unclassified when the model's reply names none of them. With
--sub-questions N the command also prints the N sub-questions that
analytical retrieval would search for.

Examples:
  docqa classify "why did revenue fall in Q3?"
  docqa classify --sub-questions 3 "compare the two proposals"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			flush := setupTracing(log, "docqa classify")
			defer flush()

			chatModel, _, err := newChatModel(ctx, log)
			if err != nil {
				return fmt.Errorf("classify: %w", err)
			}
			r, err := newResponder(chatModel, log)
			if err != nil {
				return fmt.Errorf("classify: %w", err)
			}

			classifier, decomposer := queryCompleters(r)
			q := strings.Join(args, " ")
			c, err := query.Classify(ctx, classifier, q)
			if err != nil {
				return fmt.Errorf("classify: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, c.Category)

			if subQuestions <= 0 {
				return nil
			}
			subs, err := query.SubQuestions(ctx, decomposer, q, subQuestions)
			if err != nil {
				return fmt.Errorf("classify: %w", err)
			}
			for _, s := range subs {
				fmt.Fprintf(out, "  - %s\n", s)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&subQuestions, "sub-questions", "n", 0, "Also generate this many sub-questions")

	return cmd
}
