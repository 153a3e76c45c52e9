package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/store"
)

// NewHistoryCmd constructs the `docqa history` command, which lists the
// most recently answered questions from the run history database.
func NewHistoryCmd() *cobra.Command {
	var (
		doc    string
		limit  int
		output string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently answered questions",
		Long: `List rows from the run history database (DOCQA_HISTORY_DB, default
~/.docqa/history.db), newest first. Every successful retrieve batch records
one row per question.

Examples:
  docqa history
  docqa history --doc report.pdf --limit 5 -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			if err := checkOutput(output); err != nil {
				return fmt.Errorf("history: %w", err)
			}
			if limit <= 0 {
				return fmt.Errorf("history: --limit must be positive, got %d", limit)
			}

			path, err := historyPath()
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			if path == "" {
				return fmt.Errorf("history: run history is disabled (DOCQA_HISTORY_DB=%s)", historyDisabled)
			}
			hs, err := store.Open(path)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			defer func() { _ = hs.Close() }()

			runs, err := hs.Recent(ctx, doc, limit)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			return writeRuns(cmd.OutOrStdout(), output, runs)
		},
	}

	cmd.Flags().StringVarP(&doc, "doc", "d", "", "Only show runs for this document reference")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of rows")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format: json, text")

	return cmd
}

// writeRuns prints runs as JSON or as an aligned table.
func writeRuns(w io.Writer, format string, runs []store.Run) error {
	if format == outputJSON {
		if runs == nil {
			runs = []store.Run{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(runs) //nolint:wrapcheck // CLI output
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tMODE\tSTRATEGY\tDOCUMENT\tQUERY\tDOCS\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.CreatedAt.Format(time.DateTime), r.Mode, r.Strategy, r.Document,
			snippet(r.Query), r.Documents, r.Duration.Round(time.Millisecond))
	}
	return tw.Flush() //nolint:wrapcheck // CLI output
}
