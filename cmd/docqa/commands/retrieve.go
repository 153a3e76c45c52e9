package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/retrieval"
)

// Output formats accepted by --output.
const (
	outputJSON = "json"
	outputText = "text"
)

// snippetRunes bounds the fragment preview printed in text output.
const snippetRunes = 120

// NewRetrieveCmd constructs the `docqa retrieve` command, which answers a
// batch of questions about one document.
func NewRetrieveCmd() *cobra.Command {
	var (
		doc         string
		strategy    string
		mode        string
		queries     []string
		topK        int
		concurrency int
		output      string
	)

	cmd := &cobra.Command{
		Use:   "retrieve [question...]",
		Short: "Answer questions about a document",
		Long: `Extract, chunk and embed a document, then answer every question against it.

Questions come from repeated --query flags and positional arguments, in that
order. Results are printed in the same order. Any failure aborts the batch.

Modes:
  standard    top-k vector search (standard_retrieval)
  hybrid      BM25 and vector hits fused by reciprocal rank (hybrid_search)
  analytical  hits for model-generated sub-questions (analytical_retrieval)

Examples:
  docqa retrieve --doc report.pdf "what were the key findings?"
  docqa retrieve --doc https://example.com/post --mode hybrid -q "who wrote it?" -q "when?"
  docqa retrieve --doc notes.md --strategy fixed --output text "summarise the notes"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			m, ok := retrieval.ParseMode(mode)
			if !ok {
				return fmt.Errorf("retrieve: unknown mode %q; valid values: standard, hybrid, analytical", mode)
			}
			s, err := chunker.ParseStrategy(strategy)
			if err != nil {
				return fmt.Errorf("retrieve: %w", err)
			}
			if err := checkOutput(output); err != nil {
				return fmt.Errorf("retrieve: %w", err)
			}
			all := append(append([]string{}, queries...), args...)
			if len(all) == 0 {
				return fmt.Errorf("retrieve: at least one question is required (--query or argument)")
			}

			opts := retrieval.OptionsFromEnv()
			if cmd.Flags().Changed("top-k") {
				opts.TopK = topK
			}
			if cmd.Flags().Changed("concurrency") {
				opts.Concurrency = concurrency
			}

			log.Info("retrieve starting",
				slog.String("document", doc),
				slog.String("mode", string(m)),
				slog.String("strategy", string(s)),
				slog.Int("queries", len(all)),
			)

			flush := setupTracing(log, "docqa retrieve")
			defer flush()

			p, err := buildPipeline(ctx, log, pipelineConfig{Options: &opts, History: true})
			if err != nil {
				return fmt.Errorf("retrieve: %w", err)
			}
			defer p.Close()

			resp, err := p.orchestrator.Run(ctx, m, doc, s, all)
			if err != nil {
				return err //nolint:wrapcheck // RetrievalError already names mode, document and stage
			}
			return writeResponse(cmd.OutOrStdout(), output, resp)
		},
	}

	cmd.Flags().StringVarP(&doc, "doc", "d", "", "Document to query: PDF path or URL, web page URL, or text file")
	cmd.Flags().StringVarP(&strategy, "strategy", "s", string(chunker.StructureBased), "Chunking strategy: fixed, semantic, structure_based")
	cmd.Flags().StringVarP(&mode, "mode", "m", "standard", "Retrieval mode: standard, hybrid, analytical")
	cmd.Flags().StringArrayVarP(&queries, "query", "q", nil, "Question to answer (repeatable)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", retrieval.DefaultTopK, "Fragments retrieved per question (overrides RETRIEVAL_TOP_K)")
	cmd.Flags().IntVar(&concurrency, "concurrency", retrieval.DefaultConcurrency, "Questions answered concurrently (overrides RETRIEVAL_CONCURRENCY)")
	cmd.Flags().StringVarP(&output, "output", "o", outputJSON, "Output format: json, text")
	_ = cmd.MarkFlagRequired("doc")

	return cmd
}

// checkOutput validates an --output value.
func checkOutput(format string) error {
	switch format {
	case outputJSON, outputText:
		return nil
	}
	return fmt.Errorf("unknown output format %q; valid values: json, text", format)
}

// writeResponse prints resp as indented JSON or as readable text.
func writeResponse(w io.Writer, format string, resp *retrieval.Response) error {
	if format == outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp) //nolint:wrapcheck // CLI output
	}

	for i, r := range resp.Results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		out := r.Outcome()
		fmt.Fprintf(w, "Q: %s\n", r.Query)
		if out == nil {
			continue
		}
		for _, sq := range out.SubQuestions {
			fmt.Fprintf(w, "   - %s\n", sq)
		}
		fmt.Fprintf(w, "A: %s\n", out.Response)
		for _, d := range out.Documents {
			fmt.Fprintf(w, "   [%d] %.4f %s\n", d.Metadata.Index, d.Score, snippet(d.Content))
		}
	}
	return nil
}

// snippet flattens whitespace and truncates s to snippetRunes runes.
func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= snippetRunes {
		return s
	}
	return string(r[:snippetRunes]) + "..."
}
