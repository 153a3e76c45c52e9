// Package retrieval implements the document question-answering pipeline.
// Every invocation builds a fresh corpus for one document (extract, chunk,
// embed, index), answers an ordered batch of queries against it with one of
// the retrieval modes, and discards the corpus. A failure at any step aborts
// the whole batch with a *RetrievalError.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/query"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/responder"
	"github.com/54b3r/docqa-go/internal/store"
)

// Outcome is the answer to one query under one mode.
type Outcome struct {
	Documents []rag.Document `json:"documents"`
	Response  string         `json:"response"`
	// SubQuestions lists the generated sub-questions (analytical mode only).
	SubQuestions []string `json:"sub_questions,omitempty"`
}

// QueryResult pairs a query with its outcome. Exactly one outcome field is
// set, keyed by the mode that produced it.
type QueryResult struct {
	Query      string   `json:"query"`
	Standard   *Outcome `json:"standard_retrieval,omitempty"`
	Hybrid     *Outcome `json:"hybrid_search,omitempty"`
	Analytical *Outcome `json:"analytical_retrieval,omitempty"`
}

// Outcome returns whichever outcome is set.
func (r QueryResult) Outcome() *Outcome {
	switch {
	case r.Standard != nil:
		return r.Standard
	case r.Hybrid != nil:
		return r.Hybrid
	default:
		return r.Analytical
	}
}

func newQueryResult(mode Mode, q string, out *Outcome) QueryResult {
	r := QueryResult{Query: q}
	switch mode {
	case ModeStandard:
		r.Standard = out
	case ModeHybrid:
		r.Hybrid = out
	case ModeAnalytical:
		r.Analytical = out
	}
	return r
}

// Response is the result of one invocation; Results follow input query order.
type Response struct {
	Results []QueryResult `json:"results"`
}

// Corpus is the frozen, read-only product of the build phase. It is safe
// for concurrent queries and must be closed to release backend resources.
type Corpus struct {
	// Document is the document reference the corpus was built from.
	Document string
	// Strategy is the chunking strategy used.
	Strategy chunker.Strategy
	// Fragments are the chunks in sequence order.
	Fragments []rag.Fragment
	// Dimensions is the shared embedding length (0 when there are no fragments).
	Dimensions int

	index   rag.VectorIndex
	lexical *rag.BM25
	vector  *rag.VectorRetriever
	hybrid  *rag.HybridRetriever
}

// Close releases the similarity index.
func (c *Corpus) Close() error {
	if c == nil || c.index == nil {
		return nil
	}
	return c.index.Close()
}

// Orchestrator runs retrieval invocations. It holds no per-document state
// and is safe for concurrent use.
type Orchestrator struct {
	extractor Extractor
	embedder  rag.Embedder
	responder Responder
	completer responder.Completer
	factory   rag.IndexFactory
	history   Recorder
	metrics   *Metrics
	log       *slog.Logger
	opts      Options
}

// New constructs an Orchestrator from cfg.
func New(cfg *Config) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("retrieval: config must not be nil")
	}
	if cfg.Extractor == nil {
		return nil, fmt.Errorf("retrieval: extractor must not be nil")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("retrieval: embedder must not be nil")
	}
	if cfg.Responder == nil {
		return nil, fmt.Errorf("retrieval: responder must not be nil")
	}

	opts := DefaultOptions()
	if cfg.Options != nil {
		opts = *cfg.Options
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	factory := cfg.IndexFactory
	if factory == nil {
		factory = rag.MemoryFactory{}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Orchestrator{
		extractor: cfg.Extractor,
		embedder:  cfg.Embedder,
		responder: cfg.Responder,
		completer: cfg.Completer,
		factory:   factory,
		history:   cfg.History,
		metrics:   cfg.Metrics,
		log:       log,
		opts:      opts,
	}, nil
}

// Options returns the effective tunable parameters.
func (o *Orchestrator) Options() Options { return o.opts }

// StandardRetrieval answers each query from the top-k vector search hits.
func (o *Orchestrator) StandardRetrieval(ctx context.Context, document string, strategy chunker.Strategy, queries []string) (*Response, error) {
	return o.Run(ctx, ModeStandard, document, strategy, queries)
}

// HybridSearch answers each query from BM25 and vector hits fused by
// weighted reciprocal rank. Both rankers are built once per document.
func (o *Orchestrator) HybridSearch(ctx context.Context, document string, strategy chunker.Strategy, queries []string) (*Response, error) {
	return o.Run(ctx, ModeHybrid, document, strategy, queries)
}

// AnalyticalRetrieval answers each query from the hits of model-generated
// sub-questions, deduplicated by text and backfilled from the query itself.
func (o *Orchestrator) AnalyticalRetrieval(ctx context.Context, document string, strategy chunker.Strategy, queries []string) (*Response, error) {
	return o.Run(ctx, ModeAnalytical, document, strategy, queries)
}

// Run performs one invocation: validate, build, answer every query, record.
func (o *Orchestrator) Run(ctx context.Context, mode Mode, document string, strategy chunker.Strategy, queries []string) (resp *Response, err error) {
	start := time.Now()
	log := o.log.With(slog.String("mode", string(mode)), slog.String("document", document))
	defer func() {
		o.metrics.countBatch(mode, err)
		if err != nil {
			log.ErrorContext(ctx, "retrieval: batch failed", slog.Any("error", err))
		}
	}()

	if err := o.validate(mode, document, queries); err != nil {
		return nil, err
	}

	corpus, err := o.build(ctx, mode, document, strategy)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := corpus.Close(); cerr != nil {
			log.WarnContext(ctx, "retrieval: close index", slog.Any("error", cerr))
		}
	}()

	resp, err = o.Query(ctx, corpus, mode, queries)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	log.InfoContext(ctx, "retrieval: batch complete",
		slog.String("strategy", string(strategy)),
		slog.Int("queries", len(queries)),
		slog.Int("fragments", len(corpus.Fragments)),
		slog.Duration("duration", elapsed),
	)
	o.record(ctx, log, mode, corpus, resp, elapsed)
	return resp, nil
}

func (o *Orchestrator) validate(mode Mode, document string, queries []string) error {
	fail := func(format string, args ...any) error {
		return &RetrievalError{
			Mode:     mode,
			Document: document,
			Stage:    StageValidate,
			Err:      fmt.Errorf("%w: "+format, append([]any{rag.ErrInvalidParameter}, args...)...),
		}
	}
	switch mode {
	case ModeStandard, ModeHybrid, ModeAnalytical:
	default:
		return fail("unknown mode %q", mode)
	}
	if strings.TrimSpace(document) == "" {
		return fail("document reference is empty")
	}
	if len(queries) == 0 {
		return fail("at least one query is required")
	}
	for i, q := range queries {
		if strings.TrimSpace(q) == "" {
			return fail("query %d is empty", i)
		}
	}
	if mode == ModeAnalytical && o.completer == nil {
		return fail("analytical retrieval requires a completer")
	}
	return nil
}

// Build runs the build phase for document and returns the frozen corpus.
func (o *Orchestrator) Build(ctx context.Context, document string, strategy chunker.Strategy) (*Corpus, error) {
	return o.build(ctx, "", document, strategy)
}

func (o *Orchestrator) build(ctx context.Context, mode Mode, document string, strategy chunker.Strategy) (*Corpus, error) {
	start := time.Now()
	fail := func(stage Stage, err error) (*Corpus, error) {
		return nil, &RetrievalError{Mode: mode, Document: document, Stage: stage, Err: err}
	}

	ch, err := chunker.New(strategy, o.opts.Chunk)
	if err != nil {
		return fail(StageChunk, err)
	}

	text, err := o.extractor.Extract(ctx, document)
	if err != nil {
		return fail(StageExtract, rag.WithCategory(rag.ErrExtraction, err))
	}

	fragments, err := chunker.Fragments(ch, text, document)
	if err != nil {
		return fail(StageChunk, err)
	}

	texts := make([]string, len(fragments))
	for i, f := range fragments {
		texts[i] = f.Text
	}
	var embeddings [][]float32
	if len(texts) > 0 {
		embeddings, err = o.embedder.Embed(ctx, texts)
		if err != nil {
			return fail(StageEmbed, rag.WithCategory(rag.ErrEmbedding, err))
		}
	}
	dims, err := checkEmbeddings(embeddings, len(fragments))
	if err != nil {
		return fail(StageEmbed, err)
	}

	entries := make([]rag.Entry, len(fragments))
	for i, f := range fragments {
		entries[i] = rag.Entry{Text: f.Text, Embedding: embeddings[i], Metadata: rag.MetadataFor(f)}
	}
	index, err := o.factory.Build(ctx, entries)
	if err != nil {
		return fail(StageIndex, err)
	}

	vector, err := rag.NewVectorRetriever(o.embedder, index, o.opts.TopK)
	if err != nil {
		_ = index.Close()
		return fail(StageIndex, err)
	}
	lexical := rag.NewBM25(fragments, o.opts.BM25)
	hybrid, err := rag.NewHybridRetriever(lexical, vector, o.opts.Hybrid)
	if err != nil {
		_ = index.Close()
		return fail(StageIndex, err)
	}

	elapsed := time.Since(start)
	o.metrics.observeBuild(string(strategy), elapsed, len(fragments))
	o.log.InfoContext(ctx, "retrieval: corpus built",
		slog.String("document", document),
		slog.String("strategy", string(strategy)),
		slog.Int("fragments", len(fragments)),
		slog.Int("dimensions", dims),
		slog.Duration("duration", elapsed),
	)

	return &Corpus{
		Document:   document,
		Strategy:   strategy,
		Fragments:  fragments,
		Dimensions: dims,
		index:      index,
		lexical:    lexical,
		vector:     vector,
		hybrid:     hybrid,
	}, nil
}

// checkEmbeddings verifies one non-empty vector per fragment, all of the
// same length, and returns that length.
func checkEmbeddings(embeddings [][]float32, want int) (int, error) {
	if len(embeddings) != want {
		return 0, fmt.Errorf("%w: expected %d embeddings, got %d", rag.ErrEmbedding, want, len(embeddings))
	}
	dims := 0
	for i, e := range embeddings {
		if len(e) == 0 {
			return 0, fmt.Errorf("%w: embedding %d is empty", rag.ErrEmbedding, i)
		}
		if i == 0 {
			dims = len(e)
			continue
		}
		if len(e) != dims {
			return 0, fmt.Errorf("%w: embedding %d has %d dimensions, want %d", rag.ErrEmbedding, i, len(e), dims)
		}
	}
	return dims, nil
}

// Query answers queries against an already built corpus. Up to
// Options.Concurrency queries run at once; the first failure cancels the
// rest and no results are returned.
func (o *Orchestrator) Query(ctx context.Context, corpus *Corpus, mode Mode, queries []string) (*Response, error) {
	if err := o.validate(mode, corpus.Document, queries); err != nil {
		return nil, err
	}
	results := make([]QueryResult, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Concurrency)
	for i, q := range queries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return &RetrievalError{Mode: mode, Document: corpus.Document, Stage: StageSearch, Query: q, Err: err}
			}
			start := time.Now()
			out, err := o.answer(gctx, corpus, mode, q)
			if err != nil {
				return err
			}
			o.metrics.observeQuery(mode, time.Since(start))
			results[i] = newQueryResult(mode, q, out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Response{Results: results}, nil
}

func (o *Orchestrator) answer(ctx context.Context, corpus *Corpus, mode Mode, q string) (*Outcome, error) {
	fail := func(stage Stage, err error) (*Outcome, error) {
		return nil, &RetrievalError{Mode: mode, Document: corpus.Document, Stage: stage, Query: q, Err: err}
	}

	var (
		docs []rag.Document
		subs []string
		err  error
	)
	switch mode {
	case ModeStandard, ModeHybrid:
		r, k := o.ranker(corpus, mode)
		docs, err = r.Retrieve(ctx, q, k)
	case ModeAnalytical:
		subs, err = query.SubQuestions(ctx, o.completer, q, o.opts.SubQuestions)
		if err != nil {
			return fail(StageSubQuestions, rag.WithCategory(rag.ErrCompletion, err))
		}
		docs, err = o.analyticalDocuments(ctx, corpus, q, subs)
	default:
		return fail(StageValidate, fmt.Errorf("%w: unknown mode %q", rag.ErrInvalidParameter, mode))
	}
	if err != nil {
		return fail(searchStage(err), err)
	}

	answer, err := o.responder.Respond(ctx, q, docs)
	if err != nil {
		return fail(StageRespond, rag.WithCategory(rag.ErrCompletion, err))
	}
	if docs == nil {
		docs = []rag.Document{}
	}
	return &Outcome{Documents: docs, Response: answer, SubQuestions: subs}, nil
}

// ranker returns the retriever and result size a search mode uses.
func (o *Orchestrator) ranker(corpus *Corpus, mode Mode) (rag.Retriever, int) {
	if mode == ModeHybrid {
		return corpus.hybrid, o.opts.Hybrid.TopK
	}
	return corpus.vector, o.opts.TopK
}

// analyticalDocuments gathers SubQuestionTopK hits per sub-question, keeps
// the first occurrence of each text, backfills from the main query when
// fewer than TopK remain, and truncates to TopK.
func (o *Orchestrator) analyticalDocuments(ctx context.Context, corpus *Corpus, q string, subs []string) ([]rag.Document, error) {
	k := o.opts.TopK
	seen := make(map[string]struct{})
	var docs []rag.Document
	add := func(hits []rag.Document) {
		for _, d := range hits {
			if len(docs) >= k {
				return
			}
			if _, dup := seen[d.Content]; dup {
				continue
			}
			seen[d.Content] = struct{}{}
			docs = append(docs, d)
		}
	}

	var gathered []rag.Document
	for _, sub := range subs {
		hits, err := corpus.vector.Retrieve(ctx, sub, o.opts.SubQuestionTopK)
		if err != nil {
			return nil, err
		}
		gathered = append(gathered, hits...)
	}
	add(gathered)

	if len(docs) < k {
		primary, err := corpus.vector.Retrieve(ctx, q, k)
		if err != nil {
			return nil, err
		}
		add(primary)
	}
	return docs, nil
}

func searchStage(err error) Stage {
	if errors.Is(err, rag.ErrEmbedding) {
		return StageEmbed
	}
	return StageSearch
}

// record appends one history row per query. Failures are logged only.
func (o *Orchestrator) record(ctx context.Context, log *slog.Logger, mode Mode, corpus *Corpus, resp *Response, elapsed time.Duration) {
	if o.history == nil {
		return
	}
	batchID := uuid.NewString()
	runs := make([]store.Run, len(resp.Results))
	for i, r := range resp.Results {
		out := r.Outcome()
		runs[i] = store.Run{
			BatchID:   batchID,
			Document:  corpus.Document,
			Strategy:  string(corpus.Strategy),
			Mode:      string(mode),
			Query:     r.Query,
			Response:  out.Response,
			Documents: len(out.Documents),
			Duration:  elapsed,
		}
	}
	if err := o.history.Record(ctx, runs); err != nil {
		log.WarnContext(ctx, "retrieval: failed to record run history", slog.Any("error", err))
	}
}
