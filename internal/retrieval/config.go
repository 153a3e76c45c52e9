package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/responder"
	"github.com/54b3r/docqa-go/internal/store"
)

// Defaults for the tunable retrieval parameters.
const (
	DefaultTopK            = 4
	DefaultHybridTopK      = 3
	DefaultSubQuestionTopK = 2
	DefaultConcurrency     = 1
)

// Options holds the tunable retrieval parameters.
type Options struct {
	// Chunk holds the chunker parameters applied at build time.
	Chunk chunker.Params
	// TopK is the number of hits for standard retrieval and the final size
	// of the analytical result set.
	TopK int
	// Hybrid configures the lexical and vector fusion.
	Hybrid rag.HybridOptions
	// BM25 configures the lexical ranker.
	BM25 rag.BM25Params
	// SubQuestions is how many sub-questions analytical retrieval requests.
	SubQuestions int
	// SubQuestionTopK is the number of hits fetched per sub-question.
	SubQuestionTopK int
	// Concurrency bounds how many queries of a batch are answered at once.
	Concurrency int
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		Chunk: chunker.DefaultParams(),
		TopK:  DefaultTopK,
		Hybrid: rag.HybridOptions{
			TopK:          DefaultHybridTopK,
			LexicalWeight: 0.5,
			VectorWeight:  0.5,
			RankConstant:  rag.DefaultRRFConstant,
		},
		BM25:            rag.DefaultBM25Params(),
		SubQuestions:    3,
		SubQuestionTopK: DefaultSubQuestionTopK,
		Concurrency:     DefaultConcurrency,
	}
}

// OptionsFromEnv starts from DefaultOptions and applies any of:
//
//	CHUNK_SIZE, CHUNK_OVERLAP, CHUNK_THRESHOLD
//	RETRIEVAL_TOP_K, RETRIEVAL_CONCURRENCY
//	HYBRID_TOP_K, HYBRID_LEXICAL_WEIGHT, HYBRID_VECTOR_WEIGHT, HYBRID_RRF_K, HYBRID_LIMIT
//	ANALYTICAL_SUBQUESTIONS, ANALYTICAL_TOP_K
func OptionsFromEnv() Options {
	o := DefaultOptions()
	o.Chunk.Size = getEnvInt("CHUNK_SIZE", o.Chunk.Size)
	o.Chunk.Overlap = getEnvInt("CHUNK_OVERLAP", o.Chunk.Overlap)
	o.Chunk.Threshold = getEnvFloat("CHUNK_THRESHOLD", o.Chunk.Threshold)
	o.TopK = getEnvInt("RETRIEVAL_TOP_K", o.TopK)
	o.Concurrency = getEnvInt("RETRIEVAL_CONCURRENCY", o.Concurrency)
	o.Hybrid.TopK = getEnvInt("HYBRID_TOP_K", o.Hybrid.TopK)
	o.Hybrid.LexicalWeight = getEnvFloat("HYBRID_LEXICAL_WEIGHT", o.Hybrid.LexicalWeight)
	o.Hybrid.VectorWeight = getEnvFloat("HYBRID_VECTOR_WEIGHT", o.Hybrid.VectorWeight)
	o.Hybrid.RankConstant = getEnvInt("HYBRID_RRF_K", o.Hybrid.RankConstant)
	o.Hybrid.Limit = getEnvInt("HYBRID_LIMIT", o.Hybrid.Limit)
	o.SubQuestions = getEnvInt("ANALYTICAL_SUBQUESTIONS", o.SubQuestions)
	o.SubQuestionTopK = getEnvInt("ANALYTICAL_TOP_K", o.SubQuestionTopK)
	return o
}

// Validate rejects parameters that no build or query could use. Chunker
// parameters are checked per strategy at build time.
func (o Options) Validate() error {
	switch {
	case o.TopK <= 0:
		return fmt.Errorf("%w: retrieval: top-k must be > 0, got %d", rag.ErrInvalidParameter, o.TopK)
	case o.Hybrid.TopK < 0:
		return fmt.Errorf("%w: retrieval: hybrid top-k must be >= 0, got %d", rag.ErrInvalidParameter, o.Hybrid.TopK)
	case o.Hybrid.LexicalWeight < 0 || o.Hybrid.VectorWeight < 0:
		return fmt.Errorf("%w: retrieval: fusion weights must be >= 0", rag.ErrInvalidParameter)
	case o.Hybrid.Limit < 0:
		return fmt.Errorf("%w: retrieval: hybrid limit must be >= 0, got %d", rag.ErrInvalidParameter, o.Hybrid.Limit)
	case o.SubQuestions <= 0:
		return fmt.Errorf("%w: retrieval: sub-question count must be > 0, got %d", rag.ErrInvalidParameter, o.SubQuestions)
	case o.SubQuestionTopK <= 0:
		return fmt.Errorf("%w: retrieval: sub-question top-k must be > 0, got %d", rag.ErrInvalidParameter, o.SubQuestionTopK)
	case o.Concurrency <= 0:
		return fmt.Errorf("%w: retrieval: concurrency must be > 0, got %d", rag.ErrInvalidParameter, o.Concurrency)
	}
	return nil
}

// Extractor turns a document reference into plain text.
type Extractor interface {
	Extract(ctx context.Context, ref string) (string, error)
}

// Responder synthesises an answer from a query and its retrieved documents.
type Responder interface {
	Respond(ctx context.Context, query string, docs []rag.Document) (string, error)
}

// Recorder persists the rows of a completed batch.
type Recorder interface {
	Record(ctx context.Context, runs []store.Run) error
}

// Config wires the orchestrator's collaborators. Extractor, Embedder and
// Responder are required; Completer is required only for analytical
// retrieval.
type Config struct {
	Extractor Extractor
	Embedder  rag.Embedder
	Responder Responder
	// Completer generates analytical sub-questions.
	Completer responder.Completer
	// IndexFactory builds the per-invocation similarity index
	// (default rag.MemoryFactory).
	IndexFactory rag.IndexFactory
	// History receives one row per answered query after a successful batch.
	History Recorder
	// Metrics is optional.
	Metrics *Metrics
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Options holds the tunable parameters (zero value: DefaultOptions()).
	Options *Options
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
