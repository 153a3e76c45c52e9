package rag

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for a Qdrant instance used as an
// ephemeral index backend.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// CollectionPrefix prefixes every per-build collection name (default: docqa).
	CollectionPrefix string

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// payload keys stored on every point.
const (
	payloadText   = "text"
	payloadIndex  = "index"
	payloadSource = "source"
)

// QdrantFactory builds indexes in short-lived Qdrant collections. Each Build
// creates a fresh collection named <prefix>-<uuid>; closing the returned
// index drops it, so nothing outlives the request that built it.
type QdrantFactory struct {
	// client is the shared Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration.
	cfg *QdrantConfig

	// log records collection lifecycle events.
	log *slog.Logger
}

// NewQdrantFactory connects to Qdrant and returns a factory ready to build
// indexes. The caller owns the factory and must Close it on shutdown.
func NewQdrantFactory(cfg *QdrantConfig, log *slog.Logger) (*QdrantFactory, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.CollectionPrefix == "" {
		cfg.CollectionPrefix = "docqa"
	}
	if log == nil {
		log = slog.Default()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}
	return &QdrantFactory{client: client, cfg: cfg, log: log}, nil
}

// Client exposes the underlying client for readiness checks.
func (f *QdrantFactory) Client() *qdrant.Client { return f.client }

// Close closes the underlying Qdrant gRPC connection.
func (f *QdrantFactory) Close() error {
	return f.client.Close()
}

// Build creates a collection sized to the entries' dimensionality and
// upserts every entry as a point whose numeric ID is its position.
func (f *QdrantFactory) Build(ctx context.Context, entries []Entry) (VectorIndex, error) {
	name := f.cfg.CollectionPrefix + "-" + uuid.NewString()
	idx := &QdrantIndex{client: f.client, collection: name, size: len(entries), log: f.log}
	if len(entries) == 0 {
		// Nothing to store; Search on an empty index never reaches Qdrant.
		idx.empty = true
		return idx, nil
	}

	dim := len(entries[0].Embedding)
	err := f.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim), //nolint:gosec // dimensions are small and positive
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create collection %q: %w", name, err)
	}
	f.log.Debug("qdrant: collection created", slog.String("collection", name), slog.Int("dim", dim))

	points := make([]*qdrant.PointStruct, 0, len(entries))
	for i, e := range entries {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(uint64(i)), //nolint:gosec // i is a slice index
			Vectors: qdrant.NewVectors(e.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadText:   e.Text,
				payloadIndex:  int64(e.Metadata.Index),
				payloadSource: e.Metadata.Source,
			}),
		})
	}

	_, err = f.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return idx, nil
}

// QdrantIndex is a frozen VectorIndex stored in a single Qdrant collection.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	size       int
	empty      bool
	log        *slog.Logger
}

// Search queries the collection by cosine similarity. When a filter is
// supplied every point is fetched and filtered client-side so the result
// still holds min(k, matching) entries.
func (q *QdrantIndex) Search(ctx context.Context, query []float32, k int, filter Filter) ([]Document, error) {
	if k <= 0 || q.empty {
		return []Document{}, nil
	}

	limit := uint64(k) //nolint:gosec // k > 0
	if filter != nil {
		limit = uint64(q.size) //nolint:gosec // size is a slice length
	}
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	docs := make([]Document, 0, min(k, len(results)))
	for _, r := range results {
		doc := Document{Score: float64(r.GetScore())}
		if p := r.GetPayload(); p != nil {
			doc.Content = p[payloadText].GetStringValue()
			doc.Metadata.Index = int(p[payloadIndex].GetIntegerValue())
			doc.Metadata.Source = p[payloadSource].GetStringValue()
		}
		if filter != nil && !filter(doc.Metadata) {
			continue
		}
		docs = append(docs, doc)
	}

	// Qdrant does not guarantee insertion order among equal scores.
	slices.SortStableFunc(docs, func(a, b Document) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return a.Metadata.Index - b.Metadata.Index
		}
	})
	if len(docs) > k {
		docs = docs[:k]
	}
	return docs, nil
}

// Len returns the number of points stored.
func (q *QdrantIndex) Len() int { return q.size }

// Close drops the collection. The shared client stays open.
func (q *QdrantIndex) Close() error {
	if q.empty {
		return nil
	}
	if err := q.client.DeleteCollection(context.Background(), q.collection); err != nil {
		return fmt.Errorf("qdrant: failed to drop collection %q: %w", q.collection, err)
	}
	q.log.Debug("qdrant: collection dropped", slog.String("collection", q.collection))
	return nil
}
