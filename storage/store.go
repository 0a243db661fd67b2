package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"lectureRAG/core"
)

// ErrDimensionMismatch is returned by in-process similarity queries when the
// query and a stored vector differ in length, e.g. after the embedding
// dimension was changed without reindexing.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// VectorStore persists transcript chunk embeddings for one collection.
type VectorStore interface {
	// Insert adds vectors. An id that already exists, or repeats within the
	// call, fails the whole call with core.ErrDuplicateID.
	Insert(ctx context.Context, vectors []core.IndexedVector) error
	// Query returns at most k hits ordered by descending similarity.
	Query(ctx context.Context, embedding []float32, k int, f Filter) ([]core.Hit, error)
	// Get returns every matching record. Embeddings may be omitted.
	Get(ctx context.Context, f Filter) ([]core.IndexedVector, error)
	// Delete removes every matching record and reports how many were removed.
	Delete(ctx context.Context, f Filter) (int, error)
	Count(ctx context.Context, f Filter) (int, error)
	Close() error
}

// Filter restricts an operation to records whose metadata matches. The zero
// value selects the whole collection.
type Filter struct {
	Title string
}

// Matches reports whether m passes the filter.
func (f Filter) Matches(m core.VectorMetadata) bool {
	return f.Title == "" || m.Title == f.Title
}

// Options selects and configures a backend.
type Options struct {
	Kind       string // "sqlite", "memory", "pgvector", "milvus"
	Collection string
	Dimension  int
	DataRoot   string

	PostgresURL string

	MilvusAddr     string
	MilvusUsername string
	MilvusPassword string
	MilvusAPIKey   string

	Logger *slog.Logger
}

// NewVectorStore opens the configured backend. Connection failures are
// returned, never replaced by another backend.
func NewVectorStore(ctx context.Context, opts Options) (VectorStore, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	kind := strings.ToLower(strings.TrimSpace(opts.Kind))
	opts.Logger.Info("Opening vector store", "kind", kind, "collection", opts.Collection)

	switch kind {
	case "memory":
		return NewMemoryVectorStore(), nil
	case "", "sqlite":
		return NewSQLiteVectorStore(ctx, filepath.Join(opts.DataRoot, "vectors.db"), opts.Collection)
	case "pgvector":
		return NewPgVectorStore(ctx, opts.PostgresURL, opts.Collection, opts.Dimension, opts.Logger)
	case "milvus":
		return NewMilvusVectorStore(ctx, MilvusConfig{
			Address:    opts.MilvusAddr,
			Username:   opts.MilvusUsername,
			Password:   opts.MilvusPassword,
			APIKey:     opts.MilvusAPIKey,
			Collection: opts.Collection,
			Dimension:  opts.Dimension,
		}, opts.Logger)
	default:
		return nil, fmt.Errorf("unknown vector store %q", opts.Kind)
	}
}

// checkBatch rejects empty ids, ids repeated within the batch and
// inconsistent embedding lengths.
func checkBatch(vectors []core.IndexedVector) error {
	seen := make(map[string]struct{}, len(vectors))
	dim := -1
	for _, v := range vectors {
		if v.ID == "" {
			return fmt.Errorf("vector with empty id")
		}
		if _, ok := seen[v.ID]; ok {
			return fmt.Errorf("%w: %s repeated in batch", core.ErrDuplicateID, v.ID)
		}
		seen[v.ID] = struct{}{}
		if len(v.Embedding) == 0 {
			return fmt.Errorf("vector %s has no embedding", v.ID)
		}
		if dim >= 0 && len(v.Embedding) != dim {
			return fmt.Errorf("vector %s has dimension %d, batch uses %d", v.ID, len(v.Embedding), dim)
		}
		dim = len(v.Embedding)
	}
	return nil
}

// cosineSimilarity returns 0 when either vector has zero norm. Callers check
// that the lengths match.
func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// rankByCosine scores candidates against query and keeps the best k.
// Any stored vector whose length differs from the query fails the call.
func rankByCosine(candidates []core.IndexedVector, query []float32, k int) ([]core.Hit, error) {
	hits := make([]core.Hit, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Embedding) != len(query) {
			return nil, fmt.Errorf("%w: query has %d dimensions, vector %s has %d",
				ErrDimensionMismatch, len(query), c.ID, len(c.Embedding))
		}
		hits = append(hits, core.Hit{
			ID:       c.ID,
			Score:    cosineSimilarity(query, c.Embedding),
			Text:     c.Text,
			Metadata: c.Metadata,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > 0 && k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}
