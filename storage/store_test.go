package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lectureRAG/core"
)

func vec(id, title string, start float64, emb ...float32) core.IndexedVector {
	return core.IndexedVector{
		ID:        id,
		Text:      "text of " + id,
		Embedding: emb,
		Metadata:  core.VectorMetadata{Title: title, ChunkID: "1", Number: "1", Start: start, End: start + 1},
	}
}

// storeContract runs the behaviour every backend must share.
func storeContract(t *testing.T, open func(t *testing.T) VectorStore) {
	ctx := context.Background()

	t.Run("insert query count", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Insert(ctx, []core.IndexedVector{
			vec("a__1__0", "a", 0, 1, 0, 0),
			vec("a__1__1000", "a", 1, 0.9, 0.1, 0),
			vec("b__1__0", "b", 0, 0, 1, 0),
		}))

		n, err := s.Count(ctx, Filter{})
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		n, err = s.Count(ctx, Filter{Title: "a"})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		hits, err := s.Query(ctx, []float32{1, 0, 0}, 2, Filter{})
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, "a__1__0", hits[0].ID)
		assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
		assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
		assert.Equal(t, "a", hits[0].Metadata.Title)
		assert.Equal(t, "text of a__1__0", hits[0].Text)
	})

	t.Run("filtered query never crosses titles", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Insert(ctx, []core.IndexedVector{
			vec("a__1__0", "a", 0, 1, 0, 0),
			vec("b__1__0", "b", 0, 0, 1, 0),
		}))
		hits, err := s.Query(ctx, []float32{1, 0, 0}, 5, Filter{Title: "b"})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "b", hits[0].Metadata.Title)

		hits, err = s.Query(ctx, []float32{1, 0, 0}, 5, Filter{Title: "c"})
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("duplicate id rejects whole batch", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Insert(ctx, []core.IndexedVector{vec("a__1__0", "a", 0, 1, 0)}))

		err := s.Insert(ctx, []core.IndexedVector{
			vec("a__1__5000", "a", 5, 0, 1),
			vec("a__1__0", "a", 0, 1, 1),
		})
		require.ErrorIs(t, err, core.ErrDuplicateID)

		n, err := s.Count(ctx, Filter{Title: "a"})
		require.NoError(t, err)
		assert.Equal(t, 1, n, "nothing from the rejected batch may be stored")

		err = s.Insert(ctx, []core.IndexedVector{vec("x", "x", 0, 1, 0), vec("x", "x", 0, 1, 0)})
		require.ErrorIs(t, err, core.ErrDuplicateID)
	})

	t.Run("get returns metadata", func(t *testing.T) {
		s := open(t)
		in := vec("a__NA__1500", "a", 1.5, 1, 0)
		in.Metadata.Number, in.Metadata.ChunkID = core.NumberNA, core.NumberNA
		require.NoError(t, s.Insert(ctx, []core.IndexedVector{in, vec("b__1__0", "b", 0, 0, 1)}))

		got, err := s.Get(ctx, Filter{Title: "a"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, in.ID, got[0].ID)
		assert.Equal(t, in.Text, got[0].Text)
		assert.Equal(t, in.Metadata, got[0].Metadata)
	})

	t.Run("delete by title is idempotent", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Insert(ctx, []core.IndexedVector{
			vec("a__1__0", "a", 0, 1, 0),
			vec("a__1__1000", "a", 1, 1, 0),
			vec("b__1__0", "b", 0, 0, 1),
		}))
		n, err := s.Delete(ctx, Filter{Title: "a"})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = s.Delete(ctx, Filter{Title: "a"})
		require.NoError(t, err)
		assert.Zero(t, n)

		left, err := s.Count(ctx, Filter{})
		require.NoError(t, err)
		assert.Equal(t, 1, left)
	})

	t.Run("query with a different dimension fails", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Insert(ctx, []core.IndexedVector{vec("a__1__0", "a", 0, 1, 0, 0)}))

		_, err := s.Query(ctx, []float32{1, 0}, 5, Filter{})
		require.ErrorIs(t, err, ErrDimensionMismatch)

		_, err = s.Query(ctx, []float32{1, 0}, 5, Filter{Title: "b"})
		require.NoError(t, err, "no candidates means nothing to compare")
	})
}

func TestMemoryVectorStore(t *testing.T) {
	storeContract(t, func(t *testing.T) VectorStore { return NewMemoryVectorStore() })
}

func TestSQLiteVectorStore(t *testing.T) {
	storeContract(t, func(t *testing.T) VectorStore {
		s, err := NewSQLiteVectorStore(context.Background(), filepath.Join(t.TempDir(), "vectors.db"), "lecture_embeddings")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestSQLiteVectorStore_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "vectors.db")

	s, err := NewSQLiteVectorStore(ctx, path, "lecture_embeddings")
	require.NoError(t, err)
	require.NoError(t, s.Insert(ctx, []core.IndexedVector{vec("a__1__0", "a", 0, 0.25, -0.5, 1)}))
	require.NoError(t, s.Close())

	s, err = NewSQLiteVectorStore(ctx, path, "lecture_embeddings")
	require.NoError(t, err)
	defer s.Close()
	hits, err := s.Query(ctx, []float32{0.25, -0.5, 1}, 1, Filter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

func TestSQLiteVectorStore_RejectsBadCollection(t *testing.T) {
	_, err := NewSQLiteVectorStore(context.Background(), filepath.Join(t.TempDir(), "v.db"), "drop table;")
	require.Error(t, err)
}

func TestNewVectorStore_UnknownKind(t *testing.T) {
	_, err := NewVectorStore(context.Background(), Options{Kind: "chroma"})
	require.Error(t, err)
}

func TestEmbeddingBlobRoundTrip(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3e-7}
	out, err := decodeEmbedding(encodeEmbedding(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeEmbedding([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 1}, []float32{2, 2}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 0}))
}

func TestPgSchemaStatements(t *testing.T) {
	small := strings.Join(pgSchemaStatements("lecture_embeddings", 1536), "\n")
	assert.Contains(t, small, "vector(1536)")
	assert.Contains(t, small, "USING hnsw (embedding vector_cosine_ops)")

	large := strings.Join(pgSchemaStatements("lecture_embeddings", 3072), "\n")
	assert.Contains(t, large, "vector(3072)")
	assert.NotContains(t, large, "hnsw")
}

func TestMilvusExpressions(t *testing.T) {
	assert.Equal(t, `id != ""`, milvusFilterExpr(Filter{}))
	assert.Equal(t, `title == "1_intro"`, milvusFilterExpr(Filter{Title: "1_intro"}))
	assert.Equal(t, `title == "say \"hi\" \\ bye"`, milvusFilterExpr(Filter{Title: `say "hi" \ bye`}))
	assert.Equal(t, `id in ["a", "b"]`, milvusIDListExpr([]string{"a", "b"}))
}
