package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"lectureRAG/core"
)

const (
	milvusVectorField = "vector"
	milvusMaxDocument = 65535
)

var milvusOutputFields = []string{"id", "title", "number", "chunk_id", "start", "end", "document"}

type MilvusConfig struct {
	Address    string
	Username   string
	Password   string
	APIKey     string // Zilliz Cloud
	Collection string
	Dimension  int
}

// MilvusVectorStore stores chunks in a Milvus collection keyed by chunk id.
type MilvusVectorStore struct {
	mc   client.Client
	coll string
	dim  int
	log  *slog.Logger
}

func NewMilvusVectorStore(ctx context.Context, cfg MilvusConfig, logger *slog.Logger) (*MilvusVectorStore, error) {
	if cfg.Address == "" {
		cfg.Address = "localhost:19530"
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("milvus store needs a positive dimension, got %d", cfg.Dimension)
	}
	if logger == nil {
		logger = slog.Default()
	}
	mc, err := client.NewClient(ctx, client.Config{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		APIKey:   cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus: %w", err)
	}
	s := &MilvusVectorStore{mc: mc, coll: cfg.Collection, dim: cfg.Dimension, log: logger}
	if err := s.ensureSchemaAndIndex(ctx); err != nil {
		mc.Close()
		return nil, err
	}
	logger.Info("Connected to Milvus", "address", cfg.Address, "collection", cfg.Collection)
	return s, nil
}

func (s *MilvusVectorStore) ensureSchemaAndIndex(ctx context.Context) error {
	has, err := s.mc.HasCollection(ctx, s.coll)
	if err != nil {
		return fmt.Errorf("has collection: %w", err)
	}
	if !has {
		schema := entity.NewSchema().WithName(s.coll).WithDescription("lecture transcript chunks")
		schema.WithField(entity.NewField().WithName("id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(1024).WithIsPrimaryKey(true))
		schema.WithField(entity.NewField().WithName("title").WithDataType(entity.FieldTypeVarChar).WithMaxLength(512))
		schema.WithField(entity.NewField().WithName("number").WithDataType(entity.FieldTypeVarChar).WithMaxLength(64))
		schema.WithField(entity.NewField().WithName("chunk_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(64))
		schema.WithField(entity.NewField().WithName("start").WithDataType(entity.FieldTypeDouble))
		schema.WithField(entity.NewField().WithName("end").WithDataType(entity.FieldTypeDouble))
		schema.WithField(entity.NewField().WithName("document").WithDataType(entity.FieldTypeVarChar).WithMaxLength(milvusMaxDocument))
		schema.WithField(entity.NewField().WithName(milvusVectorField).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(s.dim)))

		if err := s.mc.CreateCollection(ctx, schema, int32(2), client.WithConsistencyLevel(entity.ClStrong)); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
		idx, err := entity.NewIndexHNSW(entity.COSINE, 8, 200)
		if err != nil {
			return fmt.Errorf("new hnsw index: %w", err)
		}
		if err := s.mc.CreateIndex(ctx, s.coll, milvusVectorField, idx, false); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	if err := s.mc.LoadCollection(ctx, s.coll, false); err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	return nil
}

// Insert checks for existing ids first; Milvus would otherwise keep both rows.
func (s *MilvusVectorStore) Insert(ctx context.Context, vectors []core.IndexedVector) error {
	if err := checkBatch(vectors); err != nil {
		return err
	}
	if len(vectors) == 0 {
		return nil
	}
	ids := make([]string, len(vectors))
	for i, v := range vectors {
		ids[i] = v.ID
	}
	existing, err := s.mc.Query(ctx, s.coll, nil, milvusIDListExpr(ids), []string{"id"},
		client.WithSearchQueryConsistencyLevel(entity.ClStrong))
	if err != nil {
		return fmt.Errorf("milvus id lookup: %w", err)
	}
	if col, ok := existing.GetColumn("id").(*entity.ColumnVarChar); ok && col.Len() > 0 {
		return fmt.Errorf("%w: %s", core.ErrDuplicateID, col.Data()[0])
	}

	n := len(vectors)
	titles, numbers, chunkIDs, docs := make([]string, 0, n), make([]string, 0, n), make([]string, 0, n), make([]string, 0, n)
	starts, ends := make([]float64, 0, n), make([]float64, 0, n)
	embeds := make([][]float32, 0, n)
	for _, v := range vectors {
		if len(v.Embedding) != s.dim {
			return fmt.Errorf("vector %s has dimension %d, collection uses %d", v.ID, len(v.Embedding), s.dim)
		}
		titles = append(titles, v.Metadata.Title)
		numbers = append(numbers, v.Metadata.Number)
		chunkIDs = append(chunkIDs, v.Metadata.ChunkID)
		starts = append(starts, v.Metadata.Start)
		ends = append(ends, v.Metadata.End)
		docs = append(docs, v.Text)
		embeds = append(embeds, v.Embedding)
	}
	_, err = s.mc.Insert(ctx, s.coll, "",
		entity.NewColumnVarChar("id", ids),
		entity.NewColumnVarChar("title", titles),
		entity.NewColumnVarChar("number", numbers),
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnDouble("start", starts),
		entity.NewColumnDouble("end", ends),
		entity.NewColumnVarChar("document", docs),
		entity.NewColumnFloatVector(milvusVectorField, s.dim, embeds),
	)
	if err != nil {
		return fmt.Errorf("milvus insert: %w", err)
	}
	return nil
}

func (s *MilvusVectorStore) Query(ctx context.Context, embedding []float32, k int, f Filter) ([]core.Hit, error) {
	sp, err := entity.NewIndexHNSWSearchParam(74)
	if err != nil {
		return nil, fmt.Errorf("search param: %w", err)
	}
	res, err := s.mc.Search(ctx, s.coll, []string{}, milvusFilterExpr(f), milvusOutputFields,
		[]entity.Vector{entity.FloatVector(embedding)}, milvusVectorField, entity.COSINE, k, sp,
		client.WithSearchQueryConsistencyLevel(entity.ClStrong))
	if err != nil {
		return nil, fmt.Errorf("milvus search: %w", err)
	}
	var hits []core.Hit
	for _, r := range res {
		cols := map[string]entity.Column{}
		for _, c := range r.Fields {
			cols[c.Name()] = c
		}
		for i := 0; i < r.ResultCount; i++ {
			v := vectorAt(cols, i)
			if ids, ok := r.IDs.(*entity.ColumnVarChar); ok && v.ID == "" && i < ids.Len() {
				v.ID = ids.Data()[i]
			}
			hits = append(hits, core.Hit{ID: v.ID, Score: float64(r.Scores[i]), Text: v.Text, Metadata: v.Metadata})
		}
	}
	return hits, nil
}

func (s *MilvusVectorStore) Get(ctx context.Context, f Filter) ([]core.IndexedVector, error) {
	rs, err := s.mc.Query(ctx, s.coll, nil, milvusFilterExpr(f), milvusOutputFields,
		client.WithSearchQueryConsistencyLevel(entity.ClStrong))
	if err != nil {
		return nil, fmt.Errorf("milvus query: %w", err)
	}
	cols := map[string]entity.Column{}
	for _, c := range rs {
		cols[c.Name()] = c
	}
	idCol := rs.GetColumn("id")
	if idCol == nil {
		return nil, nil
	}
	out := make([]core.IndexedVector, 0, idCol.Len())
	for i := 0; i < idCol.Len(); i++ {
		out = append(out, vectorAt(cols, i))
	}
	return out, nil
}

func (s *MilvusVectorStore) Delete(ctx context.Context, f Filter) (int, error) {
	n, err := s.Count(ctx, f)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if err := s.mc.Delete(ctx, s.coll, "", milvusFilterExpr(f)); err != nil {
		return 0, fmt.Errorf("milvus delete: %w", err)
	}
	return n, nil
}

func (s *MilvusVectorStore) Count(ctx context.Context, f Filter) (int, error) {
	rs, err := s.mc.Query(ctx, s.coll, nil, milvusFilterExpr(f), []string{"count(*)"},
		client.WithSearchQueryConsistencyLevel(entity.ClStrong))
	if err != nil {
		return 0, fmt.Errorf("milvus count: %w", err)
	}
	col, ok := rs.GetColumn("count(*)").(*entity.ColumnInt64)
	if !ok || col.Len() == 0 {
		return 0, fmt.Errorf("milvus count: unexpected result shape")
	}
	return int(col.Data()[0]), nil
}

func (s *MilvusVectorStore) Close() error {
	return s.mc.Close()
}

// milvusFilterExpr builds a boolean expression; Milvus requires one for
// query and delete, so the whole collection is `id != ""`.
func milvusFilterExpr(f Filter) string {
	if f.Title == "" {
		return `id != ""`
	}
	return "title == " + quoteMilvus(f.Title)
}

func milvusIDListExpr(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = quoteMilvus(id)
	}
	return "id in [" + strings.Join(quoted, ", ") + "]"
}

func quoteMilvus(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func vectorAt(cols map[string]entity.Column, i int) core.IndexedVector {
	str := func(name string) string {
		if c, ok := cols[name].(*entity.ColumnVarChar); ok {
			if data := c.Data(); i < len(data) {
				return data[i]
			}
		}
		return ""
	}
	num := func(name string) float64 {
		if c, ok := cols[name].(*entity.ColumnDouble); ok {
			if data := c.Data(); i < len(data) {
				return data[i]
			}
		}
		return 0
	}
	return core.IndexedVector{
		ID:   str("id"),
		Text: str("document"),
		Metadata: core.VectorMetadata{
			Title:   str("title"),
			ChunkID: str("chunk_id"),
			Number:  str("number"),
			Start:   num("start"),
			End:     num("end"),
		},
	}
}
