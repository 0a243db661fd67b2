package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"lectureRAG/core"
)

// pgUniqueViolation is the SQLSTATE for a unique constraint violation.
const pgUniqueViolation = "23505"

// maxHNSWDims is the largest vector dimension pgvector can index with HNSW.
const maxHNSWDims = 2000

// PgVectorStore keeps one table per collection in PostgreSQL with the vector extension.
type PgVectorStore struct {
	pool  *pgxpool.Pool
	table string
	dim   int
	log   *slog.Logger
}

// NewPgVectorStore connects and ensures the collection table exists.
func NewPgVectorStore(ctx context.Context, databaseURL, collection string, dim int, logger *slog.Logger) (*PgVectorStore, error) {
	if err := checkIdent(collection); err != nil {
		return nil, err
	}
	if dim <= 0 {
		return nil, fmt.Errorf("pgvector store needs a positive dimension, got %d", dim)
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PgVectorStore{pool: pool, table: collection, dim: dim, log: logger}
	if err := s.ensureTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	// The vector type only exists after the extension is created, so types
	// are registered once the schema is in place.
	pool.Close()
	cfg.AfterConnect = pgxvec.RegisterTypes
	if s.pool, err = pgxpool.NewWithConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	logger.Info("Successfully connected to PostgreSQL", "table", collection, "dimension", dim)
	return s, nil
}

// pgSchemaStatements returns the DDL for a collection table.
func pgSchemaStatements(table string, dim int) []string {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			number TEXT NOT NULL,
			chunk_id TEXT NOT NULL,
			start_time DOUBLE PRECISION NOT NULL,
			end_time DOUBLE PRECISION NOT NULL,
			document TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, table, dim),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_title ON %s(title)", table, table),
	}
	if dim <= maxHNSWDims {
		stmts = append(stmts, fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS idx_%s_embedding ON %s USING hnsw (embedding vector_cosine_ops)", table, table))
	}
	return stmts
}

func (s *PgVectorStore) ensureTable(ctx context.Context) error {
	for _, stmt := range pgSchemaStatements(s.table, s.dim) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure table %s: %w", s.table, err)
		}
	}
	if s.dim > maxHNSWDims {
		s.log.Warn("Dimension too large for an HNSW index, queries will scan the table",
			"table", s.table, "dimension", s.dim)
	}
	return nil
}

// Insert writes the batch in one transaction; a unique violation rolls back everything.
func (s *PgVectorStore) Insert(ctx context.Context, vectors []core.IndexedVector) error {
	if err := checkBatch(vectors); err != nil {
		return err
	}
	if len(vectors) == 0 {
		return nil
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		query := fmt.Sprintf(`INSERT INTO %s (id, title, number, chunk_id, start_time, end_time, document, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, s.table)
		for _, v := range vectors {
			m := v.Metadata
			batch.Queue(query, v.ID, m.Title, m.Number, m.ChunkID, m.Start, m.End, v.Text, pgvector.NewVector(v.Embedding))
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: %s", core.ErrDuplicateID, pgErr.Detail)
		}
		return fmt.Errorf("pgvector insert: %w", err)
	}
	return nil
}

// Query uses cosine distance (<=>); score = 1 - distance.
func (s *PgVectorStore) Query(ctx context.Context, embedding []float32, k int, f Filter) ([]core.Hit, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, document, title, number, chunk_id, start_time, end_time, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE ($2 = '' OR title = $2)
		ORDER BY embedding <=> $1
		LIMIT $3`, s.table), pgvector.NewVector(embedding), f.Title, k)
	if err != nil {
		return nil, fmt.Errorf("pgvector query: %w", err)
	}
	defer rows.Close()

	var hits []core.Hit
	for rows.Next() {
		var h core.Hit
		m := &h.Metadata
		if err := rows.Scan(&h.ID, &h.Text, &m.Title, &m.Number, &m.ChunkID, &m.Start, &m.End, &h.Score); err != nil {
			return nil, fmt.Errorf("pgvector scan: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *PgVectorStore) Get(ctx context.Context, f Filter) ([]core.IndexedVector, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, document, title, number, chunk_id, start_time, end_time
		FROM %s
		WHERE ($1 = '' OR title = $1)
		ORDER BY created_at, id`, s.table), f.Title)
	if err != nil {
		return nil, fmt.Errorf("pgvector get: %w", err)
	}
	defer rows.Close()

	var out []core.IndexedVector
	for rows.Next() {
		var v core.IndexedVector
		m := &v.Metadata
		if err := rows.Scan(&v.ID, &v.Text, &m.Title, &m.Number, &m.ChunkID, &m.Start, &m.End); err != nil {
			return nil, fmt.Errorf("pgvector scan: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PgVectorStore) Delete(ctx context.Context, f Filter) (int, error) {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE ($1 = '' OR title = $1)`, s.table), f.Title)
	if err != nil {
		return 0, fmt.Errorf("pgvector delete: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PgVectorStore) Count(ctx context.Context, f Filter) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE ($1 = '' OR title = $1)`, s.table), f.Title).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("pgvector count: %w", err)
	}
	return n, nil
}

func (s *PgVectorStore) Close() error {
	s.pool.Close()
	return nil
}
