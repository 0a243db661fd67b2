package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"

	_ "modernc.org/sqlite"

	"lectureRAG/core"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

func checkIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("invalid collection name %q", name)
	}
	return nil
}

// SQLiteVectorStore is a persistent single-file collection. Similarity is
// computed in process over the filtered rows.
type SQLiteVectorStore struct {
	db    *sql.DB
	table string
}

// NewSQLiteVectorStore opens (creating if needed) the database at path.
func NewSQLiteVectorStore(ctx context.Context, path, collection string) (*SQLiteVectorStore, error) {
	if err := checkIdent(collection); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite doesn't support concurrent writes
	db.SetMaxOpenConns(1)

	s := &SQLiteVectorStore{db: db, table: collection}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteVectorStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  number TEXT NOT NULL,
  chunk_id TEXT NOT NULL,
  start_sec REAL NOT NULL,
  end_sec REAL NOT NULL,
  document TEXT NOT NULL,
  embedding BLOB NOT NULL
)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_title ON %s(title)`, s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteVectorStore) Insert(ctx context.Context, vectors []core.IndexedVector) (err error) {
	if err := checkBatch(vectors); err != nil {
		return err
	}
	if len(vectors) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	exists, err := tx.PrepareContext(ctx, fmt.Sprintf(`SELECT 1 FROM %s WHERE id = ?`, s.table))
	if err != nil {
		return fmt.Errorf("prepare lookup: %w", err)
	}
	defer exists.Close()
	insert, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, title, number, chunk_id, start_sec, end_sec, document, embedding) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.table))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer insert.Close()

	for _, v := range vectors {
		var one int
		switch err := exists.QueryRowContext(ctx, v.ID).Scan(&one); {
		case err == nil:
			return fmt.Errorf("%w: %s", core.ErrDuplicateID, v.ID)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("lookup %s: %w", v.ID, err)
		}
		m := v.Metadata
		if _, err := insert.ExecContext(ctx, v.ID, m.Title, m.Number, m.ChunkID, m.Start, m.End, v.Text, encodeEmbedding(v.Embedding)); err != nil {
			return fmt.Errorf("insert %s: %w", v.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteVectorStore) Query(ctx context.Context, embedding []float32, k int, f Filter) ([]core.Hit, error) {
	candidates, err := s.load(ctx, f, true)
	if err != nil {
		return nil, err
	}
	return rankByCosine(candidates, embedding, k)
}

func (s *SQLiteVectorStore) Get(ctx context.Context, f Filter) ([]core.IndexedVector, error) {
	return s.load(ctx, f, false)
}

func (s *SQLiteVectorStore) Delete(ctx context.Context, f Filter) (int, error) {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE (? = '' OR title = ?)`, s.table), f.Title, f.Title)
	if err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteVectorStore) Count(ctx context.Context, f Filter) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE (? = '' OR title = ?)`, s.table), f.Title, f.Title).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func (s *SQLiteVectorStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteVectorStore) load(ctx context.Context, f Filter, withEmbedding bool) ([]core.IndexedVector, error) {
	cols := "id, title, number, chunk_id, start_sec, end_sec, document"
	if withEmbedding {
		cols += ", embedding"
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE (? = '' OR title = ?) ORDER BY rowid`, cols, s.table), f.Title, f.Title)
	if err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	defer rows.Close()

	var out []core.IndexedVector
	for rows.Next() {
		var v core.IndexedVector
		m := &v.Metadata
		dest := []any{&v.ID, &m.Title, &m.Number, &m.ChunkID, &m.Start, &m.End, &v.Text}
		var blob []byte
		if withEmbedding {
			dest = append(dest, &blob)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if withEmbedding {
			if v.Embedding, err = decodeEmbedding(blob); err != nil {
				return nil, fmt.Errorf("vector %s: %w", v.ID, err)
			}
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// encodeEmbedding packs float32 values little-endian.
func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
