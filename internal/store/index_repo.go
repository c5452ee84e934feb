package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNoIndex is returned by LoadIndex when no index was persisted for the
// domain.
var ErrNoIndex = errors.New("no persisted index")

// IndexMeta describes one persisted document index.
type IndexMeta struct {
	Domain     string
	Embedder   string // embedding engine name, e.g. "genai:gemini-embedding-001"
	Dimensions int
	ChunkCount int
	BuiltAt    time.Time
}

// IndexChunk is one embedded slice of a source document.
type IndexChunk struct {
	Source    string // file the chunk came from
	Position  int    // order of the chunk within the whole index
	Content   string
	Embedding []float32
}

// IndexRepo persists document indexes.
type IndexRepo interface {
	// SaveIndex replaces the index for meta.Domain in one transaction, so a
	// failed build never leaves a half-written index behind.
	SaveIndex(ctx context.Context, meta IndexMeta, chunks []IndexChunk) error

	// LoadIndex returns the index for domain in Position order, or
	// ErrNoIndex.
	LoadIndex(ctx context.Context, domain string) (*IndexMeta, []IndexChunk, error)

	// HasIndex reports whether an index was persisted for domain.
	HasIndex(ctx context.Context, domain string) (bool, error)
}

// IndexRepo returns an IndexRepo backed by this store.
func (s *Store) IndexRepo() IndexRepo {
	return &indexRepo{db: s.db}
}

type indexRepo struct {
	db *sql.DB
}

func (r *indexRepo) SaveIndex(ctx context.Context, meta IndexMeta, chunks []IndexChunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM index_chunks WHERE domain = ?`, meta.Domain); err != nil {
		return fmt.Errorf("clear index chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM index_meta WHERE domain = ?`, meta.Domain); err != nil {
		return fmt.Errorf("clear index meta: %w", err)
	}

	builtAt := meta.BuiltAt
	if builtAt.IsZero() {
		builtAt = time.Now()
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO index_meta (domain, embedder, dimensions, chunk_count, built_at_ms)
		VALUES (?, ?, ?, ?, ?)`,
		meta.Domain, meta.Embedder, meta.Dimensions, len(chunks), builtAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save index meta: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO index_chunks (domain, source, position, content, embedding)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		vec, err := json.Marshal(c.Embedding)
		if err != nil {
			return fmt.Errorf("encode embedding: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, meta.Domain, c.Source, c.Position, c.Content, string(vec)); err != nil {
			return fmt.Errorf("save chunk %d: %w", c.Position, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index: %w", err)
	}
	return nil
}

func (r *indexRepo) LoadIndex(ctx context.Context, domain string) (*IndexMeta, []IndexChunk, error) {
	meta := IndexMeta{Domain: domain}
	var builtMs int64
	err := r.db.QueryRowContext(ctx,
		`SELECT embedder, dimensions, chunk_count, built_at_ms FROM index_meta WHERE domain = ?`, domain,
	).Scan(&meta.Embedder, &meta.Dimensions, &meta.ChunkCount, &builtMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNoIndex
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load index meta: %w", err)
	}
	meta.BuiltAt = time.UnixMilli(builtMs).UTC()

	rows, err := r.db.QueryContext(ctx,
		`SELECT source, position, content, embedding FROM index_chunks WHERE domain = ? ORDER BY position`, domain)
	if err != nil {
		return nil, nil, fmt.Errorf("query index chunks: %w", err)
	}
	defer rows.Close()

	chunks := make([]IndexChunk, 0, meta.ChunkCount)
	for rows.Next() {
		var (
			c   IndexChunk
			vec string
		)
		if err := rows.Scan(&c.Source, &c.Position, &c.Content, &vec); err != nil {
			return nil, nil, fmt.Errorf("scan index chunk: %w", err)
		}
		if err := json.Unmarshal([]byte(vec), &c.Embedding); err != nil {
			return nil, nil, fmt.Errorf("decode embedding of chunk %d: %w", c.Position, err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate index chunks: %w", err)
	}
	return &meta, chunks, nil
}

func (r *indexRepo) HasIndex(ctx context.Context, domain string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM index_meta WHERE domain = ?`, domain).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check index: %w", err)
	}
	return n > 0, nil
}
