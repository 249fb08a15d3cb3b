package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CorpusStore defines the interface for corpus generation storage operations.
type CorpusStore interface {
	// SaveGeneration stores a generation with its documents and chunks in one transaction.
	SaveGeneration(ctx context.Context, gen *Generation, docs []DocumentRecord, chunks []ChunkRecord) error
	// Activate marks the generation active and retires every other generation.
	Activate(ctx context.Context, id string) error
	// Active returns the active generation. Returns ErrNotFound if none.
	Active(ctx context.Context) (*Generation, error)
	// LoadChunks returns the chunks of a generation in insertion order.
	LoadChunks(ctx context.Context, generationID string) ([]ChunkRecord, error)
	// LoadDocuments returns the documents of a generation ordered by path.
	LoadDocuments(ctx context.Context, generationID string) ([]DocumentRecord, error)
	// Inactive returns every generation that is not active, oldest first.
	Inactive(ctx context.Context) ([]Generation, error)
	// Delete removes a generation with its documents and chunks.
	Delete(ctx context.Context, id string) error
}

// CorpusRepo provides methods for corpus generation operations.
// It implements the CorpusStore interface.
type CorpusRepo struct {
	db *sql.DB
}

// NewCorpusRepo creates a new CorpusRepo.
func NewCorpusRepo(db *sql.DB) *CorpusRepo {
	return &CorpusRepo{db: db}
}

// SaveGeneration stores gen with status "building" along with its documents and chunks.
func (r *CorpusRepo) SaveGeneration(ctx context.Context, gen *Generation, docs []DocumentRecord, chunks []ChunkRecord) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	gen.Status = StatusBuilding
	_, err = tx.ExecContext(ctx,
		`INSERT INTO generations (id, collection, status, built_at, document_count, chunk_count)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		gen.ID, gen.Collection, gen.Status, gen.BuiltAt.UnixNano(), gen.DocumentCount, gen.ChunkCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert generation: %w", err)
	}

	docStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents (id, generation_id, path, title, hash, chunk_count) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare document insert: %w", err)
	}
	defer func() {
		_ = docStmt.Close()
	}()
	for _, d := range docs {
		if _, err = docStmt.ExecContext(ctx, d.ID, gen.ID, d.Path, d.Title, d.Hash, d.ChunkCount); err != nil {
			return fmt.Errorf("failed to insert document %s: %w", d.Path, err)
		}
	}

	chunkStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, generation_id, document_id, position, chunk_index, title_path, level, text)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer func() {
		_ = chunkStmt.Close()
	}()
	for _, c := range chunks {
		if _, err = chunkStmt.ExecContext(ctx, c.ID, gen.ID, c.DocumentID, c.Position, c.ChunkIndex, c.TitlePath, c.Level, c.Text); err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit generation: %w", err)
	}
	return nil
}

// Activate marks the generation active and retires every other generation.
// Returns ErrNotFound if the generation does not exist.
func (r *CorpusRepo) Activate(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, "UPDATE generations SET status = ? WHERE id = ?", StatusActive, id)
	if err != nil {
		return fmt.Errorf("failed to activate generation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check activated rows: %w", err)
	}
	if n == 0 {
		err = ErrNotFound
		return err
	}

	if _, err = tx.ExecContext(ctx,
		"UPDATE generations SET status = ? WHERE id <> ? AND status = ?",
		StatusRetired, id, StatusActive,
	); err != nil {
		return fmt.Errorf("failed to retire generations: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit activation: %w", err)
	}
	return nil
}

// Active returns the active generation. Returns ErrNotFound if none.
func (r *CorpusRepo) Active(ctx context.Context) (*Generation, error) {
	var gen Generation
	var builtAt int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id, collection, status, built_at, document_count, chunk_count
		 FROM generations WHERE status = ? ORDER BY built_at DESC LIMIT 1`,
		StatusActive,
	).Scan(&gen.ID, &gen.Collection, &gen.Status, &builtAt, &gen.DocumentCount, &gen.ChunkCount)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active generation: %w", err)
	}

	gen.BuiltAt = time.Unix(0, builtAt)
	return &gen, nil
}

// Inactive returns every generation that is not active, oldest first. These are
// retired generations whose cleanup failed and builds that never finished.
func (r *CorpusRepo) Inactive(ctx context.Context) ([]Generation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, collection, status, built_at, document_count, chunk_count
		 FROM generations WHERE status <> ? ORDER BY built_at`,
		StatusActive,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query inactive generations: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var gens []Generation
	for rows.Next() {
		var gen Generation
		var builtAt int64
		if err := rows.Scan(&gen.ID, &gen.Collection, &gen.Status, &builtAt, &gen.DocumentCount, &gen.ChunkCount); err != nil {
			return nil, fmt.Errorf("failed to scan generation: %w", err)
		}
		gen.BuiltAt = time.Unix(0, builtAt)
		gens = append(gens, gen)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return gens, nil
}

// LoadChunks returns the chunks of a generation in insertion order.
// Returns an empty slice if the generation has no chunks (not an error).
func (r *CorpusRepo) LoadChunks(ctx context.Context, generationID string) ([]ChunkRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, generation_id, document_id, position, chunk_index, title_path, level, text
		 FROM chunks WHERE generation_id = ? ORDER BY position`,
		generationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var chunks []ChunkRecord
	for rows.Next() {
		var c ChunkRecord
		if err := rows.Scan(&c.ID, &c.GenerationID, &c.DocumentID, &c.Position, &c.ChunkIndex, &c.TitlePath, &c.Level, &c.Text); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return chunks, nil
}

// LoadDocuments returns the documents of a generation ordered by path.
func (r *CorpusRepo) LoadDocuments(ctx context.Context, generationID string) ([]DocumentRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, generation_id, path, COALESCE(title, ''), hash, chunk_count
		 FROM documents WHERE generation_id = ? ORDER BY path`,
		generationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var docs []DocumentRecord
	for rows.Next() {
		var d DocumentRecord
		if err := rows.Scan(&d.ID, &d.GenerationID, &d.Path, &d.Title, &d.Hash, &d.ChunkCount); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return docs, nil
}

// Delete removes a generation with its documents and chunks.
// Deleting a missing generation is not an error.
func (r *CorpusRepo) Delete(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range []string{
		"DELETE FROM chunks WHERE generation_id = ?",
		"DELETE FROM documents WHERE generation_id = ?",
		"DELETE FROM generations WHERE id = ?",
	} {
		if _, err = tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("failed to delete generation: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}
