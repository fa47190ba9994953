// Package vectorstore owns the mapping from chunk identity to its embedding
// vector. Records are kept in SQLite with the vector JSON-encoded, searched
// brute-force by the ranker; the store enforces a single vector dimension,
// established by the first insertion.
package vectorstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrDimensionMismatch is returned when an inserted vector's length differs
// from the dimension already established for the store.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Record bundles a chunk's identity, its owning page's number (denormalized
// for fast grouping at query time), the chunk text and its vector.
type Record struct {
	ID         string
	DocumentID string
	PageID     string
	PageNumber int
	ChunkIndex int
	Text       string
	Embedding  []float32
}

type SQLiteStore struct {
	db *sql.DB

	mu        sync.Mutex
	dimension int // 0 until the first vector is inserted
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	schema := `
    CREATE TABLE IF NOT EXISTS chunk_vectors (
        id TEXT PRIMARY KEY, -- UUID
        document_id TEXT NOT NULL,
        page_id TEXT NOT NULL,
        page_number INTEGER NOT NULL,
        chunk_index INTEGER NOT NULL,
        chunk_text TEXT NOT NULL,
        embedding TEXT NOT NULL -- JSON array of float32
    );
    CREATE INDEX IF NOT EXISTS idx_chunk_vectors_document ON chunk_vectors(document_id);
    `
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize vector store schema: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.loadDimension(); err != nil {
		return nil, err
	}
	return store, nil
}

// loadDimension re-establishes the store dimension from persisted records so
// vectors inserted across restarts stay comparable.
func (s *SQLiteStore) loadDimension() error {
	var embeddingJSON string
	err := s.db.QueryRow("SELECT embedding FROM chunk_vectors LIMIT 1").Scan(&embeddingJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil // Fresh store, dimension set by first insert
		}
		return fmt.Errorf("failed to probe vector dimension: %w", err)
	}

	var embedding []float32
	if err := json.Unmarshal([]byte(embeddingJSON), &embedding); err != nil {
		return fmt.Errorf("failed to unmarshal stored embedding: %w", err)
	}
	s.dimension = len(embedding)
	return nil
}

// Insert stores one chunk record. The first insertion into a fresh store
// establishes the dimension; later insertions with a different vector length
// fail with ErrDimensionMismatch.
func (s *SQLiteStore) Insert(rec *Record) error {
	if len(rec.Embedding) == 0 {
		return fmt.Errorf("embedding cannot be empty")
	}

	s.mu.Lock()
	if s.dimension == 0 {
		s.dimension = len(rec.Embedding)
	} else if len(rec.Embedding) != s.dimension {
		s.mu.Unlock()
		return fmt.Errorf("%w: got %d, store holds %d", ErrDimensionMismatch, len(rec.Embedding), s.dimension)
	}
	s.mu.Unlock()

	embeddingBytes, err := json.Marshal(rec.Embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	stmt, err := s.db.Prepare("INSERT INTO chunk_vectors (id, document_id, page_id, page_number, chunk_index, chunk_text, embedding) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare vector insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(rec.ID, rec.DocumentID, rec.PageID, rec.PageNumber, rec.ChunkIndex, rec.Text, string(embeddingBytes))
	if err != nil {
		return fmt.Errorf("failed to execute vector insert: %w", err)
	}
	return nil
}

// ListByDocument returns every record for the document. No ordering is
// guaranteed; callers rank the result themselves.
func (s *SQLiteStore) ListByDocument(documentID string) ([]Record, error) {
	rows, err := s.db.Query("SELECT id, document_id, page_id, page_number, chunk_index, chunk_text, embedding FROM chunk_vectors WHERE document_id = ?", documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query vector records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var embeddingJSON string
		if err := rows.Scan(&rec.ID, &rec.DocumentID, &rec.PageID, &rec.PageNumber, &rec.ChunkIndex, &rec.Text, &embeddingJSON); err != nil {
			return nil, fmt.Errorf("failed to scan vector record row: %w", err)
		}
		if err := json.Unmarshal([]byte(embeddingJSON), &rec.Embedding); err != nil {
			return nil, fmt.Errorf("failed to unmarshal embedding for record %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteByDocument removes every record for the document.
func (s *SQLiteStore) DeleteByDocument(documentID string) error {
	if _, err := s.db.Exec("DELETE FROM chunk_vectors WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("failed to delete vector records: %w", err)
	}
	return nil
}
