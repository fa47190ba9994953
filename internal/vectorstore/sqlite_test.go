package vectorstore

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteStore(db)
	require.NoError(t, err)
	return store
}

func makeVector(dim int) []float32 {
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = float32(i) * 0.25
	}
	return vec
}

func TestInsertAndListByDocument(t *testing.T) {
	store := newTestStore(t)

	rec := Record{
		DocumentID: "doc1",
		PageID:     "page1",
		PageNumber: 3,
		ChunkIndex: 0,
		Text:       "some chunk text",
		Embedding:  makeVector(4),
	}
	require.NoError(t, store.Insert(&rec))
	assert.NotEmpty(t, rec.ID)

	records, err := store.ListByDocument("doc1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, rec.ID, records[0].ID)
	assert.Equal(t, "doc1", records[0].DocumentID)
	assert.Equal(t, 3, records[0].PageNumber)
	assert.Equal(t, "some chunk text", records[0].Text)
	assert.Equal(t, rec.Embedding, records[0].Embedding)

	records, err = store.ListByDocument("other")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestInsert_DimensionMismatch(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Insert(&Record{DocumentID: "d", PageID: "p", Text: "a", Embedding: makeVector(384)}))
	require.NoError(t, store.Insert(&Record{DocumentID: "d", PageID: "p", Text: "b", Embedding: makeVector(384)}))

	err := store.Insert(&Record{DocumentID: "d", PageID: "p", Text: "c", Embedding: makeVector(128)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
}

func TestInsert_EmptyEmbedding(t *testing.T) {
	store := newTestStore(t)
	err := store.Insert(&Record{DocumentID: "d", PageID: "p", Text: "a"})
	assert.Error(t, err)
}

func TestDimensionSurvivesReopen(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	store, err := NewSQLiteStore(db)
	require.NoError(t, err)
	require.NoError(t, store.Insert(&Record{DocumentID: "d", PageID: "p", Text: "a", Embedding: makeVector(8)}))

	// A second store over the same database re-establishes the dimension
	// from the persisted records.
	reopened, err := NewSQLiteStore(db)
	require.NoError(t, err)
	err = reopened.Insert(&Record{DocumentID: "d", PageID: "p", Text: "b", Embedding: makeVector(16)})
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
}

func TestDeleteByDocument(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Insert(&Record{DocumentID: "doc1", PageID: "p1", Text: "a", Embedding: makeVector(4)}))
	require.NoError(t, store.Insert(&Record{DocumentID: "doc1", PageID: "p1", Text: "b", Embedding: makeVector(4)}))
	require.NoError(t, store.Insert(&Record{DocumentID: "doc2", PageID: "p2", Text: "c", Embedding: makeVector(4)}))

	require.NoError(t, store.DeleteByDocument("doc1"))

	records, err := store.ListByDocument("doc1")
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = store.ListByDocument("doc2")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
