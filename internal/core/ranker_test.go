package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/docchat/docchat/internal/vectorstore"
)

func TestRankRecords_DescendingOrder(t *testing.T) {
	query := []float32{1, 0}
	candidates := []vectorstore.Record{
		{ID: "low", Embedding: []float32{0, 1}},
		{ID: "high", Embedding: []float32{1, 0}},
		{ID: "mid", Embedding: []float32{1, 1}},
	}

	scored := RankRecords(query, candidates, zap.NewNop())
	require.Len(t, scored, 3)
	assert.Equal(t, "high", scored[0].Record.ID)
	assert.Equal(t, "mid", scored[1].Record.ID)
	assert.Equal(t, "low", scored[2].Record.ID)
}

func TestRankRecords_StableTieBreak(t *testing.T) {
	// A and B tie exactly; C scores higher. Ties keep input order, so the
	// ranking is C, A, B.
	query := []float32{1, 0}
	candidates := []vectorstore.Record{
		{ID: "A", Embedding: []float32{1, 1}},
		{ID: "B", Embedding: []float32{2, 2}},
		{ID: "C", Embedding: []float32{1, 0}},
	}

	scored := RankRecords(query, candidates, zap.NewNop())
	require.Len(t, scored, 3)
	assert.Equal(t, "C", scored[0].Record.ID)
	assert.Equal(t, "A", scored[1].Record.ID)
	assert.Equal(t, "B", scored[2].Record.ID)
	assert.Equal(t, scored[1].Score, scored[2].Score)
}

func TestRankRecords_SkipsUnscorableRecords(t *testing.T) {
	query := []float32{1, 0}
	candidates := []vectorstore.Record{
		{ID: "missing"},
		{ID: "wrong-dim", Embedding: []float32{1, 0, 0}},
		{ID: "ok", Embedding: []float32{1, 0}},
	}

	scored := RankRecords(query, candidates, zap.NewNop())
	require.Len(t, scored, 1)
	assert.Equal(t, "ok", scored[0].Record.ID)
}

func TestRankRecords_ZeroNormCandidate(t *testing.T) {
	query := []float32{1, 0}
	candidates := []vectorstore.Record{
		{ID: "zero", Embedding: []float32{0, 0}},
	}

	scored := RankRecords(query, candidates, zap.NewNop())
	require.Len(t, scored, 1)
	assert.Equal(t, float32(0), scored[0].Score)
}

func TestRankRecords_Empty(t *testing.T) {
	scored := RankRecords([]float32{1}, nil, zap.NewNop())
	assert.Empty(t, scored)
}
