package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity_SelfIsOne(t *testing.T) {
	v := []float32{0.3, -1.2, 4.5, 0.01}
	sim, err := CosineSimilarity(v, v)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, float64(sim), 1e-5)
}

func TestCosineSimilarity_ZeroVector(t *testing.T) {
	v := []float32{1, 2, 3}
	zero := []float32{0, 0, 0}

	sim, err := CosineSimilarity(v, zero)
	require.NoError(t, err)
	assert.Equal(t, float32(0), sim)

	sim, err = CosineSimilarity(zero, zero)
	require.NoError(t, err)
	assert.Equal(t, float32(0), sim)
}

func TestCosineSimilarity_Orthogonal(t *testing.T) {
	sim, err := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, float64(sim), 1e-6)
}

func TestCosineSimilarity_Opposite(t *testing.T) {
	sim, err := CosineSimilarity([]float32{1, 1}, []float32{-1, -1})
	require.NoError(t, err)
	assert.InDelta(t, -1.0, float64(sim), 1e-5)
}

func TestCosineSimilarity_DimensionMismatch(t *testing.T) {
	_, err := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3})
	assert.Error(t, err)
}

func TestCosineSimilarity_Empty(t *testing.T) {
	_, err := CosineSimilarity(nil, []float32{1})
	assert.Error(t, err)
}
