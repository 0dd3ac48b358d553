package probtable

import (
	"testing"

	"github.com/nkoppel/llama-cpp-steganography/internal/rangecoder"
	"github.com/stretchr/testify/require"
)

func TestBuildWidthsAtLeastOne(t *testing.T) {
	probs := []float64{0.9, 0.0999, 0.0001, 1e-12}

	table, err := Build(probs)
	require.NoError(t, err)

	require.Len(t, table.Cumulative, len(probs))
	require.LessOrEqual(t, table.Denom, uint64(rangecoder.MaxDenominator))

	for i := 0; i < len(table.Cumulative)-1; i++ {
		require.GreaterOrEqual(t, table.Cumulative[i+1]-table.Cumulative[i], uint64(1))
	}
	require.GreaterOrEqual(t, table.Denom-table.Cumulative[len(table.Cumulative)-1], uint64(1))
}

func TestBuildCumulativeStartsAtZero(t *testing.T) {
	table, err := Build([]float64{0.5, 0.5})
	require.NoError(t, err)
	require.Equal(t, uint64(0), table.Cumulative[0])
}

func TestBuildEmptyDistribution(t *testing.T) {
	_, err := Build(nil)
	require.ErrorIs(t, err, ErrEmptyDistribution)
}

func TestBuildDeterministic(t *testing.T) {
	probs := []float64{0.4, 0.3, 0.2, 0.1}

	a, err := Build(probs)
	require.NoError(t, err)
	b, err := Build(probs)
	require.NoError(t, err)

	require.Equal(t, a, b)
}
